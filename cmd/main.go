package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"ratio-backtester/internal/app"
	"ratio-backtester/internal/baseline"
	"ratio-backtester/internal/config"
	"ratio-backtester/internal/grid"
	"ratio-backtester/internal/model"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagRunID    string
	flagSymbols  []string
	flagMethods  []string
	flagSessions []string
	flagStart    string
	flagEnd      string
	flagDay      string
)

var rootCmd = &cobra.Command{
	Use:   "ratio-backtester",
	Short: "Event-based mean-reversion backtester over ratio ticks",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket gateway and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Run a full grid backtest over a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		start, err := parseDate(flagStart)
		if err != nil {
			return err
		}
		end, err := parseDate(flagEnd)
		if err != nil {
			return err
		}
		methods, sessions, err := parseGridDims()
		if err != nil {
			return err
		}

		runID := flagRunID
		if runID == "" {
			runID = "run-" + time.Now().UTC().Format("20060102T150405")
		}

		cfg := a.Config
		summary, err := a.Runner.Run(cmd.Context(), runID, grid.Config{
			Symbols:         flagSymbols,
			Methods:         methods,
			Sessions:        sessions,
			BuyPcts:         pctGrid(cfg.BuyPctMin, cfg.BuyPctMax, cfg.PctStep),
			SellPcts:        pctGrid(cfg.SellPctMin, cfg.SellPctMax, cfg.PctStep),
			Start:           start,
			End:             end,
			InitialCash:     decimal.NewFromFloat(cfg.InitialCash),
			Workers:         cfg.Workers,
			CheckpointEvery: cfg.CheckpointEvery,
			Sim:             cfg.SimConfig(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %d succeeded, %d failed, %d skipped, %d events in %s\n",
			summary.RunID, summary.Succeeded, summary.Failed, summary.Skipped,
			summary.Events, summary.Elapsed)
		return nil
	},
}

var extendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Append one new trading day to existing event streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		day, err := parseDate(flagDay)
		if err != nil {
			return err
		}
		methods, sessions, err := parseGridDims()
		if err != nil {
			return err
		}

		runID := flagRunID
		if runID == "" {
			runID = "extend-" + day.Format("2006-01-02")
		}

		cfg := a.Config
		summary, err := a.Extender.Run(cmd.Context(), runID, grid.ExtendConfig{
			Symbols:     flagSymbols,
			Methods:     methods,
			Sessions:    sessions,
			BuyPcts:     pctGrid(cfg.BuyPctMin, cfg.BuyPctMax, cfg.PctStep),
			SellPcts:    pctGrid(cfg.SellPctMin, cfg.SellPctMax, cfg.PctStep),
			Day:         day,
			InitialCash: decimal.NewFromFloat(cfg.InitialCash),
			Workers:     cfg.Workers,
			Sim:         cfg.SimConfig(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %d succeeded, %d failed, %d events\n",
			summary.RunID, summary.Succeeded, summary.Failed, summary.Events)
		return nil
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Compute per-day baselines from the prior trading day's ticks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		day, err := parseDate(flagDay)
		if err != nil {
			return err
		}

		written, err := a.BaselineService.ComputeFor(cmd.Context(), flagSymbols, baseline.PrevTradingDay(day), day)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d baselines for %s\n", written, day.Format("2006-01-02"))
		return nil
	},
}

func initApp(ctx context.Context) (*app.App, error) {
	a, err := app.NewApp()
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	if err := a.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date flag is required (YYYY-MM-DD)")
	}
	return time.Parse("2006-01-02", raw)
}

func parseGridDims() ([]model.Method, []model.Session, error) {
	methods := make([]model.Method, 0, len(flagMethods))
	for _, raw := range flagMethods {
		m, err := model.ParseMethod(raw)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, m)
	}
	sessions := make([]model.Session, 0, len(flagSessions))
	for _, raw := range flagSessions {
		s, err := model.ParseSession(raw)
		if err != nil {
			return nil, nil, err
		}
		sessions = append(sessions, s)
	}
	return methods, sessions, nil
}

func pctGrid(min, max, step float64) []decimal.Decimal {
	values := config.PctRange(min, max, step)
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.NewFromFloat(v))
	}
	return out
}

func init() {
	for _, cmd := range []*cobra.Command{gridCmd, extendCmd, baselineCmd} {
		cmd.Flags().StringSliceVar(&flagSymbols, "symbols", nil, "symbols to process")
		cmd.MarkFlagRequired("symbols")
	}
	for _, cmd := range []*cobra.Command{gridCmd, extendCmd} {
		cmd.Flags().StringVar(&flagRunID, "run-id", "", "run identifier (resume uses the same id)")
		cmd.Flags().StringSliceVar(&flagMethods, "methods", nil, "baseline methods (default: all)")
		cmd.Flags().StringSliceVar(&flagSessions, "sessions", nil, "sessions (default: all)")
	}
	gridCmd.Flags().StringVar(&flagStart, "start", "", "range start (YYYY-MM-DD, inclusive)")
	gridCmd.Flags().StringVar(&flagEnd, "end", "", "range end (YYYY-MM-DD, exclusive)")
	extendCmd.Flags().StringVar(&flagDay, "day", "", "trading day to append (YYYY-MM-DD)")
	baselineCmd.Flags().StringVar(&flagDay, "day", "", "trading day baselines apply to (YYYY-MM-DD)")

	rootCmd.AddCommand(serveCmd, gridCmd, extendCmd, baselineCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
