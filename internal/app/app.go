package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratio-backtester/api"
	"ratio-backtester/internal/baseline"
	"ratio-backtester/internal/config"
	"ratio-backtester/internal/grid"
	"ratio-backtester/internal/infrastructure"
	"ratio-backtester/internal/processor"
	"ratio-backtester/internal/push"
	"ratio-backtester/internal/selector"
	"ratio-backtester/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *pgxpool.Pool
	NC          *nats.Conn
	JS          nats.JetStreamContext
	PushGateway *push.PushGateway
	HTTPServer  *http.Server

	Ticks       *storage.TickStore
	Baselines   *storage.BaselineStore
	Events      *storage.EventStore
	Checkpoints *storage.CheckpointStore

	BaselineService *baseline.Service
	Runner          *grid.Runner
	Extender        *grid.Extender
	Selector        *selector.Selector
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init()
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool

	if err := storage.InitSchema(ctx, a.DB); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.Logger.Info("database initialized successfully")

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Stores and services
	a.Ticks = storage.NewTickStore(a.DB)
	a.Baselines = storage.NewBaselineStore(a.DB)
	a.Events = storage.NewEventStore(a.DB)
	a.Checkpoints = storage.NewCheckpointStore(a.DB)

	notifier := push.NewNotifier(js, a.Logger)
	a.BaselineService = baseline.NewService(a.Ticks, a.Baselines, a.Logger)
	a.Runner = grid.NewRunner(a.Ticks, a.Baselines, a.Events, a.Checkpoints, notifier, a.Logger)
	a.Extender = grid.NewExtender(a.Ticks, a.Baselines, a.Events, notifier, a.Logger)
	a.Selector = selector.New(a.Events, decimal.NewFromFloat(a.Config.InitialCash), a.Logger)
	a.PushGateway = push.NewPushGateway(js, a.Logger)

	api.SetJWTSecret(a.Config.JWTSecret)

	return nil
}

// Run starts the ingest consumer and the HTTP server, then blocks until
// shutdown
func (a *App) Run(ctx context.Context) error {
	tickProcessor := processor.NewRatioTickProcessor(a.JS, a.Ticks, a.Logger)
	if err := tickProcessor.Run(ctx); err != nil {
		return fmt.Errorf("failed to start ratio tick processor: %w", err)
	}

	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.DB.Close()

	return nil
}

// Close releases connections for non-server (CLI) runs.
func (a *App) Close() {
	if a.NC != nil {
		a.NC.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	apiHandler := api.NewHandler(a.DB, a.Logger, a.Runner, a.Extender, a.Selector, a.Config)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/register", apiHandler.Register)
		v1.POST("/login", apiHandler.Login)
		v1.GET("/performers", apiHandler.GetTopPerformers)
	}

	protected := r.Group("/api/v1")
	protected.Use(api.AuthMiddleware())
	{
		protected.POST("/grid", apiHandler.RunGrid)
		protected.POST("/extend", apiHandler.ExtendDay)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.PushGateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
