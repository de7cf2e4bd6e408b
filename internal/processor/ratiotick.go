package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ratio-backtester/internal/infrastructure"
	"ratio-backtester/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// TickWriter persists assembled ticks.
type TickWriter interface {
	InsertTicks(ctx context.Context, ticks []model.Tick) (int, error)
}

// RatioTickProcessor assembles upstream per-leg minute bars into ratio
// ticks. A tick is complete when both the tradable and reference leg of the
// same (symbol, session, minute) have arrived; completed minutes are flushed
// to storage in batches.
type RatioTickProcessor struct {
	js      nats.JetStreamContext
	writer  TickWriter
	logger  *zap.Logger
	pending map[string]*pairState
	mu      sync.Mutex
}

type pairState struct {
	symbol    string
	session   model.Session
	window    time.Time
	tradable  *model.LegBar
	reference *model.LegBar
}

func NewRatioTickProcessor(js nats.JetStreamContext, writer TickWriter, logger *zap.Logger) *RatioTickProcessor {
	return &RatioTickProcessor{
		js:      js,
		writer:  writer,
		logger:  logger,
		pending: make(map[string]*pairState),
	}
}

func (p *RatioTickProcessor) Run(ctx context.Context) error {
	_, err := p.js.Subscribe("ticks.legs.*.*", func(msg *nats.Msg) {
		var bar model.LegBar
		if err := json.Unmarshal(msg.Data, &bar); err != nil {
			p.logger.Error("failed to unmarshal leg bar", zap.Error(err))
			return
		}
		p.processBar(bar)
		msg.Ack()
	}, nats.Durable("ratio-tick-processor"), nats.ManualAck())

	if err != nil {
		return err
	}

	go p.flushLoop(ctx)
	p.logger.Info("ratio tick processor started")
	return nil
}

func (p *RatioTickProcessor) processBar(bar model.LegBar) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Use 1 minute resolution
	window := bar.Timestamp.Truncate(time.Minute)
	key := fmt.Sprintf("%s:%s:%s", bar.Symbol, bar.Session, window.Format(time.RFC3339))

	state, ok := p.pending[key]
	if !ok {
		state = &pairState{symbol: bar.Symbol, session: bar.Session, window: window}
		p.pending[key] = state
	}

	// Last bar of a minute wins for each leg.
	b := bar
	switch bar.Leg {
	case model.LegTradable:
		state.tradable = &b
	case model.LegReference:
		state.reference = &b
	default:
		p.logger.Warn("dropping bar with unknown leg",
			zap.String("symbol", bar.Symbol), zap.String("leg", string(bar.Leg)))
	}
}

func (p *RatioTickProcessor) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

func (p *RatioTickProcessor) flush(ctx context.Context) {
	p.mu.Lock()
	now := time.Now().Truncate(time.Minute)
	toFlush := make([]model.Tick, 0)

	for key, state := range p.pending {
		// A minute before the current one is closed upstream.
		if !state.window.Before(now) {
			continue
		}
		if state.tradable == nil || state.reference == nil {
			p.logger.Warn("dropping unpaired minute",
				zap.String("symbol", state.symbol),
				zap.String("session", string(state.session)),
				zap.Time("window", state.window))
			delete(p.pending, key)
			continue
		}
		if state.tradable.Price.IsZero() {
			delete(p.pending, key)
			continue
		}
		toFlush = append(toFlush, model.Tick{
			Symbol:          state.symbol,
			Session:         state.session,
			TradablePrice:   state.tradable.Price,
			ReferencePrice:  state.reference.Price,
			Ratio:           state.reference.Price.Div(state.tradable.Price),
			TradableVolume:  state.tradable.Volume,
			ReferenceVolume: state.reference.Volume,
			Timestamp:       state.window,
		})
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if len(toFlush) == 0 {
		return
	}

	inserted, err := p.writer.InsertTicks(ctx, toFlush)
	if err != nil {
		p.logger.Error("failed to persist assembled ticks", zap.Error(err))
		return
	}
	for _, t := range toFlush {
		infrastructure.TicksIngested.WithLabelValues(t.Symbol).Inc()
	}
	p.logger.Debug("flushed assembled ticks",
		zap.Int("assembled", len(toFlush)), zap.Int("inserted", inserted))
}
