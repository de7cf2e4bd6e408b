package push

import (
	"encoding/json"
	"time"

	"ratio-backtester/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Notifier publishes run progress and summaries to JetStream, where the
// gateway relays them to websocket subscribers. Publish failures are logged
// and dropped; a backtest never fails because nobody is listening.
type Notifier struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func NewNotifier(js nats.JetStreamContext, logger *zap.Logger) *Notifier {
	return &Notifier{js: js, logger: logger}
}

func (n *Notifier) Progress(runID string, doneUnits, totalUnits int) {
	payload, err := json.Marshal(map[string]interface{}{
		"run_id":      runID,
		"done_units":  doneUnits,
		"total_units": totalUnits,
		"at":          time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if _, err := n.js.Publish("backtest.progress."+runID, payload); err != nil {
		n.logger.Warn("failed to publish progress", zap.String("run_id", runID), zap.Error(err))
	}
}

func (n *Notifier) Summary(summary model.RunSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		n.logger.Warn("failed to marshal summary", zap.String("run_id", summary.RunID), zap.Error(err))
		return
	}
	if _, err := n.js.Publish("backtest.summary."+summary.RunID, payload); err != nil {
		n.logger.Warn("failed to publish summary", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}
