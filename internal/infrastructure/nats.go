package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func InitNATS(url string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, err
	}

	streams := []nats.StreamConfig{
		{
			Name:     "BACKTEST",
			Subjects: []string{"backtest.progress.*", "backtest.summary.*"},
		},
		{
			Name:     "TICKS",
			Subjects: []string{"ticks.legs.*.*"},
		},
	}

	for _, cfg := range streams {
		cfg := cfg
		// Create stream if it doesn't exist
		if _, err := js.AddStream(&cfg); err != nil {
			// If stream exists, we might need to update it
			if _, err := js.UpdateStream(&cfg); err != nil {
				logger.Warn("failed to create or update stream",
					zap.String("stream", cfg.Name), zap.Error(err))
			}
		}
	}

	return nc, js, nil
}
