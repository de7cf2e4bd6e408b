package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CombinationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combinations_processed_total",
		Help: "Combinations simulated, by outcome",
	}, []string{"status"})

	EventsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_persisted_total",
		Help: "Trade events written to the event store",
	}, []string{"mode"})

	TickFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "tick_fetch_latency_seconds",
		Help: "Latency of tick dataset fetches",
	}, []string{"symbol", "session"})

	BaselinesComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "baselines_computed_total",
		Help: "Baselines computed and upserted",
	}, []string{"method"})

	TicksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticks_ingested_total",
		Help: "Ratio ticks assembled from leg bars and persisted",
	}, []string{"symbol"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_active_workers",
		Help: "Workers currently simulating a dataset unit",
	})
)
