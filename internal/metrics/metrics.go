package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "The current number of registered connections.",
	})
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_total",
		Help: "The total number of connections accepted.",
	})
	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_connections_rejected_total",
		Help: "The total number of connections rejected at capacity checks.",
	}, []string{"reason"})
	Disconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_disconnects_total",
		Help: "The total number of disconnects by cause.",
	}, []string{"reason"})

	// Routing metrics
	MessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_routed_total",
		Help: "The total number of messages routed per channel.",
	}, []string{"channel"})
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_messages_delivered_total",
		Help: "The total number of messages accepted into delivery queues.",
	})
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_dropped_total",
		Help: "The total number of messages dropped instead of delivered.",
	}, []string{"reason"})

	// Queue metrics
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_queue_depth",
		Help: "The current number of messages waiting across all queues.",
	})
	SlowConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_slow_consumers",
		Help: "The current number of connections flagged as slow consumers.",
	})

	// Reconnection metrics
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_reconnect_sessions_started_total",
		Help: "The total number of reconnection sessions opened.",
	})
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_reconnect_attempts_total",
		Help: "The total number of reconnection attempts by outcome.",
	}, []string{"outcome"})
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_reconnect_sessions_expired_total",
		Help: "The total number of reconnection sessions retired by the expiry sweep.",
	})
	MessagesBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_messages_buffered_total",
		Help: "The total number of messages buffered for disconnected clients.",
	})
	MessagesReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_messages_replayed_total",
		Help: "The total number of missed messages replayed after reconnects.",
	})
)

// StartServer starts the HTTP server for Prometheus metrics and returns it
// so the caller can shut it down.
func StartServer(port int, path string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting metrics server", "addr", srv.Addr, "path", path)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}
