package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghantakiran/axion-stock-sub012/internal/audit"
	"github.com/ghantakiran/axion-stock-sub012/internal/auth"
	"github.com/ghantakiran/axion-stock-sub012/internal/backpressure"
	"github.com/ghantakiran/axion-stock-sub012/internal/config"
	"github.com/ghantakiran/axion-stock-sub012/internal/connection"
	"github.com/ghantakiran/axion-stock-sub012/internal/database"
	"github.com/ghantakiran/axion-stock-sub012/internal/gateway"
	"github.com/ghantakiran/axion-stock-sub012/internal/metrics"
	"github.com/ghantakiran/axion-stock-sub012/internal/reconnect"
	"github.com/ghantakiran/axion-stock-sub012/internal/router"
	"github.com/ghantakiran/axion-stock-sub012/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"port", cfg.Server.Port,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect the optional audit sink
	var (
		pool *pgxpool.Pool
		sink *audit.Sink
	)
	if cfg.Audit.Enabled {
		logger.Info("connecting to audit database",
			"host", cfg.Audit.Postgres.Host,
			"port", cfg.Audit.Postgres.Port,
			"database", cfg.Audit.Postgres.Name,
		)

		pool, err = database.Connect(ctx, cfg.Audit.Postgres)
		if err != nil {
			logger.Error("failed to connect to audit database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		sink = audit.NewSink(audit.Config{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
		}, cfg.Instance.ID, pool, logger)
		if err := sink.Start(ctx); err != nil {
			logger.Error("failed to start audit sink", "error", err)
			os.Exit(1)
		}

		logger.Info("audit sink started")
	}

	// Create core components
	registry := connection.NewRegistry(connection.Config{
		MaxPerUser: cfg.Limits.MaxConnectionsPerUser,
		MaxGlobal:  cfg.Limits.MaxGlobalConnections,
	})

	logCap := cfg.Router.LogCapacity
	if logCap < 0 {
		logCap = 0 // -1 in config selects the unbounded history
	}
	rt := router.New(router.Config{LogCapacity: logCap})

	queues := backpressure.NewHandler(backpressure.Config{
		BufferSize: cfg.Queue.BufferSize,
		Threshold:  cfg.Queue.BackpressureThreshold,
	})

	sessions := reconnect.NewManager(reconnect.Config{
		Window:      cfg.Reconnect.Window,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	})

	var opts []gateway.Option
	if sink != nil {
		opts = append(opts, gateway.WithAuditSink(sink))
	}
	if cfg.Auth.Enabled {
		opts = append(opts, gateway.WithVerifier(auth.NewVerifier(cfg.Auth.Secret)))
		logger.Info("handshake authentication enabled")
	}

	gw := gateway.NewServer(gateway.Config{
		InstanceID:            cfg.Instance.ID,
		WriteTimeout:          cfg.Server.WriteTimeout,
		FlushInterval:         cfg.Server.FlushInterval,
		FlushBatch:            cfg.Server.FlushBatch,
		HeartbeatInterval:     cfg.Heartbeat.Interval,
		StaleTimeout:          cfg.Heartbeat.StaleTimeout,
		SlowConsumerThreshold: cfg.Queue.SlowConsumerThreshold,
		SweepInterval:         cfg.Sweep.Interval,
	}, registry, rt, queues, sessions, logger, opts...)

	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}

	// Start metrics server
	metricsServer := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)

	// Start the client-facing server
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: createHandler(cfg, gw, registry, rt, queues, sessions, sink, pool),
	}

	go func() {
		logger.Info("listening for websocket clients", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	logger.Info("gateway running",
		"instance_id", cfg.Instance.ID,
		"ws_url", fmt.Sprintf("ws://localhost:%d/ws", cfg.Server.Port),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close client sockets before the listener so handlers drain instead of
	// racing new upgrades.
	gw.Stop(shutdownCtx)
	httpServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	if sink != nil {
		sink.Stop(shutdownCtx)
	}

	logger.Info("gateway stopped")
}

// createHandler builds the client-facing mux: the websocket endpoint, the
// health check, and the operator debug endpoints.
func createHandler(cfg *config.GatewayConfig, gw *gateway.Server, registry *connection.Registry, rt *router.Router, queues *backpressure.Handler, sessions *reconnect.Manager, sink *audit.Sink, db *pgxpool.Pool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", gw.ServeWS)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		health.Components["gateway"] = gw.Stats()

		// Check the audit database when the sink is wired
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["audit_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["audit_db"] = "connected"
			}
		}
		if sink != nil {
			health.Components["audit_sink"] = sink.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/connections", func(w http.ResponseWriter, r *http.Request) {
		instance := r.URL.Query().Get("instance")
		if instance == "" {
			instance = cfg.Instance.ID
		}
		conns := registry.InstanceConnections(instance)

		if v := r.URL.Query().Get("state"); v != "" {
			state, err := connection.ParseState(v)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			filtered := conns[:0]
			for _, c := range conns {
				if c.State == state {
					filtered = append(filtered, c)
				}
			}
			conns = filtered
		}

		// Limit to first 100 for debugging
		limit := 100
		showing := conns
		if len(showing) > limit {
			showing = showing[:limit]
		}

		items := make([]map[string]interface{}, 0, len(showing))
		for _, c := range showing {
			items = append(items, map[string]interface{}{
				"id":             c.ID,
				"user_id":        c.UserID,
				"state":          c.State,
				"subscriptions":  c.Subscriptions,
				"connected_at":   c.ConnectedAt,
				"last_heartbeat": c.LastHeartbeat,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":       len(conns),
			"showing":     len(items),
			"connections": items,
		})
	})

	mux.HandleFunc("/debug/sessions", func(w http.ResponseWriter, r *http.Request) {
		state := reconnect.SessionPending
		if s := r.URL.Query().Get("state"); s != "" {
			parsed, err := reconnect.ParseSessionState(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			state = parsed
		}

		// Empty user matches every user
		sess := sessions.Sessions(r.URL.Query().Get("user"), state)

		items := make([]map[string]interface{}, 0, len(sess))
		for _, s := range sess {
			items = append(items, map[string]interface{}{
				"id":            s.ID,
				"user_id":       s.UserID,
				"connection_id": s.ConnectionID,
				"state":         s.State,
				"attempts":      s.AttemptCount,
				"missed":        len(s.MissedMessages),
				"created_at":    s.CreatedAt,
				"can_reconnect": sessions.CanReconnect(s.ID),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":    len(items),
			"sessions": items,
		})
	})

	mux.HandleFunc("/debug/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		msgs := rt.MessageLog(r.URL.Query().Get("channel"), limit)

		items := make([]map[string]interface{}, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, map[string]interface{}{
				"id":         m.ID,
				"channel":    m.Channel,
				"priority":   m.Priority.String(),
				"sender_id":  m.SenderID,
				"created_at": m.CreatedAt,
				"bytes":      len(m.Payload),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":    len(items),
			"evicted":  rt.EvictedCount(),
			"messages": items,
		})
	})

	mux.HandleFunc("/debug/channels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channels": rt.ChannelStats(),
		})
	})

	mux.HandleFunc("/debug/queues", func(w http.ResponseWriter, r *http.Request) {
		stats := queues.AllStats()

		items := make([]map[string]interface{}, 0, len(stats))
		for _, s := range stats {
			items = append(items, map[string]interface{}{
				"connection_id": s.ConnectionID,
				"depth":         s.Depth,
				"oldest_age":    s.OldestAge.String(),
				"dropped":       s.Dropped,
				"slow":          s.Slow,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":        len(items),
			"total_queued": queues.TotalQueued(),
			"queues":       items,
		})
	})

	// Operator intervention: shed queued messages for a stuck connection.
	mux.HandleFunc("/debug/queues/drop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		connID := r.URL.Query().Get("conn")
		if connID == "" {
			http.Error(w, "conn parameter required", http.StatusBadRequest)
			return
		}

		strategy := backpressure.DropOldestFirst
		if s := r.URL.Query().Get("strategy"); s != "" {
			parsed, err := backpressure.ParseDropStrategy(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			strategy = parsed
		}

		// count 0 sheds just enough to bring the queue back to the threshold
		count := 0
		if v := r.URL.Query().Get("count"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
				return
			}
			count = n
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"connection_id": connID,
			"strategy":      strategy,
			"dropped":       queues.Drop(connID, strategy, count),
		})
	})

	return mux
}
