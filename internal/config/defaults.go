package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerPort            = 8080
	DefaultWriteTimeout          = 5 * time.Second
	DefaultFlushInterval         = 50 * time.Millisecond
	DefaultFlushBatch            = 32
	DefaultMaxPerUser            = 5
	DefaultMaxGlobal             = 10000
	DefaultQueueBufferSize       = 500
	DefaultBackpressureThreshold = 400
	DefaultSlowConsumerThreshold = 5 * time.Second
	DefaultHeartbeatInterval     = 30 * time.Second
	DefaultStaleTimeout          = 90 * time.Second
	DefaultReconnectWindow       = 5 * time.Minute
	DefaultMaxAttempts           = 3
	DefaultLogCapacity           = 10000
	DefaultSweepInterval         = 10 * time.Second
	DefaultMetricsPort           = 9090
	DefaultMetricsPath           = "/metrics"
	DefaultAuditBatchSize        = 500
	DefaultAuditFlushInterval    = 2 * time.Second
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
)

func (c *GatewayConfig) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.FlushInterval == 0 {
		c.Server.FlushInterval = DefaultFlushInterval
	}
	if c.Server.FlushBatch == 0 {
		c.Server.FlushBatch = DefaultFlushBatch
	}

	// Limits defaults
	if c.Limits.MaxConnectionsPerUser == 0 {
		c.Limits.MaxConnectionsPerUser = DefaultMaxPerUser
	}
	if c.Limits.MaxGlobalConnections == 0 {
		c.Limits.MaxGlobalConnections = DefaultMaxGlobal
	}

	// Queue defaults
	if c.Queue.BufferSize == 0 {
		c.Queue.BufferSize = DefaultQueueBufferSize
	}
	if c.Queue.BackpressureThreshold == 0 {
		c.Queue.BackpressureThreshold = DefaultBackpressureThreshold
	}
	if c.Queue.SlowConsumerThreshold == 0 {
		c.Queue.SlowConsumerThreshold = DefaultSlowConsumerThreshold
	}

	// Heartbeat defaults
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	if c.Heartbeat.StaleTimeout == 0 {
		c.Heartbeat.StaleTimeout = DefaultStaleTimeout
	}

	// Reconnect defaults
	if c.Reconnect.Window == 0 {
		c.Reconnect.Window = DefaultReconnectWindow
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}

	// Router defaults: -1 means unbounded and survives; 0 means unset.
	if c.Router.LogCapacity == 0 {
		c.Router.LogCapacity = DefaultLogCapacity
	}

	// Sweep defaults
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = DefaultSweepInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Audit defaults
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultAuditBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultAuditFlushInterval
	}
	if c.Audit.Enabled {
		applyDBDefaults(&c.Audit.Postgres)
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
