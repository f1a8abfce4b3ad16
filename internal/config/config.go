package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
	Queue     QueueConfig     `yaml:"queue"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Router    RouterConfig    `yaml:"router"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Audit     AuditConfig     `yaml:"audit"`
}

// InstanceConfig identifies this gateway.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// ServerConfig holds the WebSocket listener settings.
type ServerConfig struct {
	Port          int           `yaml:"port"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	FlushInterval time.Duration `yaml:"flush_interval"` // write-pump dequeue cadence
	FlushBatch    int           `yaml:"flush_batch"`    // max messages per flush
}

// AuthConfig holds handshake authentication settings. When enabled, clients
// must present an HS256-signed JWT whose subject names the user; when
// disabled, the user comes from the handshake query string.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// LimitsConfig holds connection capacity limits.
type LimitsConfig struct {
	MaxConnectionsPerUser int `yaml:"max_connections_per_user"`
	MaxGlobalConnections  int `yaml:"max_global_connections"`
}

// QueueConfig holds per-connection delivery queue settings.
type QueueConfig struct {
	BufferSize            int           `yaml:"buffer_size"`
	BackpressureThreshold int           `yaml:"backpressure_threshold"`
	SlowConsumerThreshold time.Duration `yaml:"slow_consumer_threshold"` // alerting hint for operators
}

// HeartbeatConfig holds liveness settings. Interval is what clients are told
// to send at; StaleTimeout is how long the sweep waits before calling a
// connection dead.
type HeartbeatConfig struct {
	Interval     time.Duration `yaml:"interval"`
	StaleTimeout time.Duration `yaml:"stale_timeout"`
}

// ReconnectConfig holds reconnection session settings.
type ReconnectConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// RouterConfig holds message routing settings. LogCapacity bounds the
// routed-message history; -1 keeps the full history, unset uses the default.
type RouterConfig struct {
	LogCapacity int `yaml:"log_capacity"`
}

// SweepConfig holds the housekeeping ticker settings.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// AuditConfig holds the optional delivery audit sink settings. When enabled
// the gateway writes a copy of every routed message to Postgres; the core
// never reads it back.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Postgres      DBConfig      `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
