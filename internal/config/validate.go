package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be > 0")
	}
	if c.Server.FlushInterval <= 0 {
		return errors.New("server.flush_interval must be > 0")
	}
	if c.Server.FlushBatch < 1 {
		return errors.New("server.flush_batch must be >= 1")
	}

	if c.Auth.Enabled && c.Auth.Secret == "" {
		return errors.New("auth.secret is required when auth is enabled")
	}

	if c.Limits.MaxConnectionsPerUser < 1 {
		return errors.New("limits.max_connections_per_user must be >= 1")
	}
	if c.Limits.MaxGlobalConnections < 1 {
		return errors.New("limits.max_global_connections must be >= 1")
	}

	if c.Queue.BufferSize < 1 {
		return errors.New("queue.buffer_size must be >= 1")
	}
	if c.Queue.BackpressureThreshold < 1 {
		return errors.New("queue.backpressure_threshold must be >= 1")
	}
	if c.Queue.BackpressureThreshold > c.Queue.BufferSize {
		return fmt.Errorf("queue.backpressure_threshold (%d) cannot exceed buffer_size (%d)",
			c.Queue.BackpressureThreshold, c.Queue.BufferSize)
	}

	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat.interval must be > 0")
	}
	if c.Heartbeat.StaleTimeout <= 0 {
		return errors.New("heartbeat.stale_timeout must be > 0")
	}

	if c.Reconnect.Window <= 0 {
		return errors.New("reconnect.window must be > 0")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}

	if c.Router.LogCapacity < -1 {
		return fmt.Errorf("router.log_capacity must be >= -1, got %d", c.Router.LogCapacity)
	}

	if c.Sweep.Interval <= 0 {
		return errors.New("sweep.interval must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if c.Audit.Enabled {
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if err := c.Audit.Postgres.validate("audit.postgres"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
