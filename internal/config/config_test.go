package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
  az: us-east-1a
server:
  port: 9001
limits:
  max_connections_per_user: 3
  max_global_connections: 500
queue:
  buffer_size: 100
  backpressure_threshold: 80
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-gateway" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-gateway")
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Limits.MaxConnectionsPerUser != 3 {
		t.Errorf("Limits.MaxConnectionsPerUser = %d, want 3", cfg.Limits.MaxConnectionsPerUser)
	}
	if cfg.Queue.BufferSize != 100 {
		t.Errorf("Queue.BufferSize = %d, want 100", cfg.Queue.BufferSize)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AUDIT_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-gateway
audit:
  enabled: true
  postgres:
    host: localhost
    name: audit_db
    user: audituser
    password: ${TEST_AUDIT_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audit.Postgres.Password != "secret123" {
		t.Errorf("Audit.Postgres.Password = %q, want %q", cfg.Audit.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Limits.MaxConnectionsPerUser != DefaultMaxPerUser {
		t.Errorf("Limits.MaxConnectionsPerUser = %d, want default %d", cfg.Limits.MaxConnectionsPerUser, DefaultMaxPerUser)
	}
	if cfg.Queue.BufferSize != DefaultQueueBufferSize {
		t.Errorf("Queue.BufferSize = %d, want default %d", cfg.Queue.BufferSize, DefaultQueueBufferSize)
	}
	if cfg.Queue.BackpressureThreshold != DefaultBackpressureThreshold {
		t.Errorf("Queue.BackpressureThreshold = %d, want default %d", cfg.Queue.BackpressureThreshold, DefaultBackpressureThreshold)
	}
	if cfg.Heartbeat.Interval != DefaultHeartbeatInterval {
		t.Errorf("Heartbeat.Interval = %v, want default %v", cfg.Heartbeat.Interval, DefaultHeartbeatInterval)
	}
	if cfg.Reconnect.Window != DefaultReconnectWindow {
		t.Errorf("Reconnect.Window = %v, want default %v", cfg.Reconnect.Window, DefaultReconnectWindow)
	}
	if cfg.Router.LogCapacity != DefaultLogCapacity {
		t.Errorf("Router.LogCapacity = %d, want default %d", cfg.Router.LogCapacity, DefaultLogCapacity)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestLoadWithDefaults_UnboundedLogSurvives(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
router:
  log_capacity: -1
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Router.LogCapacity != -1 {
		t.Errorf("Router.LogCapacity = %d, want -1", cfg.Router.LogCapacity)
	}
}

func TestValidate(t *testing.T) {
	valid := func() GatewayConfig {
		cfg := GatewayConfig{Instance: InstanceConfig{ID: "test"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *GatewayConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "bad server port",
			mutate:  func(c *GatewayConfig) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "negative flush interval",
			mutate:  func(c *GatewayConfig) { c.Server.FlushInterval = -time.Second },
			wantErr: "server.flush_interval must be > 0",
		},
		{
			name:    "auth enabled without secret",
			mutate:  func(c *GatewayConfig) { c.Auth.Enabled = true },
			wantErr: "auth.secret is required when auth is enabled",
		},
		{
			name:    "zero per-user limit",
			mutate:  func(c *GatewayConfig) { c.Limits.MaxConnectionsPerUser = -1 },
			wantErr: "limits.max_connections_per_user must be >= 1",
		},
		{
			name: "threshold exceeds buffer",
			mutate: func(c *GatewayConfig) {
				c.Queue.BufferSize = 10
				c.Queue.BackpressureThreshold = 20
			},
			wantErr: "queue.backpressure_threshold (20) cannot exceed buffer_size (10)",
		},
		{
			name:    "zero reconnect attempts",
			mutate:  func(c *GatewayConfig) { c.Reconnect.MaxAttempts = -2 },
			wantErr: "reconnect.max_attempts must be >= 1",
		},
		{
			name:    "log capacity below -1",
			mutate:  func(c *GatewayConfig) { c.Router.LogCapacity = -5 },
			wantErr: "router.log_capacity must be >= -1, got -5",
		},
		{
			name: "audit enabled without postgres host",
			mutate: func(c *GatewayConfig) {
				c.Audit.Enabled = true
				c.Audit.Postgres = DBConfig{Name: "db", User: "u", Password: "p", MaxConns: 5}
			},
			wantErr: "audit.postgres.host is required",
		},
		{
			name: "audit min_conns exceeds max_conns",
			mutate: func(c *GatewayConfig) {
				c.Audit.Enabled = true
				c.Audit.Postgres = DBConfig{Host: "localhost", Name: "db", User: "u", Password: "p", MaxConns: 5, MinConns: 10}
			},
			wantErr: "audit.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "valid config",
			mutate:  func(c *GatewayConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() on missing file = nil error")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
