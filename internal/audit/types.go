package audit

import "time"

// Config contains configuration for the audit sink.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// deliveryRow represents a row to be inserted into the message_audit table.
type deliveryRow struct {
	MessageID    string // UUID
	Channel      string
	SenderID     string
	Priority     string
	CreatedAt    int64 // Microseconds
	RoutedAt     int64 // Microseconds
	TargetCount  int
	Delivered    int
	PayloadBytes int
	InstanceID   string
}

// SinkMetrics holds metrics for the sink.
type SinkMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
