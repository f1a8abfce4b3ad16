package gateway

import (
	"encoding/json"
	"time"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// Config holds the websocket transport settings.
type Config struct {
	// InstanceID tags registrations with the serving gateway instance.
	InstanceID string

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// FlushInterval is the write pump cadence; each tick drains up to
	// FlushBatch messages from the connection's delivery queue.
	FlushInterval time.Duration
	FlushBatch    int

	// HeartbeatInterval is advertised to clients in the welcome frame.
	// Clients are expected to ping at this cadence.
	HeartbeatInterval time.Duration

	// StaleTimeout is the heartbeat age at which the sweep closes a
	// connection.
	StaleTimeout time.Duration

	// SlowConsumerThreshold is the queue head age at which a flagged
	// consumer is worth a warning.
	SlowConsumerThreshold time.Duration

	// SweepInterval is the housekeeping cadence. Stale connection checks,
	// session expiry, and gauge refresh all run on this ticker.
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:          5 * time.Second,
		FlushInterval:         50 * time.Millisecond,
		FlushBatch:            32,
		HeartbeatInterval:     30 * time.Second,
		StaleTimeout:          90 * time.Second,
		SlowConsumerThreshold: 5 * time.Second,
		SweepInterval:         10 * time.Second,
	}
}

// Actions a client may send.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionPublish     = "publish"
	actionPing        = "ping"
)

// Frame types the gateway sends.
const (
	frameWelcome      = "welcome"
	frameMessage      = "message"
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	framePong         = "pong"
	frameError        = "error"
)

// clientFrame is one control frame read from a client socket. Payloads are
// JSON documents; the gateway never inspects them.
type clientFrame struct {
	Action   string          `json:"action"`
	Channel  string          `json:"channel,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Priority string          `json:"priority,omitempty"`
}

// serverFrame is one frame written to a client socket. Fields are populated
// per Type; everything else stays omitted.
type serverFrame struct {
	Type string `json:"type"`

	// welcome
	ConnectionID     string `json:"connection_id,omitempty"`
	Resumed          bool   `json:"resumed,omitempty"`
	Replayed         int    `json:"replayed,omitempty"`
	HeartbeatSeconds int    `json:"heartbeat_interval_seconds,omitempty"`

	// message, subscribed, unsubscribed
	ID       string          `json:"id,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Priority string          `json:"priority,omitempty"`
	SentAt   int64           `json:"sent_at,omitempty"` // unix milliseconds

	// error
	Error string `json:"error,omitempty"`
}

// deliveryFrame converts a routed message to its wire form.
func deliveryFrame(m model.Message) serverFrame {
	return serverFrame{
		Type:     frameMessage,
		ID:       m.ID,
		Channel:  m.Channel,
		Payload:  json.RawMessage(m.Payload),
		Priority: m.Priority.String(),
		SentAt:   m.CreatedAt.UnixMilli(),
	}
}

func errorFrame(msg string) serverFrame {
	return serverFrame{Type: frameError, Error: msg}
}
