package reconnect

import (
	"fmt"
	"time"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// SessionState is the lifecycle state of a reconnection session. Pending is
// the only non-terminal state; reconnected, failed, and expired sessions
// never change again.
type SessionState string

const (
	SessionPending     SessionState = "pending"
	SessionReconnected SessionState = "reconnected"
	SessionFailed      SessionState = "failed"
	SessionExpired     SessionState = "expired"
)

// ParseSessionState converts the string form to a SessionState. Unknown
// values are an error, never a silent default.
func ParseSessionState(s string) (SessionState, error) {
	switch SessionState(s) {
	case SessionPending, SessionReconnected, SessionFailed, SessionExpired:
		return SessionState(s), nil
	default:
		return "", fmt.Errorf("unknown session state %q", s)
	}
}

// Session tracks one disconnected client's chance to come back. The manager
// owns the canonical record; every accessor returns an independent copy.
type Session struct {
	ID              string
	UserID          string
	ConnectionID    string // the connection that dropped; keys the buffer
	NewConnectionID string // set when a reconnect succeeds
	State           SessionState
	AttemptCount    int
	MaxAttempts     int
	CreatedAt       time.Time
	LastAttemptAt   time.Time  // zero until the first attempt
	ReconnectedAt   *time.Time // nil until a reconnect succeeds
	MissedMessages  []model.Message
}

// snapshot returns a deep copy safe to hand outside the manager lock.
func (s *Session) snapshot() Session {
	out := *s
	out.MissedMessages = cloneMessages(s.MissedMessages)
	if s.ReconnectedAt != nil {
		t := *s.ReconnectedAt
		out.ReconnectedAt = &t
	}
	return out
}

func cloneMessages(msgs []model.Message) []model.Message {
	if msgs == nil {
		return nil
	}
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// AttemptResult reports the outcome of one reconnection attempt.
type AttemptResult struct {
	Success            bool
	MissedMessageCount int
}

// Config holds Reconnection Manager settings.
type Config struct {
	// Window is how long a pending session stays eligible before expiry
	// sweeps may retire it.
	Window time.Duration

	// MaxAttempts caps reconnection attempts per session.
	MaxAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:      5 * time.Minute,
		MaxAttempts: 3,
	}
}
