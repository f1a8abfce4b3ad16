package connection

import (
	"errors"
	"fmt"
	"time"
)

// ErrCapacityExceeded is returned by Register when accepting the connection
// would violate the per-user or global capacity limit. The transport must
// reject the connection attempt before completing any handshake.
var ErrCapacityExceeded = errors.New("connection capacity exceeded")

// State is the lifecycle state of a logical connection.
type State string

const (
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateReconnecting  State = "reconnecting"
	StateDisconnected  State = "disconnected"
)

// ParseState converts the string form to a State. Unknown values are an
// error, never a silent default.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateConnected, StateDisconnecting, StateReconnecting, StateDisconnected:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown connection state %q", s)
	}
}

// ConnectionInfo describes one logical connection. The registry owns the
// canonical record; every accessor returns an independent copy.
type ConnectionInfo struct {
	ID            string            // uuid, generated at registration, immutable
	UserID        string            // owning user
	InstanceID    string            // serving gateway instance
	Subscriptions []string          // ordered channel names
	State         State             // lifecycle state
	ConnectedAt   time.Time         // registration time
	LastHeartbeat time.Time         // most recent heartbeat
	Metadata      map[string]string // opaque transport attributes
}

// snapshot returns a deep copy safe to hand outside the registry lock.
func (c *ConnectionInfo) snapshot() ConnectionInfo {
	out := *c
	out.Subscriptions = append([]string(nil), c.Subscriptions...)
	if c.Metadata != nil {
		md := make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	return out
}

// Config holds Connection Registry limits.
type Config struct {
	// MaxPerUser caps simultaneous connections per user id.
	MaxPerUser int

	// MaxGlobal caps simultaneous connections process-wide.
	MaxGlobal int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerUser: 5,
		MaxGlobal:  10000,
	}
}
