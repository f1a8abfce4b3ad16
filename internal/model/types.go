package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Priority
// -----------------------------------------------------------------------------

// Priority orders messages for delivery and load shedding.
// Higher values matter more: critical > high > normal > low.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the config/wire name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts the string form to a Priority. It is the single
// string-to-priority conversion point: unknown values are an error, never a
// silent default.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

// Message is one routed unit of delivery.
//
// A message is immutable once routed: the router back-fills Targets before
// logging, and from then on every component hands out copies. Payload is
// shared read-only between copies; Targets is always copied.
type Message struct {
	ID        string    // uuid, generated at construction
	Channel   string    // empty for unicast/multicast
	Payload   []byte    // opaque application bytes
	Priority  Priority  // delivery/shedding priority
	CreatedAt time.Time // construction time
	SenderID  string    // optional originating connection or user id
	Targets   []string  // explicit target connection ids; wins over Channel
}

// MessageOption configures optional Message fields at construction.
type MessageOption func(*Message)

// WithPriority sets the message priority (default PriorityNormal).
func WithPriority(p Priority) MessageOption {
	return func(m *Message) {
		m.Priority = p
	}
}

// WithSender records the originating connection or user id.
func WithSender(id string) MessageOption {
	return func(m *Message) {
		m.SenderID = id
	}
}

// NewBroadcast builds a channel-addressed message. Targets stay empty here;
// the router resolves them from the channel's subscribers at dispatch time.
func NewBroadcast(channel string, payload []byte, opts ...MessageOption) Message {
	return newMessage(channel, payload, nil, opts)
}

// NewUnicast builds a message addressed to a single connection.
func NewUnicast(connID string, payload []byte, opts ...MessageOption) Message {
	return newMessage("", payload, []string{connID}, opts)
}

// NewMulticast builds a message addressed to an explicit connection set.
func NewMulticast(connIDs []string, payload []byte, opts ...MessageOption) Message {
	return newMessage("", payload, append([]string(nil), connIDs...), opts)
}

func newMessage(channel string, payload []byte, targets []string, opts []MessageOption) Message {
	m := Message{
		ID:        uuid.NewString(),
		Channel:   channel,
		Payload:   payload,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
		Targets:   targets,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Clone returns a copy whose Targets slice is independent of the original.
// Payload is shared; callers treat it as read-only.
func (m Message) Clone() Message {
	out := m
	if m.Targets != nil {
		out.Targets = append([]string(nil), m.Targets...)
	}
	return out
}
