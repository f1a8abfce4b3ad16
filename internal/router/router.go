// Package router implements the Message Router component.
//
// The router keeps the channel subscription index and an in-order history
// of every message it routes. Targets are resolved at dispatch time: a
// broadcast addresses whoever subscribes to the channel at the moment Route
// runs, and the resolved list is recorded on the message itself so the
// transport delivers to exactly that snapshot.
//
// The router performs no delivery. It hands the resolved message back to
// the caller; pushing frames down sockets is the transport's job.
package router

import (
	"sort"
	"sync"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// Config holds Message Router settings.
type Config struct {
	// LogCapacity bounds the routed-message history. Zero retains every
	// routed message for the life of the process; a positive value turns
	// the history into a ring that evicts oldest entries first.
	LogCapacity int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{LogCapacity: 10000}
}

// Router resolves message targets and records routing history. All methods
// are safe for concurrent use.
type Router struct {
	cfg Config

	mu   sync.RWMutex
	subs map[string]map[string]struct{} // channel → subscriber connection ids
	log  *messageLog
}

// New returns an empty router.
func New(cfg Config) *Router {
	return &Router{
		cfg:  cfg,
		subs: make(map[string]map[string]struct{}),
		log:  newMessageLog(cfg.LogCapacity),
	}
}

// Subscribe adds connID to the channel's subscriber set. It reports whether
// the subscription is new; subscribing twice is a no-op.
func (r *Router) Subscribe(connID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[channel]
	if !ok {
		set = make(map[string]struct{})
		r.subs[channel] = set
	}
	if _, exists := set[connID]; exists {
		return false
	}
	set[connID] = struct{}{}
	return true
}

// Unsubscribe removes connID from the channel's subscriber set. It reports
// whether the subscription existed. Empty channels are forgotten entirely.
func (r *Router) Unsubscribe(connID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[channel]
	if !ok {
		return false
	}
	if _, exists := set[connID]; !exists {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.subs, channel)
	}
	return true
}

// Subscribers returns the channel's subscriber ids, sorted. The slice is a
// snapshot; later subscription changes do not affect it.
func (r *Router) Subscribers(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscriberList(channel)
}

// subscriberList collects and sorts a channel's subscribers. The caller
// holds the lock.
func (r *Router) subscriberList(channel string) []string {
	set := r.subs[channel]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Broadcast routes a payload to every current subscriber of channel.
func (r *Router) Broadcast(channel string, payload []byte, opts ...model.MessageOption) (model.Message, int) {
	return r.Route(model.NewBroadcast(channel, payload, opts...))
}

// Unicast routes a payload to a single connection.
func (r *Router) Unicast(connID string, payload []byte, opts ...model.MessageOption) (model.Message, int) {
	return r.Route(model.NewUnicast(connID, payload, opts...))
}

// Multicast routes a payload to an explicit set of connections.
func (r *Router) Multicast(connIDs []string, payload []byte, opts ...model.MessageOption) (model.Message, int) {
	return r.Route(model.NewMulticast(connIDs, payload, opts...))
}

// Route resolves the message's targets and appends it to the history.
// Explicit targets win; a message without them is addressed to the
// channel's subscribers as of this call, and the resolved list is written
// back onto the message before it is logged. Route returns the resolved
// message and its target count; delivery is the caller's responsibility.
func (r *Router) Route(msg model.Message) (model.Message, int) {
	out := msg.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(out.Targets) == 0 {
		out.Targets = r.subscriberList(out.Channel)
	}
	r.log.append(out.Clone())
	return out, len(out.Targets)
}

// MessageLog returns routed messages oldest first. A non-empty channel
// filters to that channel; limit > 0 keeps only the newest limit entries.
func (r *Router) MessageLog(channel string, limit int) []model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Message
	r.log.each(func(m model.Message) {
		if channel != "" && m.Channel != channel {
			return
		}
		out = append(out, m.Clone())
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ChannelStats returns the subscriber count per channel. Channels with no
// subscribers do not appear.
func (r *Router) ChannelStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.subs))
	for channel, set := range r.subs {
		out[channel] = len(set)
	}
	return out
}

// EvictedCount returns how many messages have rolled off a bounded history.
// It stays zero when LogCapacity is zero.
func (r *Router) EvictedCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.log.evicted
}
