package connection

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegisterOption customizes a connection record at registration time.
type RegisterOption func(*ConnectionInfo)

// WithSubscriptions seeds the connection's channel list. The slice is copied.
func WithSubscriptions(channels []string) RegisterOption {
	return func(c *ConnectionInfo) {
		c.Subscriptions = append([]string(nil), channels...)
	}
}

// WithMetadata attaches transport attributes such as user agent or remote
// address to the connection record. The map is copied.
func WithMetadata(md map[string]string) RegisterOption {
	return func(c *ConnectionInfo) {
		if len(md) == 0 {
			return
		}
		m := make(map[string]string, len(md))
		for k, v := range md {
			m[k] = v
		}
		c.Metadata = m
	}
}

// Registry tracks live connections and enforces capacity limits. All methods
// are safe for concurrent use.
type Registry struct {
	cfg Config

	mu         sync.RWMutex
	conns      map[string]*ConnectionInfo
	byUser     map[string]map[string]struct{}
	byInstance map[string]map[string]struct{}
}

// NewRegistry returns an empty registry enforcing the limits in cfg.
// A limit of zero or below disables that check.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:        cfg,
		conns:      make(map[string]*ConnectionInfo),
		byUser:     make(map[string]map[string]struct{}),
		byInstance: make(map[string]map[string]struct{}),
	}
}

// Register admits a new connection for userID served by instanceID. Both
// capacity limits are checked before anything is recorded, so a rejected
// registration leaves the registry exactly as it was. The returned record
// is a copy with a freshly generated id.
func (r *Registry) Register(userID, instanceID string, opts ...RegisterOption) (ConnectionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MaxPerUser > 0 && len(r.byUser[userID]) >= r.cfg.MaxPerUser {
		return ConnectionInfo{}, fmt.Errorf("user %s at limit %d: %w", userID, r.cfg.MaxPerUser, ErrCapacityExceeded)
	}
	if r.cfg.MaxGlobal > 0 && len(r.conns) >= r.cfg.MaxGlobal {
		return ConnectionInfo{}, fmt.Errorf("instance at limit %d: %w", r.cfg.MaxGlobal, ErrCapacityExceeded)
	}

	now := time.Now()
	conn := &ConnectionInfo{
		ID:            uuid.NewString(),
		UserID:        userID,
		InstanceID:    instanceID,
		State:         StateConnected,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	for _, opt := range opts {
		opt(conn)
	}

	r.conns[conn.ID] = conn
	addToIndex(r.byUser, userID, conn.ID)
	addToIndex(r.byInstance, instanceID, conn.ID)
	return conn.snapshot(), nil
}

// Unregister removes the connection from every index. It reports whether
// the id was present.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	delete(r.conns, connID)
	removeFromIndex(r.byUser, conn.UserID, connID)
	removeFromIndex(r.byInstance, conn.InstanceID, connID)
	return true
}

// Get returns a copy of the connection record.
func (r *Registry) Get(connID string) (ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return ConnectionInfo{}, false
	}
	return conn.snapshot(), true
}

// UserConnections returns copies of every connection owned by userID.
func (r *Registry) UserConnections(userID string) []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byUser[userID])
}

// InstanceConnections returns copies of every connection served by instanceID.
func (r *Registry) InstanceConnections(instanceID string) []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.byInstance[instanceID])
}

// collect resolves an id set to record copies. The caller holds the lock.
func (r *Registry) collect(ids map[string]struct{}) []ConnectionInfo {
	if len(ids) == 0 {
		return nil
	}
	out := make([]ConnectionInfo, 0, len(ids))
	for id := range ids {
		if conn, ok := r.conns[id]; ok {
			out = append(out, conn.snapshot())
		}
	}
	return out
}

// UpdateHeartbeat stamps the current time on the connection. It reports
// whether the id was present.
func (r *Registry) UpdateHeartbeat(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.LastHeartbeat = time.Now()
	return true
}

// UpdateSubscriptions replaces the connection's channel list wholesale.
// It reports whether the id was present.
func (r *Registry) UpdateSubscriptions(connID string, channels []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.Subscriptions = append([]string(nil), channels...)
	return true
}

// UpdateState sets the lifecycle state. It reports whether the id was present.
func (r *Registry) UpdateState(connID string, state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	conn.State = state
	return true
}

// StaleConnections returns copies of every connection whose last heartbeat
// is older than threshold. It never mutates the registry; disconnecting a
// stale connection is the transport's decision.
func (r *Registry) StaleConnections(threshold time.Duration) []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-threshold)
	var out []ConnectionInfo
	for _, conn := range r.conns {
		if conn.LastHeartbeat.Before(cutoff) {
			out = append(out, conn.snapshot())
		}
	}
	return out
}

// CanConnect reports whether a registration for userID would currently pass
// both capacity checks. The answer is advisory: a concurrent Register may
// still claim the last slot first.
func (r *Registry) CanConnect(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.cfg.MaxPerUser > 0 && len(r.byUser[userID]) >= r.cfg.MaxPerUser {
		return false
	}
	if r.cfg.MaxGlobal > 0 && len(r.conns) >= r.cfg.MaxGlobal {
		return false
	}
	return true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func addToIndex(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeFromIndex(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}
