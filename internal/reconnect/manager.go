// Package reconnect implements the Reconnection Manager component.
//
// When a connection drops, the transport opens a session and the manager
// starts buffering the messages the client is missing. A client that comes
// back inside the window and attempt budget gets its session marked
// reconnected and the buffered messages handed over for replay; sessions
// that run out of attempts fail, and an expiry sweep retires the ones
// nobody came back for. Buffers live exactly as long as their pending
// session.
package reconnect

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// Manager owns reconnection sessions and their message buffers. All methods
// are safe for concurrent use.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session        // session id → session
	buffers  map[string][]model.Message // original connection id → missed messages
}

// NewManager returns a manager with no sessions.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		buffers:  make(map[string][]model.Message),
	}
}

// StartSession opens a pending session for a dropped connection and begins
// buffering messages addressed to it. Starting a second session for the
// same connection id resets the buffer; only messages from this point on
// are replayed.
func (m *Manager) StartSession(userID, connID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		ConnectionID: connID,
		State:        SessionPending,
		MaxAttempts:  m.cfg.MaxAttempts,
		CreatedAt:    time.Now(),
	}
	m.sessions[s.ID] = s
	m.buffers[connID] = nil
	return s.snapshot()
}

// BufferMessage records a message missed by the dropped connection. It
// reports false when no buffer exists for connID, which simply means no
// pending session is interested; the caller treats that as a no-op.
func (m *Manager) BufferMessage(connID string, msg model.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buffers[connID]; !ok {
		return false
	}
	m.buffers[connID] = append(m.buffers[connID], msg)
	return true
}

// AttemptReconnect spends one attempt on the session. Attempts against a
// session that is not pending fail without touching it. A pending session
// first records the attempt; an attempt past the budget fails the session
// and discards its buffer, while an attempt within the budget succeeds:
// the buffer moves onto the session as MissedMessages, the new connection
// id is recorded, and the session becomes reconnected.
func (m *Manager) AttemptReconnect(sessionID, newConnID string) AttemptResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.State != SessionPending {
		return AttemptResult{}
	}

	s.AttemptCount++
	s.LastAttemptAt = time.Now()

	if s.AttemptCount > s.MaxAttempts {
		s.State = SessionFailed
		delete(m.buffers, s.ConnectionID)
		return AttemptResult{}
	}

	missed := m.buffers[s.ConnectionID]
	delete(m.buffers, s.ConnectionID)

	s.MissedMessages = missed
	s.NewConnectionID = newConnID
	s.State = SessionReconnected
	at := s.LastAttemptAt
	s.ReconnectedAt = &at
	return AttemptResult{Success: true, MissedMessageCount: len(missed)}
}

// MissedMessages returns copies of the messages captured for a reconnected
// session, in arrival order. Sessions that never reconnected have none.
func (m *Manager) MissedMessages(sessionID string) []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	return cloneMessages(s.MissedMessages)
}

// GetSession returns a copy of the session record.
func (m *Manager) GetSession(sessionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// Sessions returns copies of sessions matching the filters, oldest first.
// An empty userID or state matches everything.
func (m *Manager) Sessions(userID string, state SessionState) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Session
	for _, s := range m.sessions {
		if userID != "" && s.UserID != userID {
			continue
		}
		if state != "" && s.State != state {
			continue
		}
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// CanReconnect reports whether the session is still pending with attempts
// remaining.
func (m *Manager) CanReconnect(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	return ok && s.State == SessionPending && s.AttemptCount < s.MaxAttempts
}

// ExpireSessions retires pending sessions idle longer than timeout and
// discards their buffers, returning how many it expired. timeout <= 0 uses
// the configured window. Terminal sessions are never touched.
func (m *Manager) ExpireSessions(timeout time.Duration) int {
	if timeout <= 0 {
		timeout = m.cfg.Window
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	expired := 0
	for _, s := range m.sessions {
		if s.State != SessionPending {
			continue
		}
		if m.expiryBasis(s).Before(cutoff) {
			s.State = SessionExpired
			delete(m.buffers, s.ConnectionID)
			expired++
		}
	}
	return expired
}

// expiryBasis picks the time idleness is measured from: the most recent
// attempt when there has been one, else the oldest buffered message, else
// session creation. The caller holds the lock.
func (m *Manager) expiryBasis(s *Session) time.Time {
	if s.AttemptCount > 0 && !s.LastAttemptAt.IsZero() {
		return s.LastAttemptAt
	}
	if buf := m.buffers[s.ConnectionID]; len(buf) > 0 {
		return buf[0].CreatedAt
	}
	return s.CreatedAt
}
