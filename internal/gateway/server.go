package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghantakiran/axion-stock-sub012/internal/auth"
	"github.com/ghantakiran/axion-stock-sub012/internal/backpressure"
	"github.com/ghantakiran/axion-stock-sub012/internal/connection"
	"github.com/ghantakiran/axion-stock-sub012/internal/metrics"
	"github.com/ghantakiran/axion-stock-sub012/internal/model"
	"github.com/ghantakiran/axion-stock-sub012/internal/reconnect"
	"github.com/ghantakiran/axion-stock-sub012/internal/router"
)

// Recorder receives a copy of every routed message for offline audit.
// *audit.Sink satisfies it.
type Recorder interface {
	Record(msg model.Message, delivered int)
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithAuditSink attaches a delivery audit recorder.
func WithAuditSink(r Recorder) Option {
	return func(s *Server) { s.sink = r }
}

// WithVerifier makes handshake tokens mandatory; the user id comes from the
// token subject instead of the query string.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// Server terminates client websockets and glues the cores together: the
// registry for identity and capacity, the router for fan-out, the
// backpressure handler for delivery pacing, and the reconnect manager for
// recovery after drops. The cores never touch a socket; all I/O lives here.
type Server struct {
	cfg    Config
	logger *slog.Logger

	registry *connection.Registry
	router   *router.Router
	queues   *backpressure.Handler
	sessions *reconnect.Manager

	sink     Recorder       // optional
	verifier *auth.Verifier // optional

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*client
	recovery map[string][]string // pending session id → channels to restore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a gateway over the given cores.
func NewServer(cfg Config, registry *connection.Registry, rt *router.Router, queues *backpressure.Handler, sessions *reconnect.Manager, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		router:   rt,
		queues:   queues,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		recovery: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the housekeeping sweep.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.sweepLoop()

	s.logger.Info("gateway started",
		"instance_id", s.cfg.InstanceID,
		"sweep_interval", s.cfg.SweepInterval,
	)
	return nil
}

// Stop closes every client socket and waits for the pumps to wind down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gateway")

	if s.cancel != nil {
		s.cancel()
	}

	s.mu.RLock()
	open := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		open = append(open, c)
	}
	s.mu.RUnlock()
	for _, c := range open {
		c.shutdown(websocket.CloseGoingAway, "server shutting down", reasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout, abandoning pumps")
	}

	s.logger.Info("gateway stopped")
	return nil
}

// ServeWS upgrades one websocket connection and runs its read pump until
// the socket dies. Mount it on the transport mux.
//
// Handshake query parameters: user (or token when auth is on), channels as
// a comma-separated initial subscription list, and session or conn to
// resume a pending reconnection session.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.ctx != nil {
		select {
		case <-s.ctx.Done():
			http.Error(w, "gateway shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
	}

	userID, err := s.identify(r)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("auth").Inc()
		s.logger.Warn("handshake rejected", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	// Refuse over-capacity users before paying for the upgrade.
	if !s.registry.CanConnect(userID) {
		metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		http.Error(w, "capacity exceeded", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	channels := splitChannels(r.URL.Query().Get("channels"))
	conn, err := s.registry.Register(userID, s.cfg.InstanceID,
		connection.WithSubscriptions(channels),
		connection.WithMetadata(map[string]string{
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		}),
	)
	if err != nil {
		// Lost the race for the last slot between CanConnect and Register.
		metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity exceeded"), deadline)
		ws.Close()
		return
	}
	metrics.ConnectionsTotal.Inc()

	c := newClient(s, ws, conn.ID, userID)
	s.mu.Lock()
	s.clients[conn.ID] = c
	s.mu.Unlock()

	for _, ch := range channels {
		s.router.Subscribe(conn.ID, ch)
	}

	resumed, replayed := false, 0
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		// Clients know the connection id from their last welcome frame;
		// session ids are server-side bookkeeping.
		if old := r.URL.Query().Get("conn"); old != "" {
			sessionID, _ = s.pendingSessionFor(userID, old)
		}
	}
	if sessionID != "" {
		resumed, replayed = s.resume(sessionID, conn.ID)
	}

	s.logger.Info("connection open",
		"conn_id", conn.ID,
		"user", userID,
		"channels", len(channels),
		"resumed", resumed,
		"replayed", replayed,
	)

	c.writeFrame(serverFrame{
		Type:             frameWelcome,
		ConnectionID:     conn.ID,
		Resumed:          resumed,
		Replayed:         replayed,
		HeartbeatSeconds: int(s.cfg.HeartbeatInterval / time.Second),
	})

	s.wg.Add(1)
	go c.writePump()
	c.readPump()
}

// identify resolves the connecting user. With a verifier installed the
// token is the only accepted identity; otherwise the user query parameter
// names it directly.
func (s *Server) identify(r *http.Request) (string, error) {
	if s.verifier != nil {
		return s.verifier.Verify(r.URL.Query().Get("token"))
	}
	return r.URL.Query().Get("user"), nil
}

// pendingSessionFor finds the user's pending session opened for a previous
// connection id.
func (s *Server) pendingSessionFor(userID, connID string) (string, bool) {
	for _, sess := range s.sessions.Sessions(userID, reconnect.SessionPending) {
		if sess.ConnectionID == connID {
			return sess.ID, true
		}
	}
	return "", false
}

// resume attempts to take over a pending session for a fresh connection.
// On success the old connection's subscriptions move to the new id and the
// missed messages are queued for delivery.
func (s *Server) resume(sessionID, newConnID string) (resumed bool, replayed int) {
	res := s.sessions.AttemptReconnect(sessionID, newConnID)
	if !res.Success {
		metrics.ReconnectAttempts.WithLabelValues("failed").Inc()
		s.logger.Warn("reconnect attempt failed", "session_id", sessionID, "conn_id", newConnID)
		return false, 0
	}
	metrics.ReconnectAttempts.WithLabelValues("success").Inc()

	sess, _ := s.sessions.GetSession(sessionID)

	s.mu.Lock()
	channels := s.recovery[sessionID]
	delete(s.recovery, sessionID)
	s.mu.Unlock()

	for _, ch := range channels {
		s.router.Unsubscribe(sess.ConnectionID, ch)
		s.router.Subscribe(newConnID, ch)
	}
	if info, ok := s.registry.Get(newConnID); ok {
		s.registry.UpdateSubscriptions(newConnID, mergeChannels(info.Subscriptions, channels))
	}

	for _, m := range s.sessions.MissedMessages(sessionID) {
		if s.queues.Enqueue(newConnID, m) {
			replayed++
		} else {
			metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
		}
	}
	if replayed > 0 {
		metrics.MessagesReplayed.Add(float64(replayed))
	}

	s.logger.Info("session resumed",
		"session_id", sessionID,
		"old_conn_id", sess.ConnectionID,
		"conn_id", newConnID,
		"channels", len(channels),
		"replayed", replayed,
	)
	return true, replayed
}

// disconnect runs the server-side teardown for a dead socket: the registry
// record and delivery queue go, and a reconnection session opens in their
// place. Router subscriptions intentionally stay on the dead id so channel
// fan-out keeps resolving it; deliver turns those into buffered missed
// messages until the session leaves pending.
func (s *Server) disconnect(c *client, reason string) {
	s.mu.Lock()
	if s.clients[c.connID] != c {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.connID)
	s.mu.Unlock()

	var channels []string
	if info, ok := s.registry.Get(c.connID); ok {
		channels = info.Subscriptions
	}
	s.registry.Unregister(c.connID)
	s.queues.Release(c.connID)

	sess := s.sessions.StartSession(c.userID, c.connID)
	s.mu.Lock()
	s.recovery[sess.ID] = channels
	s.mu.Unlock()

	metrics.Disconnects.WithLabelValues(reason).Inc()
	metrics.SessionsStarted.Inc()
	s.logger.Info("connection closed",
		"conn_id", c.connID,
		"user", c.userID,
		"reason", reason,
		"session_id", sess.ID,
	)
}

// subscribe adds a channel subscription and mirrors it on the registry
// record.
func (s *Server) subscribe(connID, channel string) bool {
	if !s.router.Subscribe(connID, channel) {
		return false
	}
	if info, ok := s.registry.Get(connID); ok {
		s.registry.UpdateSubscriptions(connID, append(info.Subscriptions, channel))
	}
	return true
}

// unsubscribe removes a channel subscription and mirrors it on the registry
// record.
func (s *Server) unsubscribe(connID, channel string) bool {
	if !s.router.Unsubscribe(connID, channel) {
		return false
	}
	if info, ok := s.registry.Get(connID); ok {
		out := make([]string, 0, len(info.Subscriptions))
		for _, ch := range info.Subscriptions {
			if ch != channel {
				out = append(out, ch)
			}
		}
		s.registry.UpdateSubscriptions(connID, out)
	}
	return true
}

// Publish routes a payload to every subscriber of channel and hands the
// resolved targets to their delivery queues. It returns how many targets
// accepted the message.
func (s *Server) Publish(channel string, payload []byte, opts ...model.MessageOption) int {
	msg, targets := s.router.Broadcast(channel, payload, opts...)
	metrics.MessagesRouted.WithLabelValues(channel).Inc()
	return s.deliver(msg, targets)
}

// Send routes a payload to a single connection. It reports whether the
// message reached a queue or a session buffer.
func (s *Server) Send(connID string, payload []byte, opts ...model.MessageOption) bool {
	msg, targets := s.router.Unicast(connID, payload, opts...)
	return s.deliver(msg, targets) > 0
}

// SendUser routes a payload to every connection the user currently has.
func (s *Server) SendUser(userID string, payload []byte, opts ...model.MessageOption) int {
	conns := s.registry.UserConnections(userID)
	if len(conns) == 0 {
		return 0
	}
	ids := make([]string, len(conns))
	for i, info := range conns {
		ids[i] = info.ID
	}
	msg, targets := s.router.Multicast(ids, payload, opts...)
	return s.deliver(msg, targets)
}

// deliver fans a routed message out to its targets. Live targets get the
// message queued; targets with a pending session get it buffered for
// replay; everything else is dropped and counted. The audit sink sees
// every message exactly once, with the accepted count.
func (s *Server) deliver(msg model.Message, targets int) int {
	accepted := 0
	if targets > 0 {
		s.mu.RLock()
		live := make(map[string]bool, len(msg.Targets))
		for _, id := range msg.Targets {
			_, ok := s.clients[id]
			live[id] = ok
		}
		s.mu.RUnlock()

		for _, id := range msg.Targets {
			switch {
			case live[id]:
				if s.queues.Enqueue(id, msg) {
					accepted++
					metrics.MessagesDelivered.Inc()
				} else {
					metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
					s.logger.Warn("delivery queue full, message dropped",
						"conn_id", id,
						"message_id", msg.ID,
					)
				}
			case s.sessions.BufferMessage(id, msg):
				accepted++
				metrics.MessagesBuffered.Inc()
			default:
				metrics.MessagesDropped.WithLabelValues("no_receiver").Inc()
			}
		}
	}

	if s.sink != nil {
		s.sink.Record(msg, accepted)
	}
	return accepted
}

// Stats is a point-in-time view of the gateway for health reporting.
type Stats struct {
	Connections     int `json:"connections"`
	Channels        int `json:"channels"`
	QueuedMessages  int `json:"queued_messages"`
	SlowConsumers   int `json:"slow_consumers"`
	PendingSessions int `json:"pending_sessions"`
}

// Stats reports the current gateway state.
func (s *Server) Stats() Stats {
	return Stats{
		Connections:     s.registry.Count(),
		Channels:        len(s.router.ChannelStats()),
		QueuedMessages:  s.queues.TotalQueued(),
		SlowConsumers:   len(s.queues.SlowConsumers()),
		PendingSessions: len(s.sessions.Sessions("", reconnect.SessionPending)),
	}
}

// splitChannels parses the comma-separated channels query parameter.
func splitChannels(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// mergeChannels unions two channel lists preserving first-seen order.
func mergeChannels(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, ch := range a {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	for _, ch := range b {
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			out = append(out, ch)
		}
	}
	return out
}
