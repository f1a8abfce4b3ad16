// wsprobe drives synthetic websocket clients against a running gateway and
// prints aggregate delivery statistics.
// Usage: go run ./cmd/wsprobe -url ws://localhost:8080/ws -users 5 -publish-every 500ms
//
// Each client subscribes to the probe channels, publishes on a timer, sends
// heartbeat pings, and reconnects with its previous connection id so missed
// messages replay.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghantakiran/axion-stock-sub012/internal/auth"
)

const (
	reconnectBaseWait = time.Second
	reconnectMaxWait  = 30 * time.Second
)

// clientFrame mirrors the gateway's inbound frame shape.
type clientFrame struct {
	Action   string          `json:"action"`
	Channel  string          `json:"channel,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Priority string          `json:"priority,omitempty"`
}

// serverFrame mirrors the gateway's outbound frame shape.
type serverFrame struct {
	Type             string          `json:"type"`
	ConnectionID     string          `json:"connection_id,omitempty"`
	Resumed          bool            `json:"resumed,omitempty"`
	Replayed         int             `json:"replayed,omitempty"`
	HeartbeatSeconds int             `json:"heartbeat_interval_seconds,omitempty"`
	ID               string          `json:"id,omitempty"`
	Channel          string          `json:"channel,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// counters aggregates probe activity across all clients.
type counters struct {
	connected int64 // live sockets right now
	connects  int64 // successful handshakes, resumes included
	resumed   int64
	replayed  int64
	received  int64
	published int64
	readErrs  int64
}

type probeClient struct {
	user         string
	base         *url.URL
	channels     []string
	secret       string
	publishEvery time.Duration
	logger       *slog.Logger
	stats        *counters

	lastConnID string
}

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/ws", "gateway websocket URL")
	users := flag.Int("users", 5, "number of distinct users")
	conns := flag.Int("conns", 1, "connections per user")
	channels := flag.String("channels", "probe.a,probe.b", "comma-separated channels to subscribe")
	publishEvery := flag.Duration("publish-every", time.Second, "per-client publish interval (0 disables publishing)")
	secret := flag.String("secret", "", "JWT secret; when set, clients authenticate with minted tokens")
	duration := flag.Duration("duration", 0, "how long to run (0 runs until Ctrl+C)")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	base, err := url.Parse(*wsURL)
	if err != nil {
		logger.Error("invalid gateway URL", "error", err)
		os.Exit(1)
	}

	var chans []string
	for _, ch := range strings.Split(*channels, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			chans = append(chans, ch)
		}
	}
	if len(chans) == 0 {
		logger.Error("at least one channel is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	stats := &counters{}

	var wg sync.WaitGroup
	for u := 0; u < *users; u++ {
		for c := 0; c < *conns; c++ {
			p := &probeClient{
				user:         fmt.Sprintf("probe-user-%d", u+1),
				base:         base,
				channels:     chans,
				secret:       *secret,
				publishEvery: *publishEvery,
				logger:       logger,
				stats:        stats,
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.run(ctx)
			}()
		}
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logStats(logger, "stats", stats)
			}
		}
	}()

	logger.Info("probe running - press Ctrl+C to stop",
		"url", *wsURL,
		"clients", *users**conns,
		"channels", chans,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	wg.Wait()
	logStats(logger, "final stats", stats)
}

func logStats(logger *slog.Logger, msg string, s *counters) {
	logger.Info(msg,
		"connected", atomic.LoadInt64(&s.connected),
		"connects", atomic.LoadInt64(&s.connects),
		"resumed", atomic.LoadInt64(&s.resumed),
		"replayed", atomic.LoadInt64(&s.replayed),
		"received", atomic.LoadInt64(&s.received),
		"published", atomic.LoadInt64(&s.published),
		"read_errors", atomic.LoadInt64(&s.readErrs),
	)
}

// run dials sessions back to back with exponential backoff between failures.
func (p *probeClient) run(ctx context.Context) {
	wait := reconnectBaseWait
	for {
		welcomed, err := p.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			atomic.AddInt64(&p.stats.readErrs, 1)
			p.logger.Warn("session ended", "user", p.user, "error", err)
		}
		if welcomed {
			wait = reconnectBaseWait
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		// Exponential backoff
		wait *= 2
		if wait > reconnectMaxWait {
			wait = reconnectMaxWait
		}
	}
}

// session runs one connection to completion: handshake, heartbeats, publish
// loop, and the read loop that counts deliveries.
func (p *probeClient) session(ctx context.Context) (welcomed bool, err error) {
	target, err := p.dialURL()
	if err != nil {
		return false, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	// The first frame is always the welcome
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	var welcome serverFrame
	if err := ws.ReadJSON(&welcome); err != nil {
		return false, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return false, fmt.Errorf("expected welcome frame, got %q", welcome.Type)
	}
	ws.SetReadDeadline(time.Time{})

	if welcome.Resumed {
		atomic.AddInt64(&p.stats.resumed, 1)
		atomic.AddInt64(&p.stats.replayed, int64(welcome.Replayed))
		p.logger.Info("session resumed",
			"user", p.user,
			"conn", welcome.ConnectionID,
			"replayed", welcome.Replayed,
		)
	}
	p.lastConnID = welcome.ConnectionID
	atomic.AddInt64(&p.stats.connects, 1)
	atomic.AddInt64(&p.stats.connected, 1)
	defer atomic.AddInt64(&p.stats.connected, -1)

	heartbeat := 30 * time.Second
	if welcome.HeartbeatSeconds > 0 {
		heartbeat = time.Duration(welcome.HeartbeatSeconds) * time.Second
	}

	done := make(chan struct{})
	defer close(done)
	go p.writeLoop(ctx, ws, heartbeat, done)

	for {
		var frame serverFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("read: %w", err)
		}
		switch frame.Type {
		case "message":
			atomic.AddInt64(&p.stats.received, 1)
		case "error":
			p.logger.Warn("server error frame", "user", p.user, "error", frame.Error)
		}
	}
}

// writeLoop sends heartbeat pings and timed publishes until the session or
// the probe shuts down. On probe shutdown it closes the socket cleanly,
// which also unblocks the read loop.
func (p *probeClient) writeLoop(ctx context.Context, ws *websocket.Conn, heartbeat time.Duration, done <-chan struct{}) {
	pingTicker := time.NewTicker(heartbeat)
	defer pingTicker.Stop()

	// A nil channel never fires, which disables publishing.
	var publishCh <-chan time.Time
	if p.publishEvery > 0 {
		publishTicker := time.NewTicker(p.publishEvery)
		defer publishTicker.Stop()
		publishCh = publishTicker.C
	}

	seq := 0
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			ws.Close()
			return
		case <-pingTicker.C:
			ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-publishCh:
			seq++
			payload, _ := json.Marshal(map[string]interface{}{
				"from": p.user,
				"seq":  seq,
				"at":   time.Now().UnixMilli(),
			})
			frame := clientFrame{
				Action:  "publish",
				Channel: p.channels[seq%len(p.channels)],
				Payload: payload,
			}
			if seq%5 == 0 {
				frame.Priority = "high"
			}
			ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := ws.WriteJSON(frame); err != nil {
				return
			}
			atomic.AddInt64(&p.stats.published, 1)
		}
	}
}

// dialURL builds the handshake URL, carrying the previous connection id so
// the gateway can resume the pending session.
func (p *probeClient) dialURL() (string, error) {
	u := *p.base
	q := u.Query()
	if p.secret != "" {
		token, err := auth.Mint(p.secret, p.user, time.Hour)
		if err != nil {
			return "", fmt.Errorf("mint token: %w", err)
		}
		q.Set("token", token)
	} else {
		q.Set("user", p.user)
	}
	q.Set("channels", strings.Join(p.channels, ","))
	if p.lastConnID != "" {
		q.Set("conn", p.lastConnID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
