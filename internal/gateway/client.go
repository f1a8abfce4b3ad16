package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// Disconnect reasons for logs and metrics.
const (
	reasonClient   = "client_close"
	reasonError    = "read_error"
	reasonStale    = "stale"
	reasonShutdown = "server_shutdown"
)

// client is the server-side half of one websocket connection. The read pump
// runs in the HTTP handler goroutine; the write pump runs in its own.
type client struct {
	connID string
	userID string

	srv    *Server
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	once   sync.Once
	done   chan struct{}
	reason string // written inside once, before done closes
}

func newClient(srv *Server, ws *websocket.Conn, connID, userID string) *client {
	return &client{
		connID: connID,
		userID: userID,
		srv:    srv,
		ws:     ws,
		logger: srv.logger.With("conn_id", connID, "user", userID),
		done:   make(chan struct{}),
	}
}

// shutdown closes the socket at most once and records why. The read pump
// unblocks with an error and runs the server-side disconnect.
func (c *client) shutdown(code int, text, reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
		deadline := time.Now().Add(c.srv.cfg.WriteTimeout)
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		c.ws.Close()
	})
}

// writeFrame serializes one frame onto the socket under the write deadline.
func (c *client) writeFrame(f serverFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
	return c.ws.WriteJSON(f)
}

// readPump consumes control frames until the socket dies, then runs the
// disconnect path exactly once. Websocket-level pings and pongs both count
// as heartbeats; browser clients that cannot send protocol pings use the
// JSON ping action instead.
func (c *client) readPump() {
	c.ws.SetPingHandler(func(appData string) error {
		c.srv.registry.UpdateHeartbeat(c.connID)
		deadline := time.Now().Add(c.srv.cfg.WriteTimeout)
		return c.ws.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})
	c.ws.SetPongHandler(func(string) error {
		c.srv.registry.UpdateHeartbeat(c.connID)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			reason := reasonError
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = reasonClient
			}
			c.shutdown(websocket.CloseNormalClosure, "", reason)
			c.srv.disconnect(c, c.reason)
			return
		}

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.writeFrame(errorFrame("malformed frame"))
			continue
		}
		c.handleFrame(f)
	}
}

// handleFrame dispatches one client action.
func (c *client) handleFrame(f clientFrame) {
	switch f.Action {
	case actionPing:
		c.srv.registry.UpdateHeartbeat(c.connID)
		c.writeFrame(serverFrame{Type: framePong})

	case actionSubscribe:
		if f.Channel == "" {
			c.writeFrame(errorFrame("subscribe requires a channel"))
			return
		}
		c.srv.subscribe(c.connID, f.Channel)
		c.writeFrame(serverFrame{Type: frameSubscribed, Channel: f.Channel})

	case actionUnsubscribe:
		if f.Channel == "" {
			c.writeFrame(errorFrame("unsubscribe requires a channel"))
			return
		}
		c.srv.unsubscribe(c.connID, f.Channel)
		c.writeFrame(serverFrame{Type: frameUnsubscribed, Channel: f.Channel})

	case actionPublish:
		if f.Channel == "" {
			c.writeFrame(errorFrame("publish requires a channel"))
			return
		}
		prio := model.PriorityNormal
		if f.Priority != "" {
			p, err := model.ParsePriority(f.Priority)
			if err != nil {
				c.writeFrame(errorFrame(err.Error()))
				return
			}
			prio = p
		}
		c.srv.Publish(f.Channel, f.Payload, model.WithPriority(prio), model.WithSender(c.connID))

	default:
		c.writeFrame(errorFrame(fmt.Sprintf("unknown action %q", f.Action)))
	}
}

// writePump drains the connection's delivery queue on a fixed cadence.
func (c *client) writePump() {
	defer c.srv.wg.Done()

	ticker := time.NewTicker(c.srv.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.flush() {
				return
			}
		}
	}
}

// flush writes up to FlushBatch queued messages. It reports false once the
// socket is no longer usable.
func (c *client) flush() bool {
	for _, m := range c.srv.queues.Dequeue(c.connID, c.srv.cfg.FlushBatch) {
		if err := c.writeFrame(deliveryFrame(m)); err != nil {
			c.logger.Warn("frame write failed", "error", err, "message_id", m.ID)
			c.shutdown(websocket.CloseInternalServerErr, "write failure", reasonError)
			return false
		}
	}
	return true
}
