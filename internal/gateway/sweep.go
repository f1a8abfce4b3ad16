package gateway

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghantakiran/axion-stock-sub012/internal/connection"
	"github.com/ghantakiran/axion-stock-sub012/internal/metrics"
	"github.com/ghantakiran/axion-stock-sub012/internal/reconnect"
)

// sweepLoop runs housekeeping on a fixed cadence until the server stops.
func (s *Server) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one housekeeping pass. The cores act only when polled; every
// timeout in the system fires here.
func (s *Server) sweep() {
	s.closeStale()
	s.expireSessions()
	s.warnSlowConsumers()

	metrics.ConnectionsActive.Set(float64(s.registry.Count()))
	metrics.QueueDepth.Set(float64(s.queues.TotalQueued()))
}

// closeStale shuts the socket of every connection whose heartbeat has gone
// quiet. The read pump picks it up from there and runs the normal
// disconnect path, so stale clients get a reconnection session like anyone
// else.
func (s *Server) closeStale() {
	for _, info := range s.registry.StaleConnections(s.cfg.StaleTimeout) {
		s.mu.RLock()
		c := s.clients[info.ID]
		s.mu.RUnlock()
		if c == nil {
			continue
		}

		s.registry.UpdateState(info.ID, connection.StateDisconnecting)
		s.logger.Warn("closing stale connection",
			"conn_id", info.ID,
			"user", info.UserID,
			"last_heartbeat", info.LastHeartbeat,
		)
		c.shutdown(websocket.ClosePolicyViolation, "heartbeat timeout", reasonStale)
	}
}

// expireSessions retires pending sessions past the reconnection window and
// clears the transport bookkeeping of every session that left pending.
func (s *Server) expireSessions() {
	if expired := s.sessions.ExpireSessions(0); expired > 0 {
		metrics.SessionsExpired.Add(float64(expired))
		s.logger.Info("reconnection sessions expired", "count", expired)
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.recovery))
	for id := range s.recovery {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		sess, ok := s.sessions.GetSession(id)
		if ok && sess.State == reconnect.SessionPending {
			continue
		}

		s.mu.Lock()
		channels := s.recovery[id]
		delete(s.recovery, id)
		s.mu.Unlock()

		if !ok {
			continue
		}
		// Nobody came back; the dead connection stops receiving fan-out.
		for _, ch := range channels {
			s.router.Unsubscribe(sess.ConnectionID, ch)
		}
	}
}

// warnSlowConsumers refreshes the slow consumer gauge and logs the queues
// whose head has been waiting past the threshold.
func (s *Server) warnSlowConsumers() {
	slow := s.queues.SlowConsumers()
	metrics.SlowConsumers.Set(float64(len(slow)))

	for _, id := range slow {
		stats, ok := s.queues.Stats(id)
		if !ok {
			continue
		}
		if stats.OldestAge >= s.cfg.SlowConsumerThreshold {
			s.logger.Warn("slow consumer",
				"conn_id", id,
				"depth", stats.Depth,
				"oldest_age", stats.OldestAge,
				"dropped", stats.Dropped,
			)
		}
	}
}
