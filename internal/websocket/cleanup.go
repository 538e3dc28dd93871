package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SweepTyping expires typing entries older than the typing timeout and
// broadcasts one synthetic typing-stop per expired entry.
func (h *Hub) SweepTyping() int {
	expired := h.typing.Expire(h.now().Add(-h.cfg.TypingTimeout))
	for _, e := range expired {
		h.emit(nil, EventTypingStop, TypingBroadcastPayload{ChatID: e.ChatID, UserID: e.UserID}, ChatRoom(e.ChatID))
	}
	h.metrics.typingExpiredN(len(expired))
	return len(expired)
}

// SweepStaleSessions reaps sessions whose connection is no longer live and
// that have not been seen within the stale timeout. A live connection is left
// to its read pump, which closes it once pongs stop arriving.
// user-offline is broadcast once per reaped session.
func (h *Hub) SweepStaleSessions() int {
	reaped := 0
	for _, s := range h.registry.Stale(h.now().Add(-h.cfg.StaleSessionTimeout)) {
		if s.client != nil && s.client.IsLive() {
			continue
		}
		removed, ok := h.registry.Remove(s.UserID, s.ConnectionID)
		if !ok {
			// Replaced or removed since the snapshot
			continue
		}

		c := removed.client
		c.Close()
		h.heartbeats.Stop(removed.ConnectionID)
		h.rooms.LeaveAll(c)
		h.unsubscribeUser(c)
		h.connsMu.Lock()
		delete(h.conns, c.id)
		h.connsMu.Unlock()

		h.endSession(removed)
		h.metrics.sessionReaped()
		h.logger.Info("stale session reaped", "user_id", removed.UserID, "conn_id", removed.ConnectionID)
		reaped++
	}
	return reaped
}

// SweepOrphanedHeartbeats disposes heartbeat handles whose connection is
// no longer any user's current, live connection.
func (h *Hub) SweepOrphanedHeartbeats() int {
	disposed := h.heartbeats.Sweep(func(connID uuid.UUID) bool {
		h.connsMu.RLock()
		c, ok := h.conns[connID]
		h.connsMu.RUnlock()
		return ok && c.IsLive() && h.registry.HasConnection(connID)
	})
	h.metrics.heartbeatsDisposedN(disposed)
	return disposed
}

// Scheduler runs the periodic cleanup sweeps
type Scheduler struct {
	hub            *Hub
	typingEvery    time.Duration
	staleEvery     time.Duration
	heartbeatEvery time.Duration
	logger         *slog.Logger
}

// NewScheduler creates a scheduler for hub's sweeps
func NewScheduler(hub *Hub, typingEvery, staleEvery, heartbeatEvery time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		hub:            hub,
		typingEvery:    typingEvery,
		staleEvery:     staleEvery,
		heartbeatEvery: heartbeatEvery,
		logger:         logger.With("component", "cleanup"),
	}
}

// Run blocks until ctx is done, running each sweep on its own interval
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.every(ctx, "typing", s.typingEvery, s.hub.SweepTyping) })
	g.Go(func() error { return s.every(ctx, "stale_sessions", s.staleEvery, s.hub.SweepStaleSessions) })
	g.Go(func() error { return s.every(ctx, "orphaned_heartbeats", s.heartbeatEvery, s.hub.SweepOrphanedHeartbeats) })
	return g.Wait()
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, sweep func() int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := sweep(); n > 0 {
				s.logger.Info("sweep finished", "sweep", name, "removed", n)
			}
		}
	}
}
