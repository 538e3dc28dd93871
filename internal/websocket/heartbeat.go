package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Heartbeat is the owned handle of one connection's ping loop
type Heartbeat struct {
	connID uuid.UUID
	stop   chan struct{}
	once   sync.Once
}

// Stop ends the ping loop. Safe to call more than once.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
}

// HeartbeatMonitor owns every connection's heartbeat handle, keyed by connection id
type HeartbeatMonitor struct {
	mu       sync.Mutex
	handles  map[uuid.UUID]*Heartbeat
	interval time.Duration
}

func NewHeartbeatMonitor(interval time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		handles:  make(map[uuid.UUID]*Heartbeat),
		interval: interval,
	}
}

// Start begins probing c every interval until stopped or c closes
func (m *HeartbeatMonitor) Start(c *Client, ping func(c *Client)) *Heartbeat {
	hb := &Heartbeat{connID: c.id, stop: make(chan struct{})}

	m.mu.Lock()
	if prev, ok := m.handles[c.id]; ok {
		prev.Stop()
	}
	m.handles[c.id] = hb
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-hb.stop:
				return
			case <-c.done:
				return
			case <-ticker.C:
				ping(c)
			}
		}
	}()
	return hb
}

// Stop disposes the handle for connID. Returns false if it was already gone.
func (m *HeartbeatMonitor) Stop(connID uuid.UUID) bool {
	m.mu.Lock()
	hb, ok := m.handles[connID]
	delete(m.handles, connID)
	m.mu.Unlock()

	hb.Stop()
	return ok
}

// Sweep disposes handles whose connection is no longer tracked
func (m *HeartbeatMonitor) Sweep(alive func(connID uuid.UUID) bool) int {
	m.mu.Lock()
	ids := lo.Keys(m.handles)
	m.mu.Unlock()

	disposed := 0
	for _, id := range ids {
		if alive(id) {
			continue
		}
		if m.Stop(id) {
			disposed++
		}
	}
	return disposed
}

// Count returns the number of live handles
func (m *HeartbeatMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
