package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the realtime counters. A nil *Metrics records nothing.
type Metrics struct {
	messagesRelayed     prometheus.Counter
	evictions           prometheus.Counter
	sessionsReaped      prometheus.Counter
	typingExpired       prometheus.Counter
	heartbeatsDisposed  prometheus.Counter
	framesDropped       prometheus.Counter
	persistenceFailures prometheus.Counter
}

// NewMetrics registers the realtime counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messagesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "messages_relayed_total",
			Help: "Chat messages persisted and broadcast.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "session_evictions_total",
			Help: "Connections force-disconnected by a newer connection of the same user.",
		}),
		sessionsReaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "sessions_reaped_total",
			Help: "Stale sessions removed by the cleanup sweep.",
		}),
		typingExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "typing_expired_total",
			Help: "Typing indicators expired by the cleanup sweep.",
		}),
		heartbeatsDisposed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "heartbeats_disposed_total",
			Help: "Orphaned heartbeat handles disposed by the cleanup sweep.",
		}),
		framesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "frames_dropped_total",
			Help: "Outbound frames dropped because a send buffer was full.",
		}),
		persistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigline", Subsystem: "realtime", Name: "persistence_failures_total",
			Help: "Operations aborted because a required write failed.",
		}),
	}
}

// RegisterHubGauges exposes the hub's live counts on reg
func RegisterHubGauges(reg prometheus.Registerer, h *Hub) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gigline", Subsystem: "realtime", Name: "online_users",
		Help: "Users with a live session.",
	}, func() float64 { return float64(h.registry.Count()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gigline", Subsystem: "realtime", Name: "connections",
		Help: "Open WebSocket connections.",
	}, func() float64 { return float64(h.ConnectionCount()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gigline", Subsystem: "realtime", Name: "typing_chats",
		Help: "Chats with at least one active typing indicator.",
	}, func() float64 { return float64(h.typing.ActiveChats()) })
}

func (m *Metrics) messageRelayed() {
	if m != nil {
		m.messagesRelayed.Inc()
	}
}

func (m *Metrics) sessionEvicted() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) sessionReaped() {
	if m != nil {
		m.sessionsReaped.Inc()
	}
}

func (m *Metrics) typingExpiredN(n int) {
	if m != nil {
		m.typingExpired.Add(float64(n))
	}
}

func (m *Metrics) heartbeatsDisposedN(n int) {
	if m != nil {
		m.heartbeatsDisposed.Add(float64(n))
	}
}

func (m *Metrics) frameDropped() {
	if m != nil {
		m.framesDropped.Inc()
	}
}

func (m *Metrics) persistenceFailed() {
	if m != nil {
		m.persistenceFailures.Inc()
	}
}
