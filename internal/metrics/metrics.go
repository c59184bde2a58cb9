package metrics

import "sync"

// Event counter names. Signaling failures are never surfaced to senders,
// so counters are the only way to observe them.
const (
	DropReasonStaleTarget      = "stale_target"
	DropReasonRoomMiss         = "room_miss"
	DropReasonMalformedPayload = "malformed_payload"
	DropReasonQueueOverflow    = "queue_overflow"
	DropReasonRateLimited      = "rate_limited"

	EventChatDelivered = "chat_delivered"
	EventSignalsRouted = "signals_routed"
	EventRosterUpdates = "roster_updates"
)

// Gauge names sampled at scrape time.
const (
	GaugeRooms        = "parlor_signaling_rooms"
	GaugeParticipants = "parlor_signaling_participants"
)

// Metrics is a minimal, concurrency-safe counter registry with scrape-time
// gauges.
//
// A production deployment could plug a real metrics backend here; this type
// exists so drop behavior stays observable and testable.
type Metrics struct {
	mu     sync.Mutex
	m      map[string]uint64
	gauges map[string]func() int64
}

func New() *Metrics {
	return &Metrics{
		m:      make(map[string]uint64),
		gauges: make(map[string]func() int64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

// RegisterGauge registers a gauge sampled at scrape time. fn must be safe to
// call from any goroutine. A later registration under the same name replaces
// the earlier one.
func (m *Metrics) RegisterGauge(name string, fn func() int64) {
	m.mu.Lock()
	m.gauges[name] = fn
	m.mu.Unlock()
}

// SampleGauges evaluates all registered gauges.
func (m *Metrics) SampleGauges() map[string]int64 {
	m.mu.Lock()
	fns := make(map[string]func() int64, len(m.gauges))
	for k, fn := range m.gauges {
		fns[k] = fn
	}
	m.mu.Unlock()

	out := make(map[string]int64, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}
