// Package relay routes signaling envelopes, chat, typing and presence events
// between the participants of a room.
//
// The relay is the only server component that touches connections. Delivery
// is fire-and-forget: events are marshaled once and enqueued onto each
// recipient's bounded outbound queue; a participant that has disconnected, or
// whose queue is full, simply does not receive the event. Failures here are
// logged and counted, never returned to the sender.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/parlorvc/parlor/internal/metrics"
	"github.com/parlorvc/parlor/internal/protocol"
	"github.com/parlorvc/parlor/internal/room"
)

// DefaultQueueBytes bounds each participant's outbound queue. SDP payloads
// run a few tens of KiB, so this comfortably holds a burst of renegotiation
// rounds without letting one dead peer pin server memory.
const DefaultQueueBytes = 1 << 20 // 1MiB

type Config struct {
	Store      *room.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	QueueBytes int
}

type Relay struct {
	log     *slog.Logger
	store   *room.Store
	metrics *metrics.Metrics

	queueBytes int

	// dispatch serializes room-state mutation with the enqueue of the
	// resulting fan-out. Without it, a join racing a chat can replay a
	// message to the joiner and then broadcast the same message to it again,
	// and two racing joins can deliver their roster frames inverted.
	dispatch sync.Mutex

	mu           sync.RWMutex
	participants map[string]*Queue
}

func New(cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	queueBytes := cfg.QueueBytes
	if queueBytes <= 0 {
		queueBytes = DefaultQueueBytes
	}
	return &Relay{
		log:          logger,
		store:        cfg.Store,
		metrics:      m,
		queueBytes:   queueBytes,
		participants: make(map[string]*Queue),
	}
}

func (r *Relay) Metrics() *metrics.Metrics { return r.metrics }

// AttachedCount reports the number of participant connections currently
// attached.
func (r *Relay) AttachedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Attach registers a participant connection and returns its outbound queue.
// The caller owns draining the queue until Detach closes it.
func (r *Relay) Attach(participantID string) *Queue {
	q := NewQueue(r.queueBytes)
	r.mu.Lock()
	r.participants[participantID] = q
	r.mu.Unlock()
	return q
}

// Detach removes a participant connection and closes its queue. It does not
// touch room membership; use HandleDisconnect for the full teardown.
func (r *Relay) Detach(participantID string) {
	r.mu.Lock()
	q := r.participants[participantID]
	delete(r.participants, participantID)
	r.mu.Unlock()
	if q != nil {
		q.Close()
	}
}

// HandleJoin admits the participant into roomID and fans out the results:
// the room's chat history is replayed to the joiner, then the updated roster
// is broadcast to every member, joiner included.
//
// If the participant was already in a different room, that room first sees a
// peer-left, exactly as if the participant had disconnected from it.
func (r *Relay) HandleJoin(participantID, roomID, displayName string) {
	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	if prev, ok := r.store.RoomOf(participantID); ok && prev != roomID {
		r.disconnectLocked(participantID)
	}

	roster, history := r.store.Join(participantID, roomID, displayName)

	for _, msg := range history {
		r.sendTo(participantID, chatDeliveredEvent(msg))
	}

	ev := protocol.Event{
		Type:   protocol.EventRosterUpdate,
		Joined: participantID,
		Roster: rosterEntries(roster),
	}
	r.metrics.Inc(metrics.EventRosterUpdates)
	r.fanOut(roster, ev, "")
}

// HandleChat appends the message to the room's chat log and fans it out to
// the member set observed at append time, so a racing joiner sees the message
// in its replay or in the fan-out but never both. A sender that is in no room
// is dropped with a warning.
func (r *Relay) HandleChat(senderID, senderName, text string) {
	if senderName == "" {
		senderName = room.DefaultDisplayName
	}

	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	msg, members, typingCleared, ok := r.store.AppendChat(senderID, senderName, text)
	if !ok {
		r.metrics.Inc(metrics.DropReasonRoomMiss)
		r.log.Warn("chat from participant in no room", "participant", senderID)
		return
	}

	r.metrics.Inc(metrics.EventChatDelivered)
	r.fanOut(members, chatDeliveredEvent(msg), senderID)

	// Sending a message implicitly stops typing; peers learn both at once.
	if typingCleared {
		r.fanOut(members, typingUpdateEvent(senderID, senderName, false), senderID)
	}
}

// HandleTyping updates the sender's typing entry and notifies the rest of the
// room. Redundant updates are suppressed.
func (r *Relay) HandleTyping(senderID, displayName string, isTyping bool) {
	if displayName == "" {
		displayName = room.DefaultDisplayName
	}
	r.dispatch.Lock()
	defer r.dispatch.Unlock()

	members, changed, ok := r.store.SetTyping(senderID, displayName, isTyping)
	if !ok {
		r.metrics.Inc(metrics.DropReasonRoomMiss)
		r.log.Warn("typing from participant in no room", "participant", senderID)
		return
	}
	if !changed {
		return
	}
	r.fanOut(members, typingUpdateEvent(senderID, displayName, isTyping), senderID)
}

// Route forwards a signaling payload to exactly one target participant. The
// payload is opaque; no room co-membership check is made. A target that is no
// longer connected is a silent drop.
func (r *Relay) Route(fromID, toID string, payload *protocol.SignalPayload) {
	ev := protocol.Event{
		Type:   protocol.EventSignal,
		Sender: fromID,
		Target: toID,
		Signal: payload,
	}
	if !r.sendTo(toID, ev) {
		r.metrics.Inc(metrics.DropReasonStaleTarget)
		r.log.Debug("signal to stale target dropped", "from", fromID, "to", toID)
		return
	}
	r.metrics.Inc(metrics.EventSignalsRouted)
}

// HandleDisconnect removes the participant from its room and tells the
// remaining members the peer left. Safe to call for participants that never
// joined a room.
func (r *Relay) HandleDisconnect(participantID string) {
	r.dispatch.Lock()
	defer r.dispatch.Unlock()
	r.disconnectLocked(participantID)
}

func (r *Relay) disconnectLocked(participantID string) {
	_, remaining, ok := r.store.Leave(participantID)
	if !ok {
		return
	}
	ev := protocol.Event{
		Type:     protocol.EventPeerLeft,
		Departed: participantID,
	}
	r.fanOut(remaining, ev, "")
}

// fanOut delivers ev to the given member snapshot, skipping excludeID when
// non-empty. Callers pass the membership observed under the store lock for
// the mutation that produced ev, never a re-read.
func (r *Relay) fanOut(members []room.Member, ev protocol.Event, excludeID string) {
	if len(members) == 0 {
		return
	}

	frame, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("failed to marshal broadcast event", "type", ev.Type, "err", err)
		return
	}

	for _, m := range members {
		if m.ID == excludeID {
			continue
		}
		r.enqueue(m.ID, frame, ev.Type)
	}
}

func (r *Relay) sendTo(participantID string, ev protocol.Event) bool {
	frame, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("failed to marshal event", "type", ev.Type, "err", err)
		return false
	}
	return r.enqueue(participantID, frame, ev.Type)
}

func (r *Relay) enqueue(participantID string, frame []byte, evType protocol.EventType) bool {
	r.mu.RLock()
	q := r.participants[participantID]
	r.mu.RUnlock()
	if q == nil {
		return false
	}
	if !q.Enqueue(frame) {
		r.metrics.Inc(metrics.DropReasonQueueOverflow)
		r.log.Warn("outbound queue overflow", "participant", participantID, "type", evType)
		return false
	}
	return true
}

func rosterEntries(members []room.Member) []protocol.RosterEntry {
	out := make([]protocol.RosterEntry, 0, len(members))
	for _, m := range members {
		out = append(out, protocol.RosterEntry{ID: m.ID, DisplayName: m.DisplayName})
	}
	return out
}

func chatDeliveredEvent(msg room.Message) protocol.Event {
	return protocol.Event{
		Type:        protocol.EventChatDelivered,
		Sender:      msg.Sender,
		DisplayName: msg.SenderName,
		Text:        msg.Text,
		Timestamp:   msg.Timestamp,
	}
}

func typingUpdateEvent(senderID, displayName string, isTyping bool) protocol.Event {
	return protocol.Event{
		Type:        protocol.EventTypingUpdate,
		Sender:      senderID,
		DisplayName: displayName,
		IsTyping:    protocol.Bool(isTyping),
	}
}
