// Package peerlink drives WebRTC negotiation with one remote peer at a time:
// offer/answer ordering, trickled candidate queuing and renegotiation after
// media changes. Links to different peers are fully independent.
package peerlink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/parlorvc/parlor/internal/protocol"
)

type State uint8

const (
	StateNew State = iota
	StateOfferSent
	StateAnswerSent
	StateConnected
	StateRenegotiating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer_sent"
	case StateAnswerSent:
		return "answer_sent"
	case StateConnected:
		return "connected"
	case StateRenegotiating:
		return "renegotiating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role decides which side opens negotiation. The participant joining an
// already-populated room initiates toward every existing member; existing
// members only answer. Only one side of any pair is ever the newly joined
// side, so offers never collide.
type Role uint8

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// SendFunc forwards a signaling payload to the link's remote peer. It must
// not call back into the link; it is invoked with the link lock held.
type SendFunc func(protocol.SignalPayload)

// Link is the negotiation state machine for one remote peer.
//
// All transitions are serialized under the link mutex: descriptions are not
// commutative, so a second negotiation step must never start before the
// previous one's local-description work has completed.
type Link struct {
	localID  string
	remoteID string
	role     Role
	log      *slog.Logger
	engine   Engine
	send     SendFunc

	// timeout bounds how long an offer may stay unanswered; 0 disables.
	timeout time.Duration

	mu        sync.Mutex
	state     State
	remoteSet bool
	// queued holds candidates that arrived before the remote description;
	// drained FIFO the moment a remote description applies.
	queued []protocol.Candidate
	timer  *time.Timer
}

func newLink(localID, remoteID string, role Role, logger *slog.Logger, send SendFunc, timeout time.Duration) *Link {
	return &Link{
		localID:  localID,
		remoteID: remoteID,
		role:     role,
		log:      logger.With("remote", remoteID, "role", role.String()),
		send:     send,
		timeout:  timeout,
		state:    StateNew,
	}
}

func (l *Link) RemoteID() string { return l.remoteID }
func (l *Link) Role() Role       { return l.role }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Open starts negotiation by sending the first offer. It is a no-op unless
// the link is an untouched initiator.
func (l *Link) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateNew || l.role != RoleInitiator {
		return
	}

	desc, err := l.engine.CreateOffer()
	if err != nil {
		l.log.Error("offer creation failed", "err", err)
		l.closeLocked()
		return
	}
	if l.state == StateClosed {
		return
	}
	l.state = StateOfferSent
	l.armTimerLocked()
	l.send(protocol.SignalPayload{Description: &desc})
	l.log.Debug("offer sent")
}

// HandleDescription applies a remote offer or answer.
//
// A remote offer is answered immediately (NEW -> ANSWER_SENT; a CONNECTED
// link being renegotiated by the remote side answers and stays CONNECTED; an
// ANSWER_SENT link whose transport has not come up yet answers again in
// place, so a remote media change right after the first round cannot strand
// the initiator waiting out its timeout). A remote answer completes an offer
// round (OFFER_SENT or RENEGOTIATING -> CONNECTED). A description arriving
// in any other state is logged and skipped; such races are benign and must
// not kill the link.
func (l *Link) HandleDescription(desc protocol.Description) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}

	switch desc.Type {
	case "offer":
		if l.state != StateNew && l.state != StateAnswerSent && l.state != StateConnected {
			l.log.Warn("offer in unexpected state skipped", "state", l.state.String())
			return
		}
		l.applyRemoteAndAnswerLocked(desc)
	case "answer":
		if l.state != StateOfferSent && l.state != StateRenegotiating {
			l.log.Warn("answer in unexpected state skipped", "state", l.state.String())
			return
		}
		if err := l.engine.SetRemoteDescription(desc); err != nil {
			l.log.Warn("remote answer rejected", "err", err)
			return
		}
		if l.state == StateClosed {
			return
		}
		l.remoteSet = true
		l.drainQueueLocked()
		l.stopTimerLocked()
		l.state = StateConnected
		l.log.Debug("answer applied")
	default:
		l.log.Warn("unsupported description type skipped", "type", desc.Type)
	}
}

func (l *Link) applyRemoteAndAnswerLocked(offer protocol.Description) {
	if err := l.engine.SetRemoteDescription(offer); err != nil {
		l.log.Warn("remote offer rejected", "err", err)
		return
	}
	if l.state == StateClosed {
		return
	}
	l.remoteSet = true
	l.drainQueueLocked()

	answer, err := l.engine.CreateAnswer()
	if err != nil {
		l.log.Error("answer creation failed", "err", err)
		l.closeLocked()
		return
	}
	if l.state == StateClosed {
		return
	}
	if l.state == StateNew {
		l.state = StateAnswerSent
	}
	l.send(protocol.SignalPayload{Description: &answer})
	l.log.Debug("answer sent")
}

// HandleCandidate applies a trickled remote candidate, queuing it when no
// remote description has been applied yet. Apply failures are logged and
// skipped; a malformed candidate is never fatal to the link.
func (l *Link) HandleCandidate(cand protocol.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}
	if !l.remoteSet {
		l.queued = append(l.queued, cand)
		return
	}
	if err := l.engine.AddICECandidate(cand); err != nil {
		l.log.Warn("candidate skipped", "err", err)
	}
}

func (l *Link) drainQueueLocked() {
	for _, cand := range l.queued {
		if err := l.engine.AddICECandidate(cand); err != nil {
			l.log.Warn("queued candidate skipped", "err", err)
		}
	}
	l.queued = nil
}

// Renegotiate starts a fresh offer round after a local media change. Only a
// CONNECTED link renegotiates; the previous media keeps flowing while the
// round is in flight.
func (l *Link) Renegotiate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnected {
		return
	}

	desc, err := l.engine.CreateOffer()
	if err != nil {
		l.log.Error("renegotiation offer failed", "err", err)
		l.closeLocked()
		return
	}
	if l.state == StateClosed {
		return
	}
	l.state = StateRenegotiating
	l.armTimerLocked()
	l.send(protocol.SignalPayload{Description: &desc})
	l.log.Debug("renegotiation offer sent")
}

// ReplaceTracks swaps the outgoing tracks on the underlying engine.
func (l *Link) ReplaceTracks(audio, video webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return nil
	}
	return l.engine.ReplaceTracks(audio, video)
}

// Connected is the engine's transport-established callback. It completes the
// responder side, which has no answer arrival to pivot on.
func (l *Link) Connected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateAnswerSent {
		l.state = StateConnected
		l.log.Debug("transport connected")
	}
}

// LocalCandidate forwards a locally gathered candidate to the remote peer.
func (l *Link) LocalCandidate(cand protocol.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}
	l.send(protocol.SignalPayload{Candidate: &cand})
}

// Close is terminal: queued candidates are discarded and results of any
// in-flight engine work are suppressed. Safe to call repeatedly.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Link) closeLocked() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	l.queued = nil
	l.stopTimerLocked()
	if err := l.engine.Close(); err != nil {
		l.log.Debug("engine close", "err", err)
	}
	l.log.Debug("link closed")
}

func (l *Link) armTimerLocked() {
	if l.timeout <= 0 {
		return
	}
	l.stopTimerLocked()
	l.timer = time.AfterFunc(l.timeout, l.negotiationExpired)
}

func (l *Link) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Link) negotiationExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOfferSent && l.state != StateRenegotiating {
		return
	}
	l.log.Warn("negotiation timed out", "state", l.state.String(), "timeout", l.timeout)
	l.closeLocked()
}
