package peerlink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/parlorvc/parlor/internal/protocol"
)

type SetConfig struct {
	// LocalID is this participant's server-assigned identifier.
	LocalID string
	Logger  *slog.Logger
	Engines EngineFactory
	// Send routes a signaling payload to one remote participant.
	Send func(toID string, payload protocol.SignalPayload)
	// NegotiationTimeout bounds unanswered offers; 0 disables.
	NegotiationTimeout time.Duration
}

// Set owns every Link of the local participant, keyed by remote identifier.
// Set's lock guards only the map; each link serializes its own negotiation,
// so peers negotiate independently and concurrently.
type Set struct {
	localID string
	log     *slog.Logger
	engines EngineFactory
	send    func(string, protocol.SignalPayload)
	timeout time.Duration

	mu    sync.Mutex
	links map[string]*Link
}

func NewSet(cfg SetConfig) *Set {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		localID: cfg.LocalID,
		log:     logger,
		engines: cfg.Engines,
		send:    cfg.Send,
		timeout: cfg.NegotiationTimeout,
		links:   make(map[string]*Link),
	}
}

// HandleRoster reacts to a roster-update. When we are the joiner we initiate
// toward every existing member; when someone else joined we create a
// responder link and wait for their offer.
func (s *Set) HandleRoster(joined string, roster []protocol.RosterEntry) {
	if joined == s.localID {
		for _, entry := range roster {
			if entry.ID == s.localID {
				continue
			}
			if l := s.ensure(entry.ID, RoleInitiator); l != nil {
				l.Open()
			}
		}
		return
	}
	s.ensure(joined, RoleResponder)
}

// HandleSignal dispatches a routed payload to the matching link. A signal
// from a peer we have no link for yet creates a responder link; the roster
// and signal events race over independent queues on the sender side.
func (s *Set) HandleSignal(from string, payload *protocol.SignalPayload) {
	if payload == nil {
		return
	}
	l := s.ensure(from, RoleResponder)
	if l == nil {
		return
	}
	switch {
	case payload.Description != nil:
		l.HandleDescription(*payload.Description)
	case payload.Candidate != nil:
		l.HandleCandidate(*payload.Candidate)
	}
}

// HandlePeerLeft closes and forgets the departed peer's link.
func (s *Set) HandlePeerLeft(departed string) {
	s.mu.Lock()
	l := s.links[departed]
	delete(s.links, departed)
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}
}

// RenegotiateAll starts a fresh offer round on every connected link. Links
// in other states ignore the request.
func (s *Set) RenegotiateAll() {
	for _, l := range s.snapshot() {
		l.Renegotiate()
	}
}

// SetOutgoingTracks swaps the outbound tracks on every link. Failures are
// logged per link; one broken peer never blocks the others.
func (s *Set) SetOutgoingTracks(audio, video webrtc.TrackLocal) {
	for _, l := range s.snapshot() {
		if err := l.ReplaceTracks(audio, video); err != nil {
			s.log.Warn("track replacement failed", "remote", l.RemoteID(), "err", err)
		}
	}
}

// CloseAll tears down every link, e.g. on call end or signaling loss.
func (s *Set) CloseAll() {
	s.mu.Lock()
	links := s.links
	s.links = make(map[string]*Link)
	s.mu.Unlock()
	for _, l := range links {
		l.Close()
	}
}

// Link returns the link for a remote participant, if any.
func (s *Set) Link(remoteID string) (*Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[remoteID]
	return l, ok
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *Set) snapshot() []*Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}

// ensure returns the existing link for remoteID or creates one with the
// given role. Engine construction failure is logged and yields no link;
// later signals from that peer will retry.
func (s *Set) ensure(remoteID string, role Role) *Link {
	s.mu.Lock()
	if l, ok := s.links[remoteID]; ok {
		s.mu.Unlock()
		return l
	}
	s.mu.Unlock()

	l := newLink(s.localID, remoteID, role, s.log, func(payload protocol.SignalPayload) {
		s.send(remoteID, payload)
	}, s.timeout)

	eng, err := s.engines(remoteID, Callbacks{
		LocalCandidate: l.LocalCandidate,
		Connected:      l.Connected,
		Failed:         l.Close,
	})
	if err != nil {
		s.log.Error("engine construction failed", "remote", remoteID, "err", err)
		return nil
	}
	l.engine = eng

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.links[remoteID]; ok {
		// Lost a construction race; keep the winner.
		_ = eng.Close()
		return existing
	}
	s.links[remoteID] = l
	return l
}
