package peerlink

import (
	"github.com/pion/webrtc/v4"

	"github.com/parlorvc/parlor/internal/protocol"
)

// Engine abstracts the underlying peer-connection implementation so the Link
// state machine can be driven and tested without network I/O. The production
// implementation lives in internal/webrtcpeer.
type Engine interface {
	// CreateOffer creates a local offer and applies it as the local
	// description, returning it for routing to the remote peer.
	CreateOffer() (protocol.Description, error)
	// CreateAnswer answers a previously applied remote offer and applies it
	// as the local description.
	CreateAnswer() (protocol.Description, error)
	SetRemoteDescription(protocol.Description) error
	AddICECandidate(protocol.Candidate) error
	// ReplaceTracks swaps the outgoing audio and video tracks. It does not
	// renegotiate; the caller follows up with a fresh offer round.
	ReplaceTracks(audio, video webrtc.TrackLocal) error
	Close() error
}

// Callbacks are invoked by the engine from its own goroutines. The Link
// methods they typically point at take the link lock themselves.
type Callbacks struct {
	// LocalCandidate fires for every locally gathered ICE candidate.
	LocalCandidate func(protocol.Candidate)
	// Connected fires when the underlying transport reaches the connected
	// state.
	Connected func()
	// Failed fires when the transport fails terminally.
	Failed func()
}

// EngineFactory builds an engine for a link to one remote participant.
type EngineFactory func(remoteID string, cb Callbacks) (Engine, error)
