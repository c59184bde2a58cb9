package webrtcpeer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/parlorvc/parlor/internal/peerlink"
	"github.com/parlorvc/parlor/internal/protocol"
)

// Peer adapts a pion PeerConnection to peerlink.Engine.
type Peer struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
}

var _ peerlink.Engine = (*Peer)(nil)

// NewPeer constructs a PeerConnection against the given ICE servers with the
// link callbacks wired up. Callbacks fire on pion's goroutines.
func NewPeer(api *webrtc.API, iceServers []webrtc.ICEServer, cb peerlink.Callbacks) (*Peer, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || cb.LocalCandidate == nil {
			return
		}
		cb.LocalCandidate(protocol.CandidateFromPion(c.ToJSON()))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if cb.Connected != nil {
				cb.Connected()
			}
		case webrtc.PeerConnectionStateFailed:
			if cb.Failed != nil {
				cb.Failed()
			}
		}
	})

	return &Peer{pc: pc}, nil
}

func (p *Peer) CreateOffer() (protocol.Description, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Description{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.Description{}, fmt.Errorf("set local offer: %w", err)
	}
	return protocol.DescriptionFromPion(offer), nil
}

func (p *Peer) CreateAnswer() (protocol.Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Description{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.Description{}, fmt.Errorf("set local answer: %w", err)
	}
	return protocol.DescriptionFromPion(answer), nil
}

func (p *Peer) SetRemoteDescription(desc protocol.Description) error {
	pd, err := desc.ToPion()
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(pd)
}

func (p *Peer) AddICECandidate(cand protocol.Candidate) error {
	return p.pc.AddICECandidate(cand.ToPion())
}

// ReplaceTracks swaps the outgoing audio and video tracks, adding senders
// on first use. A nil track leaves the corresponding sender untouched.
func (p *Peer) ReplaceTracks(audio, video webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.installLocked(&p.audioSender, audio); err != nil {
		return fmt.Errorf("replace audio track: %w", err)
	}
	if err := p.installLocked(&p.videoSender, video); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}
	return nil
}

func (p *Peer) installLocked(sender **webrtc.RTPSender, track webrtc.TrackLocal) error {
	if track == nil {
		return nil
	}
	if *sender == nil {
		s, err := p.pc.AddTrack(track)
		if err != nil {
			return err
		}
		*sender = s
		return nil
	}
	return (*sender).ReplaceTrack(track)
}

// OnTrack registers a handler for incoming remote tracks.
func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.pc.OnTrack(fn)
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
