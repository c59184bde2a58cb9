// Package protocol defines the signaling event surface exchanged between
// participants and the relay.
//
// Events are JSON objects with a "type" discriminator. Signal payloads are
// tagged variants (description or candidate) so both sides can validate shape
// without the relay ever interpreting SDP/ICE semantics.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

type EventType string

const (
	// Client -> server.
	EventJoin   EventType = "join"
	EventChat   EventType = "chat"
	EventTyping EventType = "typing"

	// Bidirectional. Client sends {target, signal}; the relay rewrites the
	// sender field before forwarding.
	EventSignal EventType = "signal"

	// Server -> clients.
	//
	// welcome carries the participant identifier the server assigned to this
	// connection; it is sent once, before any other event.
	EventWelcome       EventType = "welcome"
	EventRosterUpdate  EventType = "roster-update"
	EventChatDelivered EventType = "chat-delivered"
	EventTypingUpdate  EventType = "typing-update"
	EventPeerLeft      EventType = "peer-left"
)

var (
	errUnknownEventType = errors.New("protocol: unknown event type")
	errTrailingData     = errors.New("protocol: unexpected trailing data")
)

// RosterEntry is one member of a room, in arrival order.
type RosterEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Description is a minimal, JSON-friendly representation of an SDP
// offer/answer. The relay forwards it verbatim; only PeerLink converts it
// to the pion type.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func DescriptionFromPion(desc webrtc.SessionDescription) Description {
	return Description{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (d Description) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

// Candidate is a single trickled ICE candidate.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// SignalPayload is exactly one of a session description or an ICE candidate.
type SignalPayload struct {
	Description *Description `json:"description,omitempty"`
	Candidate   *Candidate   `json:"candidate,omitempty"`
}

func (p SignalPayload) Validate() error {
	switch {
	case p.Description == nil && p.Candidate == nil:
		return errors.New("signal payload has neither description nor candidate")
	case p.Description != nil && p.Candidate != nil:
		return errors.New("signal payload has both description and candidate")
	case p.Description != nil:
		if p.Description.Type != "offer" && p.Description.Type != "answer" {
			return fmt.Errorf("description has type %q", p.Description.Type)
		}
		if p.Description.SDP == "" {
			return errors.New("description missing sdp")
		}
	case p.Candidate != nil:
		if p.Candidate.Candidate == "" {
			return errors.New("candidate missing candidate string")
		}
	}
	return nil
}

// Event is the envelope for every message on a signaling connection.
type Event struct {
	Type EventType `json:"type"`

	// join
	Room        string `json:"room,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// roster-update
	Joined string        `json:"joined,omitempty"`
	Roster []RosterEntry `json:"roster,omitempty"`

	// signal
	Target string         `json:"target,omitempty"`
	Sender string         `json:"sender,omitempty"`
	Signal *SignalPayload `json:"signal,omitempty"`

	// chat / chat-delivered
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds, server-assigned

	// typing / typing-update
	IsTyping *bool `json:"isTyping,omitempty"`

	// peer-left
	Departed string `json:"departed,omitempty"`
}

// Parse decodes and shape-validates a single event.
//
// Unknown fields and trailing data are rejected so a malformed client cannot
// smuggle extra state through the relay.
func Parse(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return Event{}, err
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Event{}, errTrailingData
	}
	return ev, nil
}

// Validate checks that exactly the fields for the event's type are present.
func (ev Event) Validate() error {
	switch ev.Type {
	case EventJoin:
		if ev.Room == "" {
			return errors.New("join event missing room")
		}
	case EventSignal:
		if ev.Target == "" && ev.Sender == "" {
			return errors.New("signal event missing target")
		}
		if ev.Signal == nil {
			return errors.New("signal event missing payload")
		}
		if err := ev.Signal.Validate(); err != nil {
			return err
		}
	case EventChat:
		if ev.Text == "" {
			return errors.New("chat event missing text")
		}
	case EventTyping:
		if ev.IsTyping == nil {
			return errors.New("typing event missing isTyping")
		}
	case EventWelcome:
		if ev.Sender == "" {
			return errors.New("welcome event missing sender")
		}
	case EventRosterUpdate:
		if ev.Joined == "" || len(ev.Roster) == 0 {
			return errors.New("roster-update event missing joined/roster")
		}
	case EventChatDelivered:
		if ev.Text == "" || ev.Sender == "" {
			return errors.New("chat-delivered event missing text/sender")
		}
	case EventTypingUpdate:
		if ev.Sender == "" || ev.IsTyping == nil {
			return errors.New("typing-update event missing sender/isTyping")
		}
	case EventPeerLeft:
		if ev.Departed == "" {
			return errors.New("peer-left event missing departed")
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownEventType, ev.Type)
	}
	return nil
}

// ClientEvent reports whether a client is allowed to send this event type
// to the relay.
func (ev Event) ClientEvent() bool {
	switch ev.Type {
	case EventJoin, EventSignal, EventChat, EventTyping:
		return true
	default:
		return false
	}
}

// Bool is a convenience for filling the IsTyping field.
func Bool(v bool) *bool { return &v }
