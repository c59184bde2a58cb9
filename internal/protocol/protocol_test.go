package protocol

import (
	"encoding/json"
	"testing"
)

func TestParse_Join(t *testing.T) {
	raw := []byte(`{"type":"join","room":"/meet/ABC123","displayName":"Ada"}`)

	ev, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != EventJoin || ev.Room != "/meet/ABC123" || ev.DisplayName != "Ada" {
		t.Fatalf("unexpected decoded join: %#v", ev)
	}
}

func TestParse_SignalDescription(t *testing.T) {
	ev := Event{
		Type:   EventSignal,
		Target: "peer-1",
		Signal: &SignalPayload{
			Description: &Description{Type: "offer", SDP: "v=0"},
		},
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Signal == nil || got.Signal.Description == nil || got.Signal.Description.SDP != "v=0" {
		t.Fatalf("unexpected decoded signal: %#v", got)
	}
}

func TestParse_SignalCandidate(t *testing.T) {
	raw := []byte(`{
		"type":"signal",
		"target":"peer-2",
		"signal":{
			"candidate":{
				"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host",
				"sdpMid":"0",
				"sdpMLineIndex":0
			}
		}
	}`)

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Signal == nil || got.Signal.Candidate == nil || got.Signal.Candidate.Candidate == "" {
		t.Fatalf("unexpected decoded candidate: %#v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type":"shout","text":"hi"}`},
		{"unknown field", `{"type":"chat","text":"hi","unexpected":true}`},
		{"trailing data", `{"type":"chat","text":"hi"}{}`},
		{"join without room", `{"type":"join","displayName":"Ada"}`},
		{"signal without payload", `{"type":"signal","target":"p"}`},
		{"signal with both variants", `{"type":"signal","target":"p","signal":{"description":{"type":"offer","sdp":"v=0"},"candidate":{"candidate":"c"}}}`},
		{"description with bad type", `{"type":"signal","target":"p","signal":{"description":{"type":"pranswer","sdp":"v=0"}}}`},
		{"candidate without string", `{"type":"signal","target":"p","signal":{"candidate":{"sdpMid":"0"}}}`},
		{"typing without flag", `{"type":"typing","displayName":"Ada"}`},
		{"chat without text", `{"type":"chat"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err == nil {
				t.Fatalf("expected error for %s", tc.raw)
			}
		})
	}
}

func TestParse_TypingFalseSurvivesRoundTrip(t *testing.T) {
	ev := Event{Type: EventTyping, IsTyping: Bool(false), DisplayName: "Ada"}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.IsTyping == nil || *got.IsTyping {
		t.Fatalf("isTyping=false lost in round trip: %#v", got)
	}
}

func TestDescription_PionConversion(t *testing.T) {
	d := Description{Type: "answer", SDP: "v=0"}
	pion, err := d.ToPion()
	if err != nil {
		t.Fatalf("to pion: %v", err)
	}
	back := DescriptionFromPion(pion)
	if back != d {
		t.Fatalf("got %#v, want %#v", back, d)
	}

	if _, err := (Description{Type: "rollback", SDP: "v=0"}).ToPion(); err == nil {
		t.Fatal("expected error for unsupported sdp type")
	}
}

func TestEvent_ClientEvent(t *testing.T) {
	if !(Event{Type: EventChat}).ClientEvent() {
		t.Fatal("chat should be a client event")
	}
	if (Event{Type: EventPeerLeft}).ClientEvent() {
		t.Fatal("peer-left must not be accepted from clients")
	}
}
