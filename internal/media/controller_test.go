package media

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v4"
)

type fakeTrack struct {
	id string
}

func (t *fakeTrack) ID() string       { return t.id }
func (t *fakeTrack) RID() string      { return "" }
func (t *fakeTrack) StreamID() string { return "fake" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType {
	return webrtc.RTPCodecTypeAudio
}
func (t *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (t *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }

type fakeLinks struct {
	renegotiations int
	audio, video   webrtc.TrackLocal
}

func (f *fakeLinks) SetOutgoingTracks(audio, video webrtc.TrackLocal) {
	f.audio, f.video = audio, video
}

func (f *fakeLinks) RenegotiateAll() { f.renegotiations++ }

type fixture struct {
	ctrl  *Controller
	links *fakeLinks

	liveAudio, liveVideo *fakeTrack
	phAudio, phVideo     *fakeTrack
	screenVideo          *fakeTrack
}

func newFixture() *fixture {
	f := &fixture{
		links:       &fakeLinks{},
		liveAudio:   &fakeTrack{id: "live-audio"},
		liveVideo:   &fakeTrack{id: "live-video"},
		phAudio:     &fakeTrack{id: "ph-audio"},
		phVideo:     &fakeTrack{id: "ph-video"},
		screenVideo: &fakeTrack{id: "screen-video"},
	}
	f.ctrl = NewController(Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Links:       f.links,
		Live:        TrackPair{Audio: f.liveAudio, Video: f.liveVideo},
		Placeholder: TrackPair{Audio: f.phAudio, Video: f.phVideo},
		Screen:      TrackPair{Video: f.screenVideo},
	})
	return f
}

func TestToggleVideoRenegotiatesOnce(t *testing.T) {
	f := newFixture()

	f.ctrl.SetVideoEnabled(false)
	if f.links.renegotiations != 1 {
		t.Fatalf("renegotiations = %d, want 1", f.links.renegotiations)
	}
	if f.links.video != f.phVideo || f.links.audio != f.liveAudio {
		t.Fatalf("tracks after video off: audio=%v video=%v", f.links.audio, f.links.video)
	}

	// Same value again: no extra renegotiation round.
	f.ctrl.SetVideoEnabled(false)
	if f.links.renegotiations != 1 {
		t.Fatalf("redundant toggle renegotiated, count = %d", f.links.renegotiations)
	}

	f.ctrl.SetVideoEnabled(true)
	if f.links.renegotiations != 2 {
		t.Fatalf("renegotiations = %d, want 2", f.links.renegotiations)
	}
	if f.links.video != f.liveVideo {
		t.Fatalf("video track not restored: %v", f.links.video)
	}
}

func TestAllMutedFallsBackToPlaceholderPair(t *testing.T) {
	f := newFixture()

	f.ctrl.SetVideoEnabled(false)
	f.ctrl.SetAudioEnabled(false)

	if f.links.audio != f.phAudio || f.links.video != f.phVideo {
		t.Fatalf("expected full placeholder pair, got audio=%v video=%v", f.links.audio, f.links.video)
	}
	if f.links.renegotiations != 2 {
		t.Fatalf("renegotiations = %d, want one per mutation", f.links.renegotiations)
	}
}

func TestScreenShareSwapsVideoOnly(t *testing.T) {
	f := newFixture()

	f.ctrl.StartScreenShare()
	if f.links.video != f.screenVideo || f.links.audio != f.liveAudio {
		t.Fatalf("tracks during share: audio=%v video=%v", f.links.audio, f.links.video)
	}
	if !f.ctrl.ScreenSharing() {
		t.Fatalf("ScreenSharing() = false during share")
	}

	// Starting again is a no-op.
	f.ctrl.StartScreenShare()
	if f.links.renegotiations != 1 {
		t.Fatalf("redundant share renegotiated, count = %d", f.links.renegotiations)
	}

	f.ctrl.StopScreenShare()
	if f.links.video != f.liveVideo {
		t.Fatalf("video not restored after share: %v", f.links.video)
	}
	if f.links.renegotiations != 2 {
		t.Fatalf("renegotiations = %d, want 2", f.links.renegotiations)
	}
}

func TestScreenShareKeepsPlaceholderAudioWhenMuted(t *testing.T) {
	f := newFixture()

	f.ctrl.SetAudioEnabled(false)
	f.ctrl.StartScreenShare()

	if f.links.audio != f.phAudio || f.links.video != f.screenVideo {
		t.Fatalf("tracks: audio=%v video=%v", f.links.audio, f.links.video)
	}
}

func TestCurrentTracksFollowMediaState(t *testing.T) {
	f := newFixture()

	audio, video := f.ctrl.Current()
	if audio != f.liveAudio || video != f.liveVideo {
		t.Fatalf("initial tracks: audio=%v video=%v", audio, video)
	}

	f.ctrl.SetAudioEnabled(false)
	audio, video = f.ctrl.Current()
	if audio != f.phAudio || video != f.liveVideo {
		t.Fatalf("tracks with audio muted: audio=%v video=%v", audio, video)
	}
}
