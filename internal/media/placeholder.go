package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 100 * time.Millisecond
)

// silentOpusFrame is a pre-encoded Opus DTX frame: decoders render it as
// silence.
var silentOpusFrame = []byte{0xf8, 0xff, 0xfe}

// blackVP8Frame is a pre-encoded VP8 keyframe of a 2x2 black picture; it
// keeps the video sender alive while producing nothing visible.
var blackVP8Frame = []byte{
	0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x02, 0x00, 0x02, 0x00,
	0x00, 0x47, 0x08, 0x85, 0x85, 0x88, 0x85, 0x84, 0x88, 0x02,
	0x02, 0x00, 0x0c, 0x0d, 0x60, 0x00, 0xfe, 0xff, 0xab, 0x50,
	0x80,
}

// PlaceholderTracks is the silent-audio + black-video pair sent while the
// participant has everything muted.
type PlaceholderTracks struct {
	Audio *webrtc.TrackLocalStaticSample
	Video *webrtc.TrackLocalStaticSample
}

func NewPlaceholderTracks() (*PlaceholderTracks, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio-placeholder", "placeholder",
	)
	if err != nil {
		return nil, fmt.Errorf("placeholder audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video-placeholder", "placeholder",
	)
	if err != nil {
		return nil, fmt.Errorf("placeholder video track: %w", err)
	}
	return &PlaceholderTracks{Audio: audio, Video: video}, nil
}

// Pair adapts the tracks for the controller.
func (p *PlaceholderTracks) Pair() TrackPair {
	return TrackPair{Audio: p.Audio, Video: p.Video}
}

// Run writes silence and black frames until ctx is cancelled. Write errors
// are expected while no sender is attached and are ignored.
func (p *PlaceholderTracks) Run(ctx context.Context) {
	audioTicker := time.NewTicker(audioFrameInterval)
	defer audioTicker.Stop()
	videoTicker := time.NewTicker(videoFrameInterval)
	defer videoTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-audioTicker.C:
			_ = p.Audio.WriteSample(media.Sample{Data: silentOpusFrame, Duration: audioFrameInterval})
		case <-videoTicker.C:
			_ = p.Video.WriteSample(media.Sample{Data: blackVP8Frame, Duration: videoFrameInterval})
		}
	}
}
