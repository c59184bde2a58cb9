// Package media owns the local outgoing tracks: camera/mic toggles, screen
// share and the placeholder stream shown when everything is muted.
package media

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Links is the part of the peer link set the controller drives.
type Links interface {
	SetOutgoingTracks(audio, video webrtc.TrackLocal)
	RenegotiateAll()
}

// TrackPair is one audio/video source.
type TrackPair struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal
}

type Config struct {
	Logger *slog.Logger
	Links  Links
	// Live is the capture source; headless clients may pass synthetic tracks.
	Live TrackPair
	// Placeholder replaces the whole outgoing stream when both audio and
	// video are disabled, so senders never drop to zero.
	Placeholder TrackPair
	// Screen is the screen-share video source; its Audio is ignored.
	Screen TrackPair
}

// Controller applies media state changes and triggers exactly one
// renegotiation round per mutation. Redundant mutations (setting a toggle to
// its current value) do nothing.
type Controller struct {
	log   *slog.Logger
	links Links

	live        TrackPair
	placeholder TrackPair
	screen      TrackPair

	mu      sync.Mutex
	audio   bool
	video   bool
	sharing bool
}

func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		log:         logger,
		links:       cfg.Links,
		live:        cfg.Live,
		placeholder: cfg.Placeholder,
		screen:      cfg.Screen,
		audio:       true,
		video:       true,
	}
}

func (c *Controller) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

func (c *Controller) VideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video
}

func (c *Controller) ScreenSharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharing
}

func (c *Controller) SetAudioEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio == enabled {
		return
	}
	c.audio = enabled
	c.applyLocked("audio toggled")
}

func (c *Controller) SetVideoEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == enabled {
		return
	}
	c.video = enabled
	c.applyLocked("video toggled")
}

func (c *Controller) StartScreenShare() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sharing {
		return
	}
	c.sharing = true
	c.applyLocked("screen share started")
}

func (c *Controller) StopScreenShare() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sharing {
		return
	}
	c.sharing = false
	c.applyLocked("screen share stopped")
}

// Current returns the tracks a freshly created link should start with. New
// engines need senders in place before their first offer.
func (c *Controller) Current() (audio, video webrtc.TrackLocal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Controller) applyLocked(reason string) {
	audio, video := c.currentLocked()
	c.links.SetOutgoingTracks(audio, video)
	c.links.RenegotiateAll()
	c.log.Debug("media changed", "reason", reason,
		"audio", c.audio, "video", c.video, "screen", c.sharing)
}

func (c *Controller) currentLocked() (audio, video webrtc.TrackLocal) {
	if c.sharing {
		a := c.live.Audio
		if !c.audio {
			a = c.placeholder.Audio
		}
		return a, c.screen.Video
	}
	if !c.audio && !c.video {
		return c.placeholder.Audio, c.placeholder.Video
	}
	a, v := c.live.Audio, c.live.Video
	if !c.audio {
		a = c.placeholder.Audio
	}
	if !c.video {
		v = c.placeholder.Video
	}
	return a, v
}
