// Package webrtcpeer constructs pion PeerConnections and adapts them to the
// engine interface the negotiation state machine drives.
package webrtcpeer

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// NewAPI builds the shared pion API with pion's internals logging through
// the given slog logger.
func NewAPI(logger *slog.Logger) *webrtc.API {
	if logger == nil {
		logger = slog.Default()
	}
	se := webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(logger.With("component", "pion")),
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}
