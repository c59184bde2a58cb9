// Command parlor-peer is a headless participant: it joins a room, negotiates
// with every peer, prints chat and presence, and takes chat lines plus a few
// slash commands from stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"

	"github.com/parlorvc/parlor/internal/client"
	"github.com/parlorvc/parlor/internal/config"
	"github.com/parlorvc/parlor/internal/media"
	"github.com/parlorvc/parlor/internal/peerlink"
	"github.com/parlorvc/parlor/internal/protocol"
	"github.com/parlorvc/parlor/internal/webrtcpeer"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("parlor-peer", pflag.ContinueOnError)
	server := fs.StringP("server", "s", "http://127.0.0.1:8080", "signaling server base URL")
	roomID := fs.StringP("room", "r", "", "room to join")
	name := fs.StringP("name", "n", "", "display name")
	logLevel := fs.String("log-level", "warn", "log level (debug, info, warn, error)")
	negotiationTimeout := fs.Duration("negotiation-timeout", config.DefaultNegotiationTimeout, "unanswered offer timeout (0 disables)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *roomID == "" {
		fmt.Fprintln(os.Stderr, "--room is required")
		os.Exit(2)
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(*server, *roomID, *name, *negotiationTimeout, logger); err != nil {
		logger.Error("peer exited", "err", err)
		os.Exit(1)
	}
}

func run(server, roomID, name string, negotiationTimeout time.Duration, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iceServers, err := fetchICEServers(ctx, server)
	if err != nil {
		logger.Warn("ice bootstrap failed; continuing without ice servers", "err", err)
	}

	placeholder, err := media.NewPlaceholderTracks()
	if err != nil {
		return err
	}
	go placeholder.Run(ctx)

	// A headless peer has no capture hardware; live and screen content are
	// synthetic tracks too.
	live, err := media.NewPlaceholderTracks()
	if err != nil {
		return err
	}
	go live.Run(ctx)

	api := webrtcpeer.NewAPI(logger)

	// ctrl is assigned below; engines only run once the event loop starts.
	var ctrl *media.Controller
	engines := func(remoteID string, cb peerlink.Callbacks) (peerlink.Engine, error) {
		p, err := webrtcpeer.NewPeer(api, iceServers, cb)
		if err != nil {
			return nil, err
		}
		p.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			fmt.Printf("* receiving %s from %s\n", track.Kind(), remoteID)
		})
		// Senders must exist before the first offer or the SDP carries no
		// media sections.
		audio, video := ctrl.Current()
		if err := p.ReplaceTracks(audio, video); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	}

	c, err := client.Dial(ctx, client.Config{
		URL:                wsURL(server),
		Room:               roomID,
		DisplayName:        name,
		Logger:             logger,
		Engines:            engines,
		NegotiationTimeout: negotiationTimeout,
		OnRoster: func(joined string, roster []protocol.RosterEntry) {
			names := make([]string, 0, len(roster))
			for _, e := range roster {
				names = append(names, e.DisplayName)
			}
			fmt.Printf("* roster: %s\n", strings.Join(names, ", "))
		},
		OnChat: func(senderID, displayName, text string, at time.Time) {
			fmt.Printf("[%s] %s: %s\n", at.Format("15:04:05"), displayName, text)
		},
		OnTyping: func(senderID, displayName string, isTyping bool) {
			if isTyping {
				fmt.Printf("* %s is typing…\n", displayName)
			}
		},
		OnPeerLeft: func(departedID string) {
			fmt.Printf("* peer left: %s\n", departedID)
		},
	})
	if err != nil {
		return err
	}
	defer c.Close()
	fmt.Printf("* joined %q as %s\n", roomID, c.ID())

	ctrl = media.NewController(media.Config{
		Logger:      logger,
		Links:       c.Links(),
		Live:        live.Pair(),
		Placeholder: placeholder.Pair(),
		Screen:      media.TrackPair{Video: live.Video},
	})

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	go readStdin(ctx, c, ctrl)

	select {
	case err := <-runErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

// readStdin turns input lines into chat; slash commands drive media.
func readStdin(ctx context.Context, c *client.Client, ctrl *media.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/audio on":
			ctrl.SetAudioEnabled(true)
		case line == "/audio off":
			ctrl.SetAudioEnabled(false)
		case line == "/video on":
			ctrl.SetVideoEnabled(true)
		case line == "/video off":
			ctrl.SetVideoEnabled(false)
		case line == "/share":
			ctrl.StartScreenShare()
		case line == "/unshare":
			ctrl.StopScreenShare()
		case strings.HasPrefix(line, "/"):
			fmt.Println("commands: /audio on|off, /video on|off, /share, /unshare")
		default:
			if err := c.SendChat(line); err != nil {
				fmt.Fprintf(os.Stderr, "chat send failed: %v\n", err)
				return
			}
		}
	}
}

// fetchICEServers asks the signaling server for the ICE configuration,
// including ephemeral TURN credentials when the server provisions them.
func fetchICEServers(ctx context.Context, server string) ([]webrtc.ICEServer, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, strings.TrimRight(server, "/")+"/ice", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ice endpoint returned %s", resp.Status)
	}

	var body struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ice response: %w", err)
	}
	return body.ICEServers, nil
}

func wsURL(server string) string {
	base := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
