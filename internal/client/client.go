// Package client implements the participant side of the signaling protocol:
// it dials the server, joins a room and feeds roster/signal events into the
// per-peer negotiation links.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorvc/parlor/internal/peerlink"
	"github.com/parlorvc/parlor/internal/protocol"
)

const (
	dialTimeout    = 10 * time.Second
	welcomeTimeout = 10 * time.Second
	writeWait      = 5 * time.Second
)

type Config struct {
	// URL is the signaling endpoint, e.g. ws://127.0.0.1:8080/ws.
	URL         string
	Room        string
	DisplayName string
	Logger      *slog.Logger

	// Engines builds the transport behind each peer link.
	Engines            peerlink.EngineFactory
	NegotiationTimeout time.Duration

	// Event callbacks; all optional, invoked from the read loop.
	OnRoster   func(joined string, roster []protocol.RosterEntry)
	OnChat     func(senderID, displayName, text string, at time.Time)
	OnTyping   func(senderID, displayName string, isTyping bool)
	OnPeerLeft func(departedID string)
}

type Client struct {
	cfg   Config
	log   *slog.Logger
	ws    *websocket.Conn
	id    string
	links *peerlink.Set

	// writeMu serializes writes; signals are sent both from the read loop
	// and from engine callbacks.
	writeMu sync.Mutex
}

// Dial connects, waits for the server's welcome (carrying our assigned
// participant identifier) and sends the join. The caller then runs the event
// loop via Run.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		cfg: cfg,
		log: logger,
		ws:  ws,
	}

	if err := c.awaitWelcome(); err != nil {
		ws.Close()
		return nil, err
	}
	c.log = c.log.With("participant", c.id)

	c.links = peerlink.NewSet(peerlink.SetConfig{
		LocalID:            c.id,
		Logger:             c.log,
		Engines:            cfg.Engines,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Send: func(toID string, payload protocol.SignalPayload) {
			c.sendSignal(toID, payload)
		},
	})

	if err := c.write(protocol.Event{
		Type:        protocol.EventJoin,
		Room:        cfg.Room,
		DisplayName: cfg.DisplayName,
	}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	return c, nil
}

func (c *Client) awaitWelcome() error {
	if err := c.ws.SetReadDeadline(time.Now().Add(welcomeTimeout)); err != nil {
		return err
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	ev, err := protocol.Parse(data)
	if err != nil {
		return fmt.Errorf("parse welcome: %w", err)
	}
	if ev.Type != protocol.EventWelcome {
		return fmt.Errorf("expected welcome, got %q", ev.Type)
	}
	c.id = ev.Sender
	return c.ws.SetReadDeadline(time.Time{})
}

// ID returns the server-assigned participant identifier.
func (c *Client) ID() string { return c.id }

// Links exposes the peer link set, e.g. for the media controller.
func (c *Client) Links() *peerlink.Set { return c.links }

// Run reads and dispatches events until the connection drops or ctx is
// cancelled. It always tears down every peer link before returning.
func (c *Client) Run(ctx context.Context) error {
	defer c.links.CloseAll()

	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.Close()
	})
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("signaling read: %w", err)
		}

		ev, err := protocol.Parse(data)
		if err != nil {
			c.log.Warn("unparseable server event dropped", "err", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventRosterUpdate:
		c.links.HandleRoster(ev.Joined, ev.Roster)
		if c.cfg.OnRoster != nil {
			c.cfg.OnRoster(ev.Joined, ev.Roster)
		}
	case protocol.EventSignal:
		c.links.HandleSignal(ev.Sender, ev.Signal)
	case protocol.EventChatDelivered:
		if c.cfg.OnChat != nil {
			c.cfg.OnChat(ev.Sender, ev.DisplayName, ev.Text, time.UnixMilli(ev.Timestamp))
		}
	case protocol.EventTypingUpdate:
		if c.cfg.OnTyping != nil {
			c.cfg.OnTyping(ev.Sender, ev.DisplayName, *ev.IsTyping)
		}
	case protocol.EventPeerLeft:
		c.links.HandlePeerLeft(ev.Departed)
		if c.cfg.OnPeerLeft != nil {
			c.cfg.OnPeerLeft(ev.Departed)
		}
	default:
		c.log.Debug("unexpected server event ignored", "type", ev.Type)
	}
}

// SendChat sends a chat line to the room.
func (c *Client) SendChat(text string) error {
	if text == "" {
		return errors.New("empty chat message")
	}
	return c.write(protocol.Event{
		Type:        protocol.EventChat,
		Text:        text,
		DisplayName: c.cfg.DisplayName,
	})
}

// SetTyping reports the local typing state.
func (c *Client) SetTyping(isTyping bool) error {
	return c.write(protocol.Event{
		Type:        protocol.EventTyping,
		IsTyping:    protocol.Bool(isTyping),
		DisplayName: c.cfg.DisplayName,
	})
}

func (c *Client) sendSignal(toID string, payload protocol.SignalPayload) {
	err := c.write(protocol.Event{
		Type:   protocol.EventSignal,
		Target: toID,
		Signal: &payload,
	})
	if err != nil {
		c.log.Warn("signal send failed", "to", toID, "err", err)
	}
}

func (c *Client) write(ev protocol.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(ev)
}

// Close closes the signaling connection; Run unblocks shortly after.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
