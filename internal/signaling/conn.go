package signaling

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorvc/parlor/internal/metrics"
	"github.com/parlorvc/parlor/internal/protocol"
	"github.com/parlorvc/parlor/internal/ratelimit"
	"github.com/parlorvc/parlor/internal/relay"
)

const wsWriteWait = 5 * time.Second

// conn is one participant's signaling connection: a reader that feeds the
// relay and a single writer draining the participant's outbound queue.
type conn struct {
	id    string
	ws    *websocket.Conn
	log   *slog.Logger
	relay *relay.Relay
	queue *relay.Queue

	pingInterval time.Duration
	pongWait     time.Duration
	limiter      *ratelimit.TokenBucket

	// displayName is the last name the participant joined with; used as the
	// fallback for chat/typing events that omit one.
	displayName string
}

func newConn(s *Server, participantID string, ws *websocket.Conn) *conn {
	c := &conn{
		id:           participantID,
		ws:           ws,
		log:          s.log.With("participant", participantID),
		relay:        s.relay,
		pingInterval: s.cfg.WSPingInterval,
		pongWait:     s.cfg.WSPongWait,
		limiter:      ratelimit.NewTokenBucket(nil, int64(s.cfg.MaxSignalingMessagesPerSecond), int64(s.cfg.MaxSignalingMessagesPerSecond)),
	}
	c.ws.SetReadLimit(s.cfg.MaxSignalingMessageBytes)
	return c
}

func (c *conn) run() {
	c.queue = c.relay.Attach(c.id)

	welcome, _ := json.Marshal(protocol.Event{Type: protocol.EventWelcome, Sender: c.id})
	c.queue.Enqueue(welcome)

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(done)
	}()

	c.readPump()

	// Reader is gone: tear down membership, then the queue (which stops the
	// writer), then the socket.
	c.relay.HandleDisconnect(c.id)
	c.relay.Detach(c.id)
	close(done)
	<-writerDone
	_ = c.ws.Close()
	c.log.Debug("connection closed")
}

func (c *conn) readPump() {
	resetDeadline := func() error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	c.ws.SetPongHandler(func(string) error { return resetDeadline() })
	if err := resetDeadline(); err != nil {
		c.log.Error("failed to set read deadline", "err", err)
		return
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("client closed connection")
			} else {
				c.log.Debug("read failed", "err", err)
			}
			return
		}

		if !c.limiter.Allow(1) {
			c.metrics().Inc(metrics.DropReasonRateLimited)
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		ev, err := protocol.Parse(data)
		if err != nil {
			// Malformed payloads never affect the connection.
			c.metrics().Inc(metrics.DropReasonMalformedPayload)
			c.log.Warn("malformed event dropped", "err", err)
			continue
		}
		if !ev.ClientEvent() {
			c.metrics().Inc(metrics.DropReasonMalformedPayload)
			c.log.Warn("server-only event from client dropped", "type", ev.Type)
			continue
		}

		c.dispatch(ev)
	}
}

func (c *conn) dispatch(ev protocol.Event) {
	switch ev.Type {
	case protocol.EventJoin:
		if ev.DisplayName != "" {
			c.displayName = ev.DisplayName
		}
		c.relay.HandleJoin(c.id, ev.Room, c.displayName)
	case protocol.EventSignal:
		c.relay.Route(c.id, ev.Target, ev.Signal)
	case protocol.EventChat:
		c.relay.HandleChat(c.id, c.nameFor(ev), ev.Text)
	case protocol.EventTyping:
		c.relay.HandleTyping(c.id, c.nameFor(ev), *ev.IsTyping)
	}
}

func (c *conn) nameFor(ev protocol.Event) string {
	if ev.DisplayName != "" {
		return ev.DisplayName
	}
	return c.displayName
}

func (c *conn) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		for {
			frame, ok := c.queue.Dequeue()
			if !ok {
				return
			}
			select {
			case frames <- frame:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				c.writeClose(websocket.CloseNormalClosure, "")
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed", "err", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (c *conn) writeClose(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (c *conn) metrics() *metrics.Metrics { return c.relay.Metrics() }
