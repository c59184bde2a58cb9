package signaling

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlorvc/parlor/internal/config"
	"github.com/parlorvc/parlor/internal/relay"
)

// Server upgrades participant connections and runs their event loops.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	relay    *relay.Relay
	upgrader websocket.Upgrader

	// newID generates participant identifiers; overridable in tests.
	newID func() string
}

func NewServer(cfg config.Config, logger *slog.Logger, r *relay.Relay) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:   cfg,
		log:   logger.With("component", "signaling"),
		relay: r,
		upgrader: websocket.Upgrader{
			// Membership is unauthenticated; the browser origin carries no
			// trust either.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		newID: uuid.NewString,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err, "remote_addr", r.RemoteAddr)
		return
	}

	participantID := s.newID()
	c := newConn(s, participantID, wsConn)
	go c.run()
}
