package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Path is where NewMux serves the websocket endpoint.
const Path = "/ws"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// CloseSlowConsumer is the close reason sent to a dropped subscriber.
const CloseSlowConsumer = "slow consumer"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local observers only; no browser auth to protect
	},
}

// Handler streams a broadcaster's frames to websocket clients.
type Handler struct {
	b      *Broadcaster
	logger *slog.Logger
}

// NewHandler creates a websocket handler for b.
func NewHandler(b *Broadcaster, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{b: b, logger: logger}
}

// NewMux returns a mux serving the handler at Path.
func NewMux(b *Broadcaster, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(Path, NewHandler(b, logger))
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.b.Subscribe()
	if err != nil {
		h.logger.Error("subscribe failed", "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}
	defer sub.Close()

	h.logger.Info("observer connected", "remote", r.RemoteAddr)
	gone := readPump(conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-sub.C:
			if !ok {
				if sub.Dropped() {
					h.logger.Warn("observer dropped", "remote", r.RemoteAddr)
					closeWith(conn, websocket.CloseTryAgainLater, CloseSlowConsumer)
				} else {
					closeWith(conn, websocket.CloseNormalClosure, "")
				}
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				h.logger.Warn("observer write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			h.logger.Info("observer disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// readPump discards client frames and closes the returned channel once the
// client goes away. Reading is required for control frames to be handled.
func readPump(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return gone
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
