package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/discovery"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Watch stream message types
const (
	WSTypeGroup = "group"
	WSTypeError = "error"
)

// WSMessage is one message of the group watch stream
type WSMessage struct {
	Type      string     `json:"type"`
	Timestamp string     `json:"timestamp"`
	Group     *GroupView `json:"group,omitempty"`
	Error     string     `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The API binds to loopback by default
		return true
	},
}

// watchConn is one open group watch stream
type watchConn struct {
	conn      *websocket.Conn
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (w *watchConn) close() {
	w.closeOnce.Do(func() {
		w.cancel()
		_ = w.conn.Close()
	})
}

// handleWatch upgrades to a WebSocket and forwards every group the session
// confirms. When a probe failure ends the subscription the client gets an
// error message and a normal close; it may reconnect to subscribe again.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// The request context ends when the handler returns, so the stream gets its own
	ctx, cancel := context.WithCancel(context.Background())
	wc := &watchConn{conn: conn, cancel: cancel}
	s.trackWatcher(wc, true)
	defer func() {
		s.trackWatcher(wc, false)
		wc.close()
	}()

	remote := r.RemoteAddr
	s.logger.Debug("watch stream opened", zap.String("remote_addr", remote))

	sub := s.backend.Subscribe(ctx)
	defer sub.Close()

	go s.readPump(wc)
	s.writePump(wc, sub)

	s.logger.Debug("watch stream closed", zap.String("remote_addr", remote), zap.Error(sub.Err()))
}

// readPump discards client messages and keeps the read deadline fresh. It
// cancels the stream when the client goes away.
func (s *Server) readPump(wc *watchConn) {
	defer wc.cancel()

	wc.conn.SetReadLimit(maxMessageSize)
	_ = wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump is the only writer of data frames on the connection
func (s *Server) writePump(wc *watchConn, sub *discovery.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case g, ok := <-sub.Groups():
			if !ok {
				s.finishStream(wc, sub.Err())
				return
			}
			view := NewGroupView(g)
			if err := s.send(wc, WSMessage{Type: WSTypeGroup, Group: &view}); err != nil {
				return
			}
		case <-ticker.C:
			_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(wc *watchConn, msg WSMessage) error {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	_ = wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.conn.WriteJSON(msg)
}

// finishStream reports why the subscription ended, then closes the stream
func (s *Server) finishStream(wc *watchConn, err error) {
	code, reason := websocket.CloseNormalClosure, "stream ended"
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		// Client went away or the server is shutting down
		return
	case errors.Is(err, discovery.ErrSessionClosed):
		code, reason = websocket.CloseGoingAway, "discovery session closed"
	default:
		_ = s.send(wc, WSMessage{Type: WSTypeError, Error: err.Error()})
		reason = "probe failed"
	}
	_ = wc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
