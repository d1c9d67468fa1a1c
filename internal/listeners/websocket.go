package listeners

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/websearch/internal/crawler"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Clients only send control frames; anything larger is abuse.
	maxMessageSize = 4 << 10
)

// Send pings to peer with this period. Must be less than pongWait.
var pingPeriod = (pongWait * 9) / 10

// ErrClosed is returned by Deliver once the client has gone away.
var ErrClosed = errors.New("websocket closed")

// Upgrader accepts same-host browser origins and non-browser clients.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameHostOrigin,
}

func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return strings.EqualFold(u.Hostname(), strings.Split(r.Host, ":")[0])
}

// WebSocket streams snapshots to one connected client. Deliver only queues;
// the write pump started by Serve is the connection's single writer.
type WebSocket struct {
	conn   *websocket.Conn
	send   chan crawler.Statistics
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewWebSocket wraps an upgraded connection.
func NewWebSocket(conn *websocket.Conn, logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocket{
		conn:   conn,
		send:   make(chan crawler.Statistics, 1),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Name implements gateway.Listener.
func (*WebSocket) Name() string { return "websocket" }

// Deliver implements gateway.Listener.
func (ws *WebSocket) Deliver(ctx context.Context, stats crawler.Statistics) error {
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- stats:
		return nil
	case <-ws.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve pumps the connection until the client disconnects or ctx ends.
func (ws *WebSocket) Serve(ctx context.Context) {
	go ws.writePump(ctx)
	ws.readPump()
	ws.close()
}

// Done is closed once the connection is finished.
func (ws *WebSocket) Done() <-chan struct{} { return ws.done }

func (ws *WebSocket) close() {
	ws.once.Do(func() {
		close(ws.done)
		_ = ws.conn.Close()
	})
}

// readPump discards client frames; it exists to process pongs and notice the
// close.
func (ws *WebSocket) readPump() {
	ws.conn.SetReadLimit(maxMessageSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func (ws *WebSocket) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.close()
	}()
	for {
		select {
		case stats := <-ws.send:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteJSON(stats); err != nil {
				ws.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ws.done:
			return
		}
	}
}
