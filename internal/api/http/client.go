package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/studyroom/internal/domain"
	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
)

// WSConfig tunes the per-connection pumps.
type WSConfig struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func (c WSConfig) withDefaults() WSConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	return c
}

// pingPeriod must stay below pongWait.
func (c WSConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// wsClient is the outbound side of one websocket. It implements service.Sink.
type wsClient struct {
	conn *websocket.Conn
	cfg  WSConfig
	log  *slog.Logger

	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, cfg WSConfig, log *slog.Logger) *wsClient {
	return &wsClient{
		conn: conn,
		cfg:  cfg,
		log:  log,
		send: make(chan domain.Event, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues the event without blocking. A client whose buffer is full is
// too slow to keep up and gets disconnected.
func (c *wsClient) Send(event domain.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn("send buffer full, closing connection", slog.String("type", string(event.Type)))
		c.Close()
		return false
	}
}

func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump feeds frames to handle until the socket fails or the client is closed.
func (c *wsClient) readPump(handle func(raw []byte)) {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket read failed", sl.Err(err))
			}
			return
		}
		handle(raw)
	}
}

// writePump is the only writer of the socket. It closes the socket on exit,
// which also unblocks readPump.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Info("websocket write failed", sl.Err(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain writes whatever is still queued when the client is closed.
func (c *wsClient) drain() {
	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		default:
			return
		}
	}
}
