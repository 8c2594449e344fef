package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	maxMessageSize    = 4096
	defaultSendBuffer = 64
)

// Client represents a websocket client connection. Outbound frames are queued
// and written by a dedicated goroutine so Send never blocks the caller.
type Client struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient constructs a client wrapper and starts its writer.
func NewClient(conn *websocket.Conn, logger *slog.Logger, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	c := &Client{
		id:   id,
		conn: conn,
		log:  logger.With("subscriber_id", id, "transport", "websocket"),
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// ID returns the subscriber identifier used in logs.
func (c *Client) ID() string { return c.id }

// Send queues a text frame.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrBacklog
	}
}

// Ping writes a ping control frame. Control writes may run concurrently with
// the writer goroutine.
func (c *Client) Ping() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.log.Warn("websocket ping failed", "error", err)
		c.Close()
		return err
	}
	return nil
}

// Close terminates the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadLoop reads frames until the connection fails. Text frames go to
// onMessage and pong frames to onPong. The client is closed on return.
func (c *Client) ReadLoop(onMessage func([]byte), onPong func()) {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return nil
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read failed", "error", err)
			}
			return
		}
		if kind == websocket.TextMessage && onMessage != nil {
			onMessage(data)
		}
	}
}

func (c *Client) writePump() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Warn("websocket send failed", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Reject sends a close frame with the given code and terminates the connection.
func Reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
