package ws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// SSEClient streams Server-Sent Events over an HTTP response writer. Frames
// are queued by Send and written by Serve on the request goroutine.
type SSEClient struct {
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	send    chan []byte
	ping    chan struct{}
	done    chan struct{}
	once    sync.Once
	onAlive func()
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger, buffer int) *SSEClient {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEClient{
		writer:  writer,
		flusher: flusher,
		log:     logger.With("transport", "sse"),
		send:    make(chan []byte, buffer),
		ping:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// OnAlive registers a callback run after every successful heartbeat write.
// It must be set before Serve.
func (c *SSEClient) OnAlive(fn func()) { c.onAlive = fn }

// Send queues a data event.
func (c *SSEClient) Send(payload []byte) error {
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

// Ping requests a heartbeat comment frame.
func (c *SSEClient) Ping() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the stream as closed and stops Serve.
func (c *SSEClient) Close() {
	c.once.Do(func() { close(c.done) })
}

// Serve writes queued frames until ctx ends, the client is closed or a write fails.
func (c *SSEClient) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case payload := <-c.send:
			if err := c.write("data: %s\n\n", payload); err != nil {
				c.log.Warn("sse send failed", "error", err)
				c.Close()
				return err
			}
		case <-c.ping:
			if err := c.write(": ping\n\n"); err != nil {
				c.log.Warn("sse heartbeat failed", "error", err)
				c.Close()
				return err
			}
			if c.onAlive != nil {
				c.onAlive()
			}
		}
	}
}

func (c *SSEClient) write(format string, args ...any) error {
	if _, err := fmt.Fprintf(c.writer, format, args...); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}
