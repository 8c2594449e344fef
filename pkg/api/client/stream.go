package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// CloseUnauthorized is the close code sent when the stream token is rejected.
const CloseUnauthorized = 4001

// ErrUnauthorized is returned by Stream.Next when the server rejected the token.
var ErrUnauthorized = errors.New("stream: unauthorized")

// Stream message types.
const (
	MessageRequest = "request"
	MessageRPS     = "rps"
)

// StreamMessage is one pushed frame. Exactly one of Request or RPS is set.
type StreamMessage struct {
	Type    string
	Request *Request
	RPS     *RPSSnapshot
}

// Stream is a live connection to the admin telemetry stream.
type Stream struct {
	conn *websocket.Conn
}

// Stream dials the telemetry WebSocket using token.
func (c *Client) Stream(ctx context.Context, token string) (*Stream, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/admin"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// SetWindow asks the server to switch the RPS lookback window.
func (s *Stream) SetWindow(window int) error {
	return s.conn.WriteJSON(map[string]any{"type": "setWindow", "window": window})
}

// Next blocks for the next message. Unknown message types are skipped.
func (s *Stream) Next() (StreamMessage, error) {
	for {
		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, CloseUnauthorized) {
				return StreamMessage{}, ErrUnauthorized
			}
			return StreamMessage{}, err
		}
		msg := StreamMessage{Type: frame.Type}
		switch frame.Type {
		case MessageRequest:
			msg.Request = new(Request)
			if err := json.Unmarshal(frame.Data, msg.Request); err != nil {
				return StreamMessage{}, fmt.Errorf("decode request: %w", err)
			}
		case MessageRPS:
			msg.RPS = new(RPSSnapshot)
			if err := json.Unmarshal(frame.Data, msg.RPS); err != nil {
				return StreamMessage{}, fmt.Errorf("decode rps: %w", err)
			}
		default:
			continue
		}
		return msg, nil
	}
}

// Close terminates the connection.
func (s *Stream) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
