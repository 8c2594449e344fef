package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	c, err := New(" localhost:3000/ ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.BaseURL() != "http://localhost:3000" {
		t.Fatalf("unexpected base url %q", c.BaseURL())
	}
	c, _ = New("")
	if c.BaseURL() != defaultBaseURL {
		t.Fatalf("expected default base url, got %q", c.BaseURL())
	}
}

func TestLoginAndRecentRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "admin" || body["password"] != "admin123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"Invalid credentials"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok","admin":{"id":1,"username":"admin","role":"admin"}}`))
	})
	mux.HandleFunc("GET /admin/requests", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("since") != "41" {
			t.Errorf("expected since=41, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"requests":[{"id":42,"timestamp":1700000000000,"method":"GET","path":"/v1/config","status":200,"duration":3,"ip":"1.2.3.4","userAgent":"ua","userId":null}],"timestamp":1700000000001}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	_, err = c.Login(ctx, "admin", "wrong")
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Code != "unauthorized" || apiErr.Message != "Invalid credentials" {
		t.Fatalf("expected unauthorized api error, got %v", err)
	}

	resp, err := c.Login(ctx, "admin", "admin123")
	if err != nil || resp.Token != "tok" || resp.Admin.Username != "admin" {
		t.Fatalf("unexpected login %+v %v", resp, err)
	}

	reqs, err := c.RecentRequests(ctx, resp.Token, 41)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(reqs) != 1 || reqs[0].ID != 42 || reqs[0].UserID != nil || reqs[0].Time().UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected requests %+v", reqs)
	}
}

func TestStreamDecodesAndReportsUnauthorized(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if r.URL.Query().Get("token") != "good" {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(CloseUnauthorized, "Unauthorized"))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","data":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"rps","data":{"data":[],"stats":{"current":0,"average":0,"peak":0,"total":0},"bucketSeconds":5,"windowMinutes":5}}`))
		var control map[string]any
		if err := conn.ReadJSON(&control); err != nil {
			return
		}
		if control["type"] == "setWindow" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"request","data":{"id":7,"method":"POST","path":"/v1/auth/guest","status":200}}`))
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bad, err := c.Stream(ctx, "bad")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := bad.Next(); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_ = bad.Close()

	stream, err := c.Stream(ctx, "good")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer stream.Close()

	msg, err := stream.Next()
	if err != nil || msg.Type != MessageRPS || msg.RPS == nil || msg.RPS.WindowMinutes != 5 {
		t.Fatalf("expected rps snapshot, got %+v %v", msg, err)
	}
	if err := stream.SetWindow(15); err != nil {
		t.Fatalf("set window: %v", err)
	}
	msg, err = stream.Next()
	if err != nil || msg.Request == nil || msg.Request.ID != 7 {
		t.Fatalf("expected request push, got %+v %v", msg, err)
	}
}
