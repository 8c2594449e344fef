package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/telemetry"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/ws"
)

type recentRequestsResponse struct {
	Requests  []domain.CaptureEvent `json:"requests"`
	Timestamp int64                 `json:"timestamp"`
}

func (r *Router) handleRecentRequests(w http.ResponseWriter, req *http.Request) {
	since, _ := strconv.ParseInt(req.URL.Query().Get("since"), 10, 64)
	writeJSON(w, http.StatusOK, recentRequestsResponse{
		Requests:  r.telemetry.Recent(since),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (r *Router) handleRPS(w http.ResponseWriter, req *http.Request) {
	window, _ := strconv.Atoi(req.URL.Query().Get("window"))
	writeJSON(w, http.StatusOK, r.telemetry.RPS(window))
}

// handleTelemetryWS upgrades the dashboard stream. Rejected handshakes are
// upgraded and then closed with ws.CloseUnauthorized so browser clients can
// tell an auth failure from a network drop.
func (r *Router) handleTelemetryWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("stream upgrade failed", "error", err)
		return
	}
	claims, err := r.admin.Verify(req.URL.Query().Get("token"))
	if err != nil {
		r.logger.Warn("stream connection rejected", "ip", clientIP(req), "error", err)
		ws.Reject(conn, ws.CloseUnauthorized, "Unauthorized")
		return
	}

	client := ws.NewClient(conn, r.logger, r.streamBuffer)
	hub := r.telemetry.Hub()
	r.logger.Info("stream connected", "admin", claims.Username, "subscriber_id", client.ID())
	r.telemetry.Subscribe(client)
	client.ReadLoop(
		func(msg []byte) { r.telemetry.HandleControl(client, msg) },
		func() { hub.MarkAlive(client) },
	)
	r.telemetry.Unsubscribe(client)
	r.logger.Info("stream disconnected", "admin", claims.Username, "subscriber_id", client.ID())
}

// handleTelemetrySSE is the Server-Sent Events variant of the stream. The
// window is fixed by the query string because SSE has no upstream channel.
func (r *Router) handleTelemetrySSE(w http.ResponseWriter, req *http.Request) {
	token := strings.TrimSpace(req.URL.Query().Get("token"))
	if token == "" {
		if bearer, err := bearerToken(req.Header.Get("Authorization")); err == nil {
			token = bearer
		}
	}
	claims, err := r.admin.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired admin token")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeServer, "Streaming unsupported")
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger, r.streamBuffer)
	hub := r.telemetry.Hub()
	client.OnAlive(func() { hub.MarkAlive(client) })

	window, _ := strconv.Atoi(req.URL.Query().Get("window"))
	r.logger.Info("sse stream connected", "admin", claims.Username)
	r.telemetry.SubscribeWindow(client, telemetry.NormalizeWindow(window))
	_ = client.Serve(req.Context())
	r.telemetry.Unsubscribe(client)
	r.logger.Info("sse stream disconnected", "admin", claims.Username)
}
