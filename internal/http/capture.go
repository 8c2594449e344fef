package httpx

import (
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
)

const (
	streamPath         = "/ws/admin"
	maxUserAgentLength = 100
	unknownUserAgent   = "unknown"
)

// Requests on these prefixes never reach the observation middleware.
var bypassPrefixes = []string{"/admin/requests", "/admin/rps", "/metrics"}

var (
	excludedPrefixes = []string{"/css/", "/js/", "/favicon", streamPath, "/admin/stream"}
	dashboardPages   = map[string]struct{}{
		"/login":        {},
		"/dashboard":    {},
		"/console":      {},
		"/users":        {},
		"/kv":           {},
		"/leaderboards": {},
		"/endpoints":    {},
	}
	staticExtensions = map[string]struct{}{
		".html": {}, ".css": {}, ".js": {}, ".ico": {}, ".png": {},
		".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".woff": {},
		".woff2": {}, ".ttf": {}, ".eot": {}, ".map": {},
	}
)

func bypassObservation(p string) bool {
	for _, prefix := range bypassPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// shouldCapture reports whether a request path belongs in the live request
// log. Static assets, dashboard pages, the stream endpoints and the root page
// are excluded. A query string or fragment never affects the decision, so a
// raw request URI classifies the same as its path.
func shouldCapture(target string) bool {
	p := target
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		p = "/"
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return false
		}
	}
	if _, ok := dashboardPages[p]; ok {
		return false
	}
	if _, ok := staticExtensions[strings.ToLower(path.Ext(p))]; ok {
		return false
	}
	return p != "/"
}

func (r *Router) capture(req *http.Request, status int, duration time.Duration, info authInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("request capture failed", "path", req.URL.Path, "panic", rec)
		}
	}()

	uri := req.RequestURI
	if uri == "" {
		uri = req.URL.RequestURI()
	}
	ev := domain.CaptureEvent{
		Method:     req.Method,
		Path:       uri,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		IP:         clientIP(req),
		UserAgent:  truncateUserAgent(req.UserAgent()),
	}
	if info.UserID != "" {
		userID := info.UserID
		ev.UserID = &userID
	}
	r.telemetry.Record(ev)
}

func truncateUserAgent(ua string) string {
	if ua == "" {
		return unknownUserAgent
	}
	if utf8.RuneCountInString(ua) <= maxUserAgentLength {
		return ua
	}
	runes := []rune(ua)
	return string(runes[:maxUserAgentLength])
}
