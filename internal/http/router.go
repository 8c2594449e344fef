package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/ratelimit"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/auth"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/console"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/kv"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/leaderboard"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/remoteconfig"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/telemetry"
)

const (
	rateWindowDefault   = time.Minute
	rateLimitGuest      = 10
	rateLimitRegister   = 5
	rateLimitLogin      = 12
	rateLimitRefresh    = 30
	rateLimitAdminLogin = 10
	rateLimitUserWrite  = 120
	rateLimitUserRead   = 240
	healthCheckTimeout  = 2 * time.Second
)

// Deps carries the collaborators a Router serves.
type Deps struct {
	Logger       *slog.Logger
	Auth         auth.Service
	Admin        auth.Admin
	KV           kv.Service
	Leaderboard  leaderboard.Service
	Console      console.Service
	RemoteConfig *remoteconfig.Service
	Telemetry    *telemetry.Service
	Stats        repository.StatsRepository
	Limiter      ratelimit.Limiter
	DBHealth     func(context.Context) error
	// Registerer receives the router's collectors; Gatherer backs /metrics.
	// Both may be nil.
	Registerer       prometheus.Registerer
	Gatherer         prometheus.Gatherer
	StreamSendBuffer int
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	observed     http.Handler
	logger       *slog.Logger
	auth         auth.Service
	admin        auth.Admin
	kv           kv.Service
	leaderboard  leaderboard.Service
	console      console.Service
	remoteConfig *remoteconfig.Service
	telemetry    *telemetry.Service
	stats        repository.StatsRepository
	upgrader     websocket.Upgrader
	limiter      ratelimit.Limiter
	dbHealth     func(context.Context) error
	metrics      routerMetrics
	gatherer     prometheus.Gatherer
	streamBuffer int
}

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		auth:         deps.Auth,
		admin:        deps.Admin,
		kv:           deps.KV,
		leaderboard:  deps.Leaderboard,
		console:      deps.Console,
		remoteConfig: deps.RemoteConfig,
		telemetry:    deps.Telemetry,
		stats:        deps.Stats,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      deps.Limiter,
		dbHealth:     deps.DBHealth,
		metrics:      newRouterMetrics(deps.Registerer),
		gatherer:     deps.Gatherer,
		streamBuffer: deps.StreamSendBuffer,
	}
	if r.limiter == nil {
		r.limiter = ratelimit.NewMemory()
	}
	r.register()
	r.observed = r.observe(r.mux)
	return r
}

// ServeHTTP delegates to the observed mux. Dashboard polling endpoints and
// /metrics skip request capture and audit logging so watching the console
// does not feed the console.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if bypassObservation(req.URL.Path) {
		r.mux.ServeHTTP(w, req)
		return
	}
	r.observed.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		_ = r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /health", r.handleHealth)
	if r.gatherer != nil {
		r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	}

	r.mux.HandleFunc("POST /v1/auth/guest", r.withRateLimit("auth_guest", rateLimitGuest, rateWindowDefault, rateLimitKeyIP, r.handleGuest))
	r.mux.HandleFunc("POST /v1/auth/register", r.withRateLimit("auth_register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister))
	r.mux.HandleFunc("POST /v1/auth/login", r.withRateLimit("auth_login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin))
	r.mux.HandleFunc("POST /v1/auth/refresh", r.withRateLimit("auth_refresh", rateLimitRefresh, rateWindowDefault, rateLimitKeyIP, r.handleRefresh))
	r.mux.HandleFunc("POST /v1/auth/logout", r.handleLogout)

	r.mux.HandleFunc("GET /v1/kv/{key}", r.userRate("kv_read", rateLimitUserRead, r.handleKVGet))
	r.mux.HandleFunc("PUT /v1/kv/{key}", r.userRate("kv_write", rateLimitUserWrite, r.handleKVPut))
	r.mux.HandleFunc("DELETE /v1/kv/{key}", r.userRate("kv_write", rateLimitUserWrite, r.handleKVDelete))

	r.mux.HandleFunc("POST /v1/leaderboards/{board}/submit", r.userRate("leaderboard_write", rateLimitUserWrite, r.handleScoreSubmit))
	r.mux.HandleFunc("GET /v1/leaderboards/{board}/top", r.userRate("leaderboard_read", rateLimitUserRead, r.handleScoreTop))
	r.mux.HandleFunc("GET /v1/leaderboards/{board}/me", r.userRate("leaderboard_read", rateLimitUserRead, r.handleScoreMe))

	r.mux.HandleFunc("GET /v1/config", r.handleRemoteConfig)

	r.mux.HandleFunc("POST /admin/login", r.withRateLimit("admin_login", rateLimitAdminLogin, rateWindowDefault, rateLimitKeyIP, r.handleAdminLogin))
	r.mux.HandleFunc("GET /admin/me", r.requireAdmin(r.handleAdminMe))
	r.mux.HandleFunc("GET /admin/stats", r.requireAdmin(r.handleAdminStats))
	r.mux.HandleFunc("GET /admin/users", r.requireAdmin(r.handleConsoleUsers))
	r.mux.HandleFunc("GET /admin/users/{id}", r.requireAdmin(r.handleConsoleUser))
	r.mux.HandleFunc("DELETE /admin/users/{id}", r.requireAdmin(r.handleConsoleDeleteUser))
	r.mux.HandleFunc("PATCH /admin/users/{id}/ban", r.requireAdmin(r.handleAdminBan))
	r.mux.HandleFunc("GET /admin/kv", r.requireAdmin(r.handleConsoleKV))
	r.mux.HandleFunc("DELETE /admin/kv/{userId}/{key}", r.requireAdmin(r.handleConsoleDeleteKV))
	r.mux.HandleFunc("GET /admin/leaderboards", r.requireAdmin(r.handleConsoleBoards))
	r.mux.HandleFunc("GET /admin/leaderboards/{board}", r.requireAdmin(r.handleConsoleBoard))
	r.mux.HandleFunc("DELETE /admin/leaderboards/{board}", r.requireAdmin(r.handleConsoleClearBoard))
	r.mux.HandleFunc("DELETE /admin/leaderboards/{board}/{id}", r.requireAdmin(r.handleConsoleDeleteScore))
	r.mux.HandleFunc("GET /admin/endpoints", r.requireAdmin(r.handleEndpoints))
	r.mux.HandleFunc("GET /admin/requests", r.requireAdmin(r.handleRecentRequests))
	r.mux.HandleFunc("GET /admin/rps", r.requireAdmin(r.handleRPS))
	r.mux.HandleFunc("GET /admin/stream", r.handleTelemetrySSE)
	r.mux.HandleFunc("GET "+streamPath, r.handleTelemetryWS)

	r.mux.HandleFunc("/", r.handleNotFound)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := "ok"
	code := http.StatusOK
	database := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("database health check failed", "error", err)
			status, database, code = "degraded", "unavailable", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]string{
			"database": database,
		},
	})
}

func (r *Router) handleNotFound(w http.ResponseWriter, req *http.Request) {
	writeError(w, http.StatusNotFound, codeNotFound, "Route "+req.URL.Path+" not found")
}

// observe audits every request and feeds capturable ones to telemetry once
// the handler has returned.
func (r *Router) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(recorder, req)
		duration := time.Since(start)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		info, _ := authInfoFromContext(ctx)

		r.audit(req, status, recorder.bytes, duration, info)
		r.recordRequestMetrics(req.Method, routeLabel(req), status, duration)
		if r.telemetry != nil && shouldCapture(req.URL.Path) {
			r.capture(req, status, duration, info)
		}
	})
}

func (r *Router) audit(req *http.Request, status, bytes int, duration time.Duration, info authInfo) {
	actor := "anonymous"
	fields := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"status", status,
		"bytes", bytes,
		"duration_ms", duration.Milliseconds(),
	}
	if ip := clientIP(req); ip != "" {
		fields = append(fields, "ip", ip)
	}
	if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
		fields = append(fields, "request_id", reqID)
	}
	switch {
	case info.UserID != "":
		actor = "user"
		fields = append(fields, "user_id", info.UserID)
	case info.AdminID != 0:
		actor = "admin"
		fields = append(fields, "admin", info.Username)
	}
	fields = append(fields, "actor", actor)

	switch {
	case status >= http.StatusInternalServerError:
		r.logger.Error("http_request", fields...)
	case status >= http.StatusBadRequest:
		r.logger.Warn("http_request", fields...)
	default:
		r.logger.Info("http_request", fields...)
	}
}

func routeLabel(req *http.Request) string {
	if req.Pattern == "" || req.Pattern == "/" {
		return "unmatched"
	}
	return req.Pattern
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
