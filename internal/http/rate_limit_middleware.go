package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/ratelimit"
)

// withRateLimit meters a route per key. Keys are scoped by route so one
// route's budget never drains another.
func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.limiter == nil || limit <= 0 {
			next(w, req)
			return
		}
		subject := keyFn(req)
		if subject == "" {
			subject = rateLimitKeyIP(req)
		}
		d := r.limiter.Allow(req.Context(), route+"|"+subject, limit, window)
		setRateHeaders(w.Header(), d)
		if d.Allowed {
			next(w, req)
			return
		}
		r.recordRateLimitHit(route, rateMetricKey(subject))
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests, please try again later")
	}
}

// userRate authenticates the player and then rate limits per player.
func (r *Router) userRate(route string, limit int, next http.HandlerFunc) http.HandlerFunc {
	return r.requireUser(r.withRateLimit(route, limit, rateWindowDefault, rateLimitKeyUser, next))
}

func rateLimitKeyUser(req *http.Request) string {
	info, ok := authInfoFromContext(req.Context())
	if !ok || info.UserID == "" {
		return ""
	}
	return "user:" + info.UserID
}

func rateLimitKeyIP(req *http.Request) string {
	if host := clientIP(req); host != "" {
		return "ip:" + host
	}
	return "ip:unknown"
}

// rateMetricKey reduces a limiter subject to its kind so metric labels stay bounded.
func rateMetricKey(subject string) string {
	kind, _, found := strings.Cut(subject, ":")
	switch {
	case found && kind != "":
		return kind
	case subject == "":
		return "unknown"
	default:
		return subject
	}
}

func setRateHeaders(h http.Header, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}
