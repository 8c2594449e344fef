package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/auth"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/kv"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/leaderboard"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID string `json:"user_id"`
	auth.TokenPair
}

func (r *Router) handleGuest(w http.ResponseWriter, req *http.Request) {
	user, tokens, err := r.auth.Guest(req.Context())
	if err != nil {
		r.logger.Error("guest creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to create guest session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: user.ID, TokenPair: tokens})
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var payload credentials
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	user, tokens, err := r.auth.Register(req.Context(), payload.Email, payload.Password)
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, "Email and password are required")
		return
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, codeConflict, "Email already registered")
		return
	case err != nil:
		r.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to register user")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: user.ID, TokenPair: tokens})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload credentials
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, "Email and password are required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid email or password")
		return
	case err != nil:
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to login")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: user.ID, TokenPair: tokens})
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, req, &payload); err != nil || payload.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "Refresh token is required")
		return
	}
	_, tokens, err := r.auth.Refresh(payload.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired refresh token")
			return
		}
		r.logger.Error("token refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to refresh token")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (r *Router) handleLogout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type kvResponse struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version int64           `json:"version"`
}

func (r *Router) handleKVGet(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	key := req.PathValue("key")
	entry, err := r.kv.Get(req.Context(), info.UserID, key)
	if err != nil {
		r.writeKVError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, kvResponse{Key: entry.Key, Value: entry.Value, Version: entry.Version})
}

func (r *Router) handleKVPut(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	key := req.PathValue("key")
	var payload struct {
		Value           json.RawMessage `json:"value"`
		ExpectedVersion *int64          `json:"expected_version"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	entry, err := r.kv.Put(req.Context(), info.UserID, key, payload.Value, payload.ExpectedVersion)
	if err != nil {
		r.writeKVError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, kvResponse{Key: entry.Key, Value: entry.Value, Version: entry.Version})
}

func (r *Router) handleKVDelete(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	key := req.PathValue("key")
	var expected *int64
	if raw := req.URL.Query().Get("expected_version"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "expected_version must be an integer")
			return
		}
		expected = &v
	}
	if err := r.kv.Delete(req.Context(), info.UserID, key, expected); err != nil {
		r.writeKVError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (r *Router) writeKVError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Key '"+key+"' not found")
	case errors.Is(err, kv.ErrVersionMismatch):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, kv.ErrValueRequired):
		writeError(w, http.StatusBadRequest, codeValidation, "Value is required")
	case errors.Is(err, kv.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid key")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_session", "Your session is invalid. Please login again.")
	default:
		r.logger.Error("kv operation failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to access value")
	}
}

type scoreResponse struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Rank   int64   `json:"rank"`
}

func (r *Router) handleScoreSubmit(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Score *float64 `json:"score"`
	}
	if err := decodeJSON(w, req, &payload); err != nil || payload.Score == nil {
		writeError(w, http.StatusBadRequest, codeValidation, "Score must be a number")
		return
	}
	entry, err := r.leaderboard.Submit(req.Context(), req.PathValue("board"), info.UserID, *payload.Score)
	switch {
	case errors.Is(err, leaderboard.ErrInvalidScore), errors.Is(err, leaderboard.ErrInvalidBoard):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_session", "Your session is invalid. Please login again.")
		return
	case err != nil:
		r.logger.Error("score submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to submit score")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"best_score": entry.Score, "rank": entry.Rank})
}

func (r *Router) handleScoreTop(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries, err := r.leaderboard.Top(req.Context(), req.PathValue("board"), limit)
	if err != nil {
		r.logger.Error("leaderboard top failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get top scores")
		return
	}
	out := make([]scoreResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, scoreResponse{UserID: e.UserID, Score: e.Score, Rank: e.Rank})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (r *Router) handleScoreMe(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	entry, err := r.leaderboard.Me(req.Context(), req.PathValue("board"), info.UserID)
	if err != nil {
		if errors.Is(err, leaderboard.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "No score found for this user on this leaderboard")
			return
		}
		r.logger.Error("leaderboard rank failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get user rank")
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{UserID: entry.UserID, Score: entry.Score, Rank: entry.Rank})
}

func (r *Router) handleRemoteConfig(w http.ResponseWriter, req *http.Request) {
	if r.remoteConfig == nil {
		writeError(w, http.StatusServiceUnavailable, codeServer, "Remote config unavailable")
		return
	}
	q := req.URL.Query()
	writeJSON(w, http.StatusOK, r.remoteConfig.Resolve(q.Get("platform"), q.Get("app_version")))
}
