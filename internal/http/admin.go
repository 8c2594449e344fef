package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/domain"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/repository"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/auth"
	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/console"
)

type adminView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func viewAdmin(a *domain.Admin, detailed bool) adminView {
	v := adminView{ID: a.ID, Username: a.Username, Role: a.Role}
	if detailed {
		created := a.CreatedAt
		v.CreatedAt = &created
		v.LastLogin = a.LastLogin
	}
	return v
}

func (r *Router) handleAdminLogin(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "Username and password required")
		return
	}
	admin, token, err := r.admin.Login(req.Context(), payload.Username, payload.Password)
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, "Username and password required")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid credentials")
		return
	case err != nil:
		r.logger.Error("admin login failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "admin": viewAdmin(admin, false)})
}

func (r *Router) handleAdminMe(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	admin, err := r.admin.Get(req.Context(), info.AdminID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "Admin not found")
			return
		}
		r.logger.Error("admin lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get admin info")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": viewAdmin(admin, true)})
}

func (r *Router) handleAdminStats(w http.ResponseWriter, req *http.Request) {
	if r.stats == nil {
		writeError(w, http.StatusServiceUnavailable, codeServer, "Stats unavailable")
		return
	}
	stats, err := r.stats.Stats(req.Context())
	if err != nil {
		r.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": map[string]int64{
			"total":      stats.Users,
			"guests":     stats.Guests,
			"registered": stats.Registered,
			"banned":     stats.Banned,
		},
		"kv_entries":   stats.KVEntries,
		"leaderboards": stats.Leaderboards,
		"scores":       stats.LeaderboardScores,
	})
}

func (r *Router) handleAdminBan(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Banned bool `json:"banned"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	userID := req.PathValue("id")
	if err := r.auth.SetBanned(req.Context(), userID, payload.Banned); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "User not found")
			return
		}
		r.logger.Error("ban update failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to update ban status")
		return
	}
	r.logger.Info("ban status changed", "user_id", userID, "banned", payload.Banned, "admin", info.Username)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "banned": payload.Banned})
}

type userView struct {
	ID        string    `json:"id"`
	Email     *string   `json:"email"`
	Type      string    `json:"type"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"created_at"`
}

func viewUser(u *domain.User) userView {
	return userView{ID: u.ID, Email: u.Email, Type: u.Type, Banned: u.Banned, CreatedAt: u.CreatedAt}
}

type kvEntryView struct {
	UserID    string          `json:"user_id,omitempty"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type scoreEntryView struct {
	ID          int64     `json:"id,omitempty"`
	Board       string    `json:"board,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
	Rank        int64     `json:"rank"`
}

type boardView struct {
	Board    string  `json:"board"`
	Entries  int64   `json:"entries"`
	TopScore float64 `json:"top_score"`
	MinScore float64 `json:"min_score"`
}

// pageParams reads limit and offset, leaving malformed values at zero for
// the console to default.
func pageParams(req *http.Request) (limit, offset int) {
	q := req.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

func (r *Router) handleConsoleUsers(w http.ResponseWriter, req *http.Request) {
	limit, offset := pageParams(req)
	list, err := r.console.Users(req.Context(), req.URL.Query().Get("search"), limit, offset)
	if err != nil {
		r.logger.Error("user listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get users")
		return
	}
	users := make([]userView, 0, len(list.Items))
	for i := range list.Items {
		users = append(users, viewUser(&list.Items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"total":  list.Total,
		"limit":  list.Page.Limit,
		"offset": list.Page.Offset,
	})
}

func (r *Router) handleConsoleUser(w http.ResponseWriter, req *http.Request) {
	detail, err := r.console.User(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, console.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "User not found")
			return
		}
		r.logger.Error("user detail failed", "user_id", req.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get user details")
		return
	}
	entries := make([]kvEntryView, 0, len(detail.KV))
	for _, e := range detail.KV {
		entries = append(entries, kvEntryView{Key: e.Key, Value: e.Value, Version: e.Version, UpdatedAt: e.UpdatedAt})
	}
	scores := make([]scoreEntryView, 0, len(detail.Scores))
	for _, e := range detail.Scores {
		scores = append(scores, scoreEntryView{Board: e.Board, Score: e.Score, SubmittedAt: e.SubmittedAt, Rank: e.Rank})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":                viewUser(detail.User),
		"kv_entries":          entries,
		"leaderboard_entries": scores,
		"stats": map[string]int{
			"kv_count":          len(entries),
			"leaderboard_count": len(scores),
		},
	})
}

func (r *Router) handleConsoleDeleteUser(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	userID := req.PathValue("id")
	if err := r.console.DeleteUser(req.Context(), userID, info.Username); err != nil {
		if errors.Is(err, console.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "User not found")
			return
		}
		r.logger.Error("user delete failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (r *Router) handleConsoleKV(w http.ResponseWriter, req *http.Request) {
	limit, offset := pageParams(req)
	list, err := r.console.KV(req.Context(), req.URL.Query().Get("user_id"), limit, offset)
	if err != nil {
		r.logger.Error("kv listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get KV entries")
		return
	}
	entries := make([]kvEntryView, 0, len(list.Items))
	for _, e := range list.Items {
		entries = append(entries, kvEntryView{UserID: e.UserID, Key: e.Key, Value: e.Value, Version: e.Version, UpdatedAt: e.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   list.Total,
		"limit":   list.Page.Limit,
		"offset":  list.Page.Offset,
	})
}

func (r *Router) handleConsoleDeleteKV(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	userID, key := req.PathValue("userId"), req.PathValue("key")
	if err := r.console.DeleteKV(req.Context(), userID, key, info.Username); err != nil {
		if errors.Is(err, console.ErrKVNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "KV entry not found")
			return
		}
		r.logger.Error("kv delete failed", "user_id", userID, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to delete KV entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (r *Router) handleConsoleBoards(w http.ResponseWriter, req *http.Request) {
	boards, err := r.console.Boards(req.Context())
	if err != nil {
		r.logger.Error("board listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get leaderboards")
		return
	}
	out := make([]boardView, 0, len(boards))
	for _, b := range boards {
		out = append(out, boardView(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": out})
}

func (r *Router) handleConsoleBoard(w http.ResponseWriter, req *http.Request) {
	board := req.PathValue("board")
	limit, offset := pageParams(req)
	list, err := r.console.Board(req.Context(), board, limit, offset)
	if err != nil {
		if errors.Is(err, console.ErrInvalidBoard) {
			writeError(w, http.StatusBadRequest, codeValidation, "Board is required")
			return
		}
		r.logger.Error("board entries failed", "board", board, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to get leaderboard")
		return
	}
	entries := make([]scoreEntryView, 0, len(list.Items))
	for _, e := range list.Items {
		entries = append(entries, scoreEntryView{ID: e.ID, UserID: e.UserID, Score: e.Score, SubmittedAt: e.SubmittedAt, Rank: e.Rank})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"board":   board,
		"entries": entries,
		"total":   list.Total,
		"limit":   list.Page.Limit,
		"offset":  list.Page.Offset,
	})
}

func (r *Router) handleConsoleClearBoard(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	board := req.PathValue("board")
	n, err := r.console.ClearBoard(req.Context(), board, info.Username)
	if err != nil {
		if errors.Is(err, console.ErrInvalidBoard) {
			writeError(w, http.StatusBadRequest, codeValidation, "Board is required")
			return
		}
		r.logger.Error("board clear failed", "board", board, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to clear leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": n})
}

func (r *Router) handleConsoleDeleteScore(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	board := req.PathValue("board")
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "Score entry not found")
		return
	}
	if err := r.console.DeleteScore(req.Context(), board, id, info.Username); err != nil {
		if errors.Is(err, console.ErrScoreNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "Score entry not found")
			return
		}
		r.logger.Error("score delete failed", "board", board, "score_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, codeServer, "Failed to delete score")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
