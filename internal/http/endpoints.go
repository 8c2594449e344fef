package httpx

import "net/http"

type endpointDoc struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Auth        bool           `json:"auth"`
	Description string         `json:"description"`
	QueryParams []string       `json:"queryParams,omitempty"`
	Body        map[string]any `json:"body,omitempty"`
	Response    any            `json:"response"`
}

// gameEndpoints documents the player-facing API for the dashboard's explorer.
var gameEndpoints = []endpointDoc{
	{
		Method: http.MethodGet, Path: "/health", Description: "Health check",
		Response: map[string]any{"status": "ok", "timestamp": "2024-01-01T00:00:00.000Z"},
	},
	{
		Method: http.MethodGet, Path: "/v1/config", Description: "Get remote configuration",
		QueryParams: []string{"platform", "app_version"},
		Response:    map[string]any{"config": map[string]any{}, "flags": map[string]any{}},
	},
	{
		Method: http.MethodPost, Path: "/v1/auth/guest", Description: "Create guest session",
		Response: sessionExample("guest_xxx"),
	},
	{
		Method: http.MethodPost, Path: "/v1/auth/register", Description: "Register new user",
		Body:     map[string]any{"email": "string", "password": "string"},
		Response: sessionExample("user_xxx"),
	},
	{
		Method: http.MethodPost, Path: "/v1/auth/login", Description: "Login existing user",
		Body:     map[string]any{"email": "string", "password": "string"},
		Response: sessionExample("user_xxx"),
	},
	{
		Method: http.MethodPost, Path: "/v1/auth/refresh", Description: "Refresh access token",
		Body:     map[string]any{"refresh_token": "string"},
		Response: map[string]any{"access_token": "...", "refresh_token": "..."},
	},
	{
		Method: http.MethodPost, Path: "/v1/auth/logout", Description: "Logout user",
		Response: map[string]any{"ok": true},
	},
	{
		Method: http.MethodGet, Path: "/v1/kv/:key", Auth: true, Description: "Get KV value",
		Response: map[string]any{"key": "string", "value": "any", "version": 1},
	},
	{
		Method: http.MethodPut, Path: "/v1/kv/:key", Auth: true, Description: "Set KV value",
		Body:     map[string]any{"value": "any", "expected_version": "number (optional)"},
		Response: map[string]any{"key": "string", "value": "any", "version": 1},
	},
	{
		Method: http.MethodDelete, Path: "/v1/kv/:key", Auth: true, Description: "Delete KV value",
		QueryParams: []string{"expected_version"},
		Response:    map[string]any{"ok": true},
	},
	{
		Method: http.MethodPost, Path: "/v1/leaderboards/:board/submit", Auth: true, Description: "Submit score",
		Body:     map[string]any{"score": "number"},
		Response: map[string]any{"best_score": 1000, "rank": 1},
	},
	{
		Method: http.MethodGet, Path: "/v1/leaderboards/:board/top", Auth: true, Description: "Get top scores",
		QueryParams: []string{"limit"},
		Response:    map[string]any{"entries": []any{map[string]any{"user_id": "...", "score": 1000, "rank": 1}}},
	},
	{
		Method: http.MethodGet, Path: "/v1/leaderboards/:board/me", Auth: true, Description: "Get user rank",
		Response: map[string]any{"user_id": "...", "score": 1000, "rank": 1},
	},
}

func sessionExample(userID string) map[string]any {
	return map[string]any{"user_id": userID, "access_token": "...", "refresh_token": "..."}
}

func (r *Router) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": gameEndpoints})
}
