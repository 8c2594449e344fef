package httpx

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hoxsec/Godot-GameBackendAPI/internal/service/remoteconfig"
)

func TestKVHandlersMapServiceErrors(t *testing.T) {
	fx := newFixture(t)
	session := fx.guest()

	rec := fx.do(http.MethodPut, "/v1/kv/progress", session.AccessToken, `{"expected_version":1}`)
	if rec.Code != http.StatusBadRequest || parseErrorCode(t, rec.Body.String()) != codeValidation {
		t.Fatalf("expected 400 for missing value, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(http.MethodPut, "/v1/kv/progress", session.AccessToken, `{"value":{"level":3},"expected_version":1}`)
	if rec.Code != http.StatusConflict || parseErrorCode(t, rec.Body.String()) != codeConflict {
		t.Fatalf("expected 409 for missing key with expected version, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(http.MethodDelete, "/v1/kv/progress?expected_version=abc", session.AccessToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed expected_version, got %d", rec.Code)
	}

	rec = fx.do(http.MethodGet, "/v1/kv/progress", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestScoreSubmitRequiresNumber(t *testing.T) {
	fx := newFixture(t)
	session := fx.guest()
	rec := fx.do(http.MethodPost, "/v1/leaderboards/weekly/submit", session.AccessToken, `{"score":"high"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = fx.do(http.MethodPost, "/v1/leaderboards/weekly/submit", session.AccessToken, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing score, got %d", rec.Code)
	}
}

func TestRemoteConfigPlatformOverride(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(http.MethodGet, "/v1/config", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without remote config, got %d", rec.Code)
	}

	svc, err := remoteconfig.Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fx.router.remoteConfig = svc

	rec = fx.do(http.MethodGet, "/v1/config?platform=Windows&app_version=1.2.0", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body remoteconfig.Resolved
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Flags["debug_mode"] != true {
		t.Fatalf("expected windows debug_mode override, got %+v", body.Flags)
	}
	if body.Config["max_players_per_room"] != float64(8) {
		t.Fatalf("unexpected config %+v", body.Config)
	}
}

func TestSessionRoutesIssueTokens(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(http.MethodPost, "/v1/auth/register", "", `{"email":"p@example.com","password":"hunter22"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = fx.do(http.MethodPost, "/v1/auth/login", "", `{"email":"p@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	rec = fx.do(http.MethodPost, "/v1/auth/login", "", `{"email":"p@example.com","password":"hunter22"}`)
	var session struct {
		UserID       string `json:"user_id"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil || session.RefreshToken == "" {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+session.AccessToken+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected access token to be refused for refresh, got %d", rec.Code)
	}
	rec = fx.do(http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+session.RefreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
