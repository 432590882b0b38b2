package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

const (
	flowEmail    = "Flow.User@Example.com"
	flowPassword = "Valid@Pass123"
	newPassword  = "Fresh$Pass456"
)

func TestCredentialLifecycleEndToEnd(t *testing.T) {
	s := newAuthTestServer(t)
	api := s.baseURL + "/api/v1"

	resp, env := doJSON(t, s.client, http.MethodPost, api+"/auth/signup", map[string]string{"email": flowEmail, "password": flowPassword}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("signup failed: status=%d env=%+v", resp.StatusCode, env)
	}
	resp, env = doJSON(t, s.client, http.MethodPost, api+"/auth/signup", map[string]string{"email": "flow.user@example.com", "password": flowPassword}, nil)
	if resp.StatusCode != http.StatusConflict || env.Error == nil || env.Error.Code != "DUPLICATE_EMAIL" {
		t.Fatalf("expected duplicate email conflict, got status=%d env=%+v", resp.StatusCode, env)
	}

	verifyToken := s.lastMailToken(t, "verify_email", "flow.user@example.com")
	resp, _ = doJSON(t, s.client, http.MethodPost, api+"/auth/verify-email", map[string]string{"token": verifyToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify email failed: status=%d", resp.StatusCode)
	}
	resp, env = doJSON(t, s.client, http.MethodPost, api+"/auth/verify-email", map[string]string{"token": verifyToken}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "TOKEN_INVALID_OR_EXPIRED" {
		t.Fatalf("expected single-use verify token, got status=%d", resp.StatusCode)
	}

	resp, env = doJSON(t, s.client, http.MethodPost, api+"/auth/login", map[string]string{"email": flowEmail, "password": flowPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status=%d", resp.StatusCode)
	}
	access := accessToken(t, env)
	firstRefresh := s.refreshCookie(t)
	if firstRefresh == "" {
		t.Fatal("expected refresh cookie after login")
	}

	resp, env = doJSON(t, s.client, http.MethodGet, api+"/me", nil, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me failed: status=%d", resp.StatusCode)
	}
	var me struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil || me.Email != "flow.user@example.com" || !me.EmailVerified {
		t.Fatalf("unexpected me payload %s err=%v", env.Data, err)
	}

	resp, env = doJSON(t, s.client, http.MethodPost, api+"/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh failed: status=%d", resp.StatusCode)
	}
	access = accessToken(t, env)
	if rotated := s.refreshCookie(t); rotated == "" || rotated == firstRefresh {
		t.Fatal("expected a new refresh secret after rotation")
	}

	replay := &http.Client{}
	req, _ := http.NewRequest(http.MethodPost, api+"/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: s.cfg.RefreshCookieName, Value: firstRefresh})
	replayResp, err := replay.Do(req)
	if err != nil {
		t.Fatalf("replay refresh: %v", err)
	}
	replayResp.Body.Close()
	if replayResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected rotated secret to be rejected, got %d", replayResp.StatusCode)
	}

	resp, env = doJSON(t, s.client, http.MethodGet, api+"/me/sessions", nil, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list sessions failed: status=%d", resp.StatusCode)
	}
	var listed struct {
		Sessions []struct {
			IsCurrent bool `json:"is_current"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(env.Data, &listed); err != nil || len(listed.Sessions) != 1 || !listed.Sessions[0].IsCurrent {
		t.Fatalf("expected exactly one current session, got %s err=%v", env.Data, err)
	}

	resp, _ = doJSON(t, s.client, http.MethodPost, api+"/auth/forgot-password", map[string]string{"email": flowEmail}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forgot password failed: status=%d", resp.StatusCode)
	}
	resetToken := s.lastMailToken(t, "reset_password", "flow.user@example.com")
	resp, _ = doJSON(t, s.client, http.MethodPost, api+"/auth/reset-password", map[string]string{"token": resetToken, "password": newPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset password failed: status=%d", resp.StatusCode)
	}

	resp, _ = doJSON(t, s.client, http.MethodPost, api+"/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected sessions revoked by reset, refresh got %d", resp.StatusCode)
	}
	resp, env = doJSON(t, s.client, http.MethodPost, api+"/auth/login", map[string]string{"email": flowEmail, "password": flowPassword}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected old password rejected, got %d", resp.StatusCode)
	}
	resp, env = doJSON(t, s.client, http.MethodPost, api+"/auth/login", map[string]string{"email": flowEmail, "password": newPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password failed: status=%d", resp.StatusCode)
	}
	access = accessToken(t, env)

	resp, _ = doJSON(t, s.client, http.MethodPost, api+"/auth/logout-all", nil, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout-all failed: status=%d", resp.StatusCode)
	}
	if s.refreshCookie(t) != "" {
		t.Fatal("expected refresh cookie cleared by logout-all")
	}
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	s := newAuthTestServer(t)
	api := s.baseURL + "/api/v1"

	resp, _ := doJSON(t, s.client, http.MethodPost, api+"/auth/signup", map[string]string{"email": "known@example.com", "password": flowPassword}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup failed: status=%d", resp.StatusCode)
	}

	var bodies []string
	for _, email := range []string{"known@example.com", "unknown@example.com", "known@example.com"} {
		resp, env := doJSON(t, s.client, http.MethodPost, api+"/auth/forgot-password", map[string]string{"email": email}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("forgot %s: status=%d", email, resp.StatusCode)
		}
		bodies = append(bodies, string(env.Data))
	}
	if bodies[0] != bodies[1] || bodies[1] != bodies[2] {
		t.Fatalf("expected identical forgot responses, got %v", bodies)
	}

	n, err := s.redis.XLen(t.Context(), s.cfg.MailStream).Result()
	if err != nil {
		t.Fatalf("outbox length: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected verify mail plus one reset mail inside the window, got %d messages", n)
	}
}
