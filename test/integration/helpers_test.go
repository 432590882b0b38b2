package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/sandeepkv93/credential-session-service/internal/config"
	"github.com/sandeepkv93/credential-session-service/internal/database"
	"github.com/sandeepkv93/credential-session-service/internal/di"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	baseURL string
	client  *http.Client
	redis   *redis.Client
	cfg     *config.Config
}

var dbCounter int

// newAuthTestServer wires the real application graph over sqlite and
// miniredis. Mail is captured from the redis outbox stream.
func newAuthTestServer(t *testing.T) *testServer {
	t.Helper()
	dbCounter++
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		AppEnv:                     config.EnvTest,
		DBDriver:                   database.DriverSQLite,
		DatabaseURL:                fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", dbCounter),
		DBMaxIdleConns:             1,
		RedisEnabled:               true,
		RedisAddr:                  mr.Addr(),
		JWTIssuer:                  "credential-session-service",
		JWTAudience:                "credential-session-service-clients",
		JWTAccessSecret:            "integration-secret-0123456789abcdef",
		AccessTokenTTL:             15 * time.Minute,
		RefreshTokenTTL:            720 * time.Hour,
		RefreshCookieName:          "refreshToken",
		RefreshCookiePath:          "/api/v1/auth/refresh",
		PasswordBcryptCost:         bcrypt.MinCost,
		ResetTokenTTL:              15 * time.Minute,
		ResetRateLimitWindow:       15 * time.Minute,
		VerifyTokenTTL:             time.Hour,
		FrontendURL:                "http://localhost:5173",
		MailFrom:                   "no-reply@example.com",
		MailTransport:              "redis",
		MailStream:                 "mail:outbox",
		CORSOrigins:                []string{"http://localhost:5173"},
		RateLimitBackend:           "redis",
		RateLimitFailureMode:       "fail_closed",
		AuthRateLimitRPM:           1000,
		PasswordForgotRateLimitRPM: 1000,
		APIRateLimitRPM:            1000,
	}

	migrateDB, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(migrateDB) })
	if err := database.Migrate(context.Background(), migrateDB, cfg.DBDriver); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, cleanup, err := di.InitializeApp(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	t.Cleanup(cleanup)

	srv := httptest.NewServer(a.Server.Handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &testServer{
		baseURL: srv.URL,
		client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
		redis:   rdb,
		cfg:     cfg,
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func (s *testServer) refreshCookie(t *testing.T) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, s.baseURL+s.cfg.RefreshCookiePath, nil)
	for _, c := range s.client.Jar.Cookies(req.URL) {
		if c.Name == s.cfg.RefreshCookieName {
			return c.Value
		}
	}
	return ""
}

var mailTokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

// lastMailToken returns the token embedded in the newest outbox message of
// the given kind addressed to email.
func (s *testServer) lastMailToken(t *testing.T, kind, email string) string {
	t.Helper()
	msgs, err := s.redis.XRange(context.Background(), s.cfg.MailStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		v := msgs[i].Values
		if v["kind"] != kind || !strings.EqualFold(fmt.Sprint(v["to"]), email) {
			continue
		}
		m := mailTokenPattern.FindStringSubmatch(fmt.Sprint(v["html"]))
		if m == nil {
			t.Fatalf("no token in %s mail", kind)
		}
		return m[1]
	}
	t.Fatalf("no %s mail for %s", kind, email)
	return ""
}

func accessToken(t *testing.T, env envelope) string {
	t.Helper()
	var data struct {
		AccessToken string `json:"access_token"`
		SessionID   string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" {
		t.Fatalf("decode token response %s: %v", env.Data, err)
	}
	return data.AccessToken
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
