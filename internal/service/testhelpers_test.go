package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
	"github.com/sandeepkv93/credential-session-service/internal/security"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	fail error
}

func (n *recordingNotifier) Transport() string { return "test" }

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) failWith(err error) {
	n.mu.Lock()
	n.fail = err
	n.mu.Unlock()
}

func (n *recordingNotifier) messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.msgs...)
}

type harness struct {
	db          *gorm.DB
	store       repository.Store
	clock       *testClock
	notifier    *recordingNotifier
	jwt         *security.JWTManager
	sessions    *SessionService
	emailTokens *EmailTokenService
	auth        *AuthService
	logs        *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newTestClock()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        clock.Now,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	jwtMgr, err := security.NewJWTManager(security.SigningConfig{
		Issuer:   "test-issuer",
		Audience: "test-audience",
		Secret:   []byte(strings.Repeat("k", 32)),
		TTL:      15 * time.Minute,
	}, security.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(&syncWriter{buf: logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := repository.NewStore(db)
	policy := EmailTokenPolicy{}
	sessions := NewSessionService(store, DefaultRefreshTokenTTL, clock.Now, log)
	emailTokens := NewEmailTokenService(store, policy, clock.Now)
	notifier := &recordingNotifier{}
	auth := NewAuthService(
		store, sessions, emailTokens,
		security.NewBcryptHasher(bcrypt.MinCost), jwtMgr,
		notifier, NewMailer("http://frontend.test", policy),
		clock.Now, log,
	)
	return &harness{
		db: db, store: store, clock: clock, notifier: notifier, jwt: jwtMgr,
		sessions: sessions, emailTokens: emailTokens, auth: auth, logs: logs,
	}
}

type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

var tokenInLink = regexp.MustCompile(`token=([0-9a-f]{64})`)

func tokenFromMessage(t *testing.T, msg Message) string {
	t.Helper()
	m := tokenInLink.FindStringSubmatch(msg.HTML)
	if m == nil {
		t.Fatalf("no token in message body: %q", msg.HTML)
	}
	return m[1]
}

func (h *harness) lastMessage(t *testing.T) Message {
	t.Helper()
	msgs := h.notifier.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1]
}

func (h *harness) countUsableTokens(t *testing.T, userID string, typ domain.EmailTokenType) int64 {
	t.Helper()
	var n int64
	err := h.db.Model(&domain.EmailToken{}).
		Where("user_id = ? AND type = ? AND used = ? AND expires_at > ?", userID, typ, false, h.clock.Now()).
		Count(&n).Error
	if err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	return n
}

func (h *harness) signup(t *testing.T, email, password string) (*domain.User, string) {
	t.Helper()
	user, err := h.auth.Signup(t.Context(), email, password)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return user, tokenFromMessage(t, h.lastMessage(t))
}

func (h *harness) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := h.auth.Login(t.Context(), email, password, domain.ClientMeta{UserAgent: "test-agent", IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}
