package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
)

var purgeNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPurgeDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:cli_purge?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
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
	return db
}

func TestPurgeExpiredKeepsLiveRows(t *testing.T) {
	db := newPurgeDB(t)
	user := &domain.User{Email: "purge@example.com", CreatedAt: purgeNow, UpdatedAt: purgeNow}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	rows := []any{
		&domain.Session{UserID: user.ID, RefreshTokenHash: "expired", ExpiresAt: purgeNow.Add(-time.Hour), CreatedAt: purgeNow.Add(-48 * time.Hour)},
		&domain.Session{UserID: user.ID, RefreshTokenHash: "revoked-live", IsRevoked: true, ExpiresAt: purgeNow.Add(time.Hour), CreatedAt: purgeNow},
		&domain.Session{UserID: user.ID, RefreshTokenHash: "live", ExpiresAt: purgeNow.Add(time.Hour), CreatedAt: purgeNow},
		&domain.EmailToken{UserID: user.ID, Type: domain.EmailTokenResetPassword, TokenHash: "old", ExpiresAt: purgeNow.Add(-time.Minute), CreatedAt: purgeNow.Add(-time.Hour)},
		&domain.EmailToken{UserID: user.ID, Type: domain.EmailTokenVerifyEmail, TokenHash: "fresh", ExpiresAt: purgeNow.Add(time.Hour), CreatedAt: purgeNow},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}

	res, err := purgeExpired(context.Background(), repository.NewStore(db), purgeNow)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if res.Sessions != 1 || res.EmailTokens != 1 {
		t.Fatalf("unexpected purge counts %+v", res)
	}
	var sessions, tokens int64
	db.Model(&domain.Session{}).Count(&sessions)
	db.Model(&domain.EmailToken{}).Count(&tokens)
	if sessions != 2 || tokens != 1 {
		t.Fatalf("expected 2 sessions and 1 token left, got %d and %d", sessions, tokens)
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", "does-not-exist.env", "--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute help: %v", err)
	}
	for _, name := range []string{"serve", "migrate", "purge"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("expected %q in help output:\n%s", name, out.String())
		}
	}
}

func TestPurgeRejectsNegativeCutoff(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", "does-not-exist.env", "purge", "--older-than", "-1h"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "older-than") {
		t.Fatalf("expected negative cutoff error, got %v", err)
	}
}
