package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/security"
)

// Clock returns the current time. Services store every timestamp in UTC.
type Clock func() time.Time

func SystemClock() Clock {
	return func() time.Time { return time.Now().UTC() }
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify must spend comparable time for an empty hash.
	Verify(plain, hash string) bool
}

type AccessTokenIssuer interface {
	Issue(userID, sessionID string) (string, time.Time, error)
}

type AuthServiceInterface interface {
	Signup(ctx context.Context, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string, meta domain.ClientMeta) (*LoginResult, error)
	Refresh(ctx context.Context, rawRefresh string, meta domain.ClientMeta) (*LoginResult, error)
	Logout(ctx context.Context, claims *security.Claims) error
	LogoutAll(ctx context.Context, claims *security.Claims) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	VerifyEmail(ctx context.Context, rawToken string) error
	ResendVerification(ctx context.Context, email string) error
	CurrentUser(ctx context.Context, claims *security.Claims) (*domain.User, error)
	ListSessions(ctx context.Context, claims *security.Claims) ([]SessionView, error)
}

var (
	_ PasswordHasher       = (*security.BcryptHasher)(nil)
	_ AccessTokenIssuer    = (*security.JWTManager)(nil)
	_ AuthServiceInterface = (*AuthService)(nil)
)
