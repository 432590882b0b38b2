package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
	"github.com/sandeepkv93/credential-session-service/internal/security"

	"go.opentelemetry.io/otel/attribute"
)

type LoginResult struct {
	UserID                string    `json:"user_id"`
	SessionID             string    `json:"session_id"`
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"-"`
	RefreshTokenExpiresAt time.Time `json:"-"`
}

type AuthService struct {
	store       repository.Store
	sessions    *SessionService
	emailTokens *EmailTokenService
	hasher      PasswordHasher
	tokens      AccessTokenIssuer
	notifier    Notifier
	mailer      *Mailer
	now         Clock
	logger      *slog.Logger
}

func NewAuthService(
	store repository.Store,
	sessions *SessionService,
	emailTokens *EmailTokenService,
	hasher PasswordHasher,
	tokens AccessTokenIssuer,
	notifier Notifier,
	mailer *Mailer,
	now Clock,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:       store,
		sessions:    sessions,
		emailTokens: emailTokens,
		hasher:      hasher,
		tokens:      tokens,
		notifier:    notifier,
		mailer:      mailer,
		now:         now,
		logger:      logger,
	}
}

func (s *AuthService) Signup(ctx context.Context, email, password string) (user *domain.User, err error) {
	ctx, done := s.instrument(ctx, "signup")
	defer func() { done(err) }()

	if err := ValidateSignup(email, password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError(err)
	}
	now := s.now()
	user = &domain.User{Email: strings.TrimSpace(email), PasswordHash: hash, CreatedAt: now, UpdatedAt: now}

	// The account and its first verification token commit together so a
	// valid signup never leaves an account with nothing to verify.
	var issued IssueResult
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		var err error
		issued, err = s.emailTokens.issueIn(ctx, tx, user.ID, domain.EmailTokenVerifyEmail)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, internalError(err)
	}

	msg, err := s.mailer.VerificationMessage(user.Email, issued.Raw)
	if err == nil {
		err = s.deliver(ctx, issued.TokenID, msg)
	}
	if err != nil {
		// The account stays; ResendVerification is the recovery path.
		return nil, newError(KindDeliveryError, err)
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, meta domain.ClientMeta) (res *LoginResult, err error) {
	ctx, done := s.instrument(ctx, "login")
	defer func() { done(err) }()

	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.Verify(password, "")
			return nil, ErrInvalidCredentials
		}
		return nil, internalError(err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	session, raw, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(session, raw)
}

func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, meta domain.ClientMeta) (res *LoginResult, err error) {
	ctx, done := s.instrument(ctx, "refresh")
	defer func() { done(err) }()

	session, raw, err := s.sessions.Rotate(ctx, rawRefresh, meta)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(session, raw)
}

func (s *AuthService) Logout(ctx context.Context, claims *security.Claims) (err error) {
	ctx, done := s.instrument(ctx, "logout", claimsAttrs(claims)...)
	defer func() { done(err) }()

	if !validClaims(claims) {
		return ErrInvalidCredentials
	}
	return s.sessions.Revoke(ctx, claims.Subject, claims.SessionID)
}

func (s *AuthService) LogoutAll(ctx context.Context, claims *security.Claims) (err error) {
	ctx, done := s.instrument(ctx, "logout_all", claimsAttrs(claims)...)
	defer func() { done(err) }()

	if !validClaims(claims) {
		return ErrInvalidCredentials
	}
	_, err = s.sessions.RevokeAll(ctx, claims.Subject)
	return err
}

// ForgotPassword returns nil for unknown accounts and for rate-limited
// requests, exactly as for a delivered reset link.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, done := s.instrument(ctx, "forgot_password")
	defer func() { done(err) }()

	if err := ValidateEmailAddress(email); err != nil {
		return err
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return internalError(err)
	}
	issued, err := s.emailTokens.Issue(ctx, user.ID, domain.EmailTokenResetPassword)
	if err != nil {
		return err
	}
	if issued.Declined {
		return nil
	}
	msg, err := s.mailer.ResetMessage(user.Email, issued.Raw)
	if err == nil {
		err = s.deliver(ctx, issued.TokenID, msg)
	}
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) (err error) {
	ctx, done := s.instrument(ctx, "reset_password")
	defer func() { done(err) }()

	if err := ValidateNewPassword(newPassword); err != nil {
		return err
	}
	consumed, err := s.emailTokens.Consume(ctx, rawToken, domain.EmailTokenResetPassword)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError(err)
	}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := s.emailTokens.markUsedIn(ctx, tx, consumed.TokenID); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, consumed.UserID, hash, s.now()); err != nil {
			return err
		}
		_, err := s.sessions.revokeAllIn(ctx, tx, consumed.UserID, repository.RevokeReasonPasswordReset)
		return err
	})
	return asServiceError(err)
}

func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) (err error) {
	ctx, done := s.instrument(ctx, "verify_email")
	defer func() { done(err) }()

	consumed, err := s.emailTokens.Consume(ctx, rawToken, domain.EmailTokenVerifyEmail)
	if err != nil {
		return err
	}
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := s.emailTokens.markUsedIn(ctx, tx, consumed.TokenID); err != nil {
			return err
		}
		return tx.Users().MarkEmailVerified(ctx, consumed.UserID, s.now())
	})
	return asServiceError(err)
}

// ResendVerification answers nil for unknown and already verified
// accounts.
func (s *AuthService) ResendVerification(ctx context.Context, email string) (err error) {
	ctx, done := s.instrument(ctx, "resend_verification")
	defer func() { done(err) }()

	if err := ValidateEmailAddress(email); err != nil {
		return err
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return internalError(err)
	}
	if user.EmailVerified {
		return nil
	}
	issued, err := s.emailTokens.Issue(ctx, user.ID, domain.EmailTokenVerifyEmail)
	if err != nil {
		return err
	}
	msg, err := s.mailer.VerificationMessage(user.Email, issued.Raw)
	if err == nil {
		err = s.deliver(ctx, issued.TokenID, msg)
	}
	if err != nil {
		return newError(KindDeliveryError, err)
	}
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, claims *security.Claims) (*domain.User, error) {
	if !validClaims(claims) {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.Users().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, internalError(err)
	}
	return user, nil
}

func (s *AuthService) ListSessions(ctx context.Context, claims *security.Claims) ([]SessionView, error) {
	if !validClaims(claims) {
		return nil, ErrInvalidCredentials
	}
	return s.sessions.ListActiveSessions(ctx, claims.Subject, claims.SessionID)
}

func (s *AuthService) issueTokens(session *domain.Session, rawRefresh string) (*LoginResult, error) {
	access, exp, err := s.tokens.Issue(session.UserID, session.ID)
	if err != nil {
		return nil, internalError(err)
	}
	return &LoginResult{
		UserID:                session.UserID,
		SessionID:             session.ID,
		AccessToken:           access,
		AccessTokenExpiresAt:  exp,
		RefreshToken:          rawRefresh,
		RefreshTokenExpiresAt: session.ExpiresAt,
	}, nil
}

// deliver sends msg and fails closed: an undelivered token is retired so
// it can never be redeemed.
func (s *AuthService) deliver(ctx context.Context, tokenID string, msg Message) error {
	err := s.notifier.Send(ctx, msg)
	if err == nil {
		observability.RecordNotificationDispatch(ctx, msg.Kind, s.notifier.Transport(), "success")
		return nil
	}
	observability.RecordNotificationDispatch(ctx, msg.Kind, s.notifier.Transport(), "error")
	s.logger.ErrorContext(ctx, "notification dispatch failed", "kind", msg.Kind, "transport", s.notifier.Transport(), "error", err)
	if invErr := s.emailTokens.Invalidate(ctx, tokenID); invErr != nil {
		s.logger.ErrorContext(ctx, "invalidate undelivered token failed", "kind", msg.Kind, "error", invErr)
	}
	return err
}

func (s *AuthService) instrument(ctx context.Context, op string, attrs ...any) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "auth."+op, attribute.String("auth.operation", op))
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = strings.ToLower(string(KindOf(err)))
		}
		observability.RecordAuthOperation(ctx, op, outcome, float64(time.Since(start).Microseconds())/1000)
		observability.AuditEvent(ctx, "auth."+op, append([]any{"outcome", outcome}, attrs...)...)
		if err != nil && KindOf(err) == KindInternal {
			s.logger.ErrorContext(ctx, "auth operation failed", "operation", op, "error", err)
		}
		observability.EndSpan(span, err)
	}
}

func asServiceError(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return internalError(err)
}

func validClaims(claims *security.Claims) bool {
	return claims != nil && claims.Subject != "" && claims.SessionID != ""
}

func claimsAttrs(claims *security.Claims) []any {
	if claims == nil {
		return nil
	}
	return []any{"user_id", claims.Subject, "session_id", claims.SessionID}
}
