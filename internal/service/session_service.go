package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
	"github.com/sandeepkv93/credential-session-service/internal/security"
)

const DefaultRefreshTokenTTL = 30 * 24 * time.Hour

type SessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	IsCurrent bool      `json:"is_current"`
}

// SessionService owns refresh-token sessions. Raw refresh secrets leave
// this type exactly once, from Create or Rotate.
type SessionService struct {
	store  repository.Store
	ttl    time.Duration
	now    Clock
	logger *slog.Logger
}

func NewSessionService(store repository.Store, ttl time.Duration, now Clock, logger *slog.Logger) *SessionService {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	return &SessionService{store: store, ttl: ttl, now: now, logger: logger}
}

func (s *SessionService) TTL() time.Duration { return s.ttl }

func (s *SessionService) Create(ctx context.Context, userID string, meta domain.ClientMeta) (*domain.Session, string, error) {
	raw, session, err := s.newSession(meta)
	if err != nil {
		return nil, "", internalError(err)
	}
	session.UserID = userID
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, "", internalError(err)
	}
	return session, raw, nil
}

// Rotate retires the session behind raw and returns its successor. Unknown,
// revoked and expired secrets all fail with ErrTokenInvalidOrExpired.
func (s *SessionService) Rotate(ctx context.Context, raw string, meta domain.ClientMeta) (*domain.Session, string, error) {
	if raw == "" {
		return nil, "", ErrTokenInvalidOrExpired
	}
	nextRaw, next, err := s.newSession(meta)
	if err != nil {
		return nil, "", internalError(err)
	}
	hash := security.HashToken(raw)
	if _, err := s.store.Sessions().RotateSession(ctx, hash, next.CreatedAt, next); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			s.detectReuse(ctx, hash)
			return nil, "", ErrTokenInvalidOrExpired
		}
		return nil, "", internalError(err)
	}
	return next, nextRaw, nil
}

// detectReuse flags a presented secret whose session was already revoked.
// The caller outcome is unchanged; this only raises a signal.
func (s *SessionService) detectReuse(ctx context.Context, hash string) {
	prior, err := s.store.Sessions().FindByHash(ctx, hash)
	if err != nil || !prior.IsRevoked {
		return
	}
	reason := ""
	if prior.RevokedReason != nil {
		reason = *prior.RevokedReason
	}
	observability.RecordRefreshReuse(ctx)
	s.logger.WarnContext(ctx, "refresh_token_reuse",
		"user_id", prior.UserID,
		"session_id", prior.ID,
		"revoked_reason", reason,
	)
}

func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	_, err := s.store.Sessions().RevokeByIDForUser(ctx, userID, sessionID, repository.RevokeReasonLogout, s.now())
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return internalError(err)
	}
	return nil
}

func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.revokeAllIn(ctx, s.store, userID, repository.RevokeReasonLogoutAll)
}

func (s *SessionService) revokeAllIn(ctx context.Context, store repository.Store, userID, reason string) (int64, error) {
	n, err := store.Sessions().RevokeByUserID(ctx, userID, reason, s.now())
	if err != nil {
		return 0, internalError(err)
	}
	return n, nil
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID, currentSessionID string) ([]SessionView, error) {
	sessions, err := s.store.Sessions().ListActiveByUserID(ctx, userID, s.now())
	if err != nil {
		return nil, internalError(err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			UserAgent: session.UserAgent,
			IP:        session.IPAddress,
			IsCurrent: session.ID == currentSessionID,
		})
	}
	return views, nil
}

func (s *SessionService) newSession(meta domain.ClientMeta) (string, *domain.Session, error) {
	raw, err := security.GenerateToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	return raw, &domain.Session{
		RefreshTokenHash: security.HashToken(raw),
		UserAgent:        truncate(meta.UserAgent, 512),
		IPAddress:        truncate(meta.IPAddress, 64),
		ExpiresAt:        now.Add(s.ttl),
		CreatedAt:        now,
	}, nil
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
