package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RevokeReasonRotated       = "rotated"
	RevokeReasonLogout        = "logout"
	RevokeReasonLogoutAll     = "logout_all"
	RevokeReasonPasswordReset = "password_reset"
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByHash(ctx context.Context, hash string) (*domain.Session, error)
	FindByIDForUser(ctx context.Context, userID, sessionID string) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
	// RotateSession retires the active session matching oldHash and inserts
	// next as its child. next inherits the owner of the retired session.
	RotateSession(ctx context.Context, oldHash string, now time.Time, next *domain.Session) (*domain.Session, error)
	RevokeByIDForUser(ctx context.Context, userID, sessionID, reason string, now time.Time) (bool, error)
	RevokeByUserID(ctx context.Context, userID, reason string, now time.Time) (int64, error)
	CleanupExpired(ctx context.Context, before time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) (err error) {
	defer func() { recordOutcome(ctx, "session", "create", err) }()
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *GormSessionRepository) FindByHash(ctx context.Context, hash string) (s *domain.Session, err error) {
	defer func() { recordOutcome(ctx, "session", "find_by_hash", err) }()
	return firstSession(r.db.WithContext(ctx).Where("refresh_token_hash = ?", hash))
}

func (r *GormSessionRepository) FindByIDForUser(ctx context.Context, userID, sessionID string) (s *domain.Session, err error) {
	defer func() { recordOutcome(ctx, "session", "find_by_id_for_user", err) }()
	return firstSession(r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, sessionID))
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID string, now time.Time) (sessions []domain.Session, err error) {
	defer func() { recordOutcome(ctx, "session", "list_active_by_user_id", err) }()
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND is_revoked = ? AND expires_at > ?", userID, false, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *GormSessionRepository) RotateSession(ctx context.Context, oldHash string, now time.Time, next *domain.Session) (rotated *domain.Session, err error) {
	defer func() { recordOutcome(ctx, "session", "rotate_session", err) }()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("refresh_token_hash = ? AND is_revoked = ? AND expires_at > ?", oldHash, false, now).
			First(&s).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		reason := RevokeReasonRotated
		// The is_revoked predicate makes this a compare-and-swap: of two
		// racing rotations only one can flip the flag.
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND is_revoked = ?", s.ID, false).
			Updates(map[string]any{"is_revoked": true, "revoked_at": now, "revoked_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrSessionNotFound
		}
		next.UserID = s.UserID
		next.ParentID = &s.ID
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		s.IsRevoked = true
		s.RevokedAt = &now
		s.RevokedReason = &reason
		rotated = &s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	return rotated, nil
}

func (r *GormSessionRepository) RevokeByIDForUser(ctx context.Context, userID, sessionID, reason string, now time.Time) (revoked bool, err error) {
	defer func() { recordOutcome(ctx, "session", "revoke_by_id_for_user", err) }()
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id = ? AND is_revoked = ?", userID, sessionID, false).
		Updates(map[string]any{"is_revoked": true, "revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		return false, fmt.Errorf("revoke session: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id = ?", userID, sessionID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count session: %w", err)
	}
	if count == 0 {
		return false, ErrSessionNotFound
	}
	return false, nil
}

func (r *GormSessionRepository) RevokeByUserID(ctx context.Context, userID, reason string, now time.Time) (n int64, err error) {
	defer func() { recordOutcome(ctx, "session", "revoke_by_user_id", err) }()
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Updates(map[string]any{"is_revoked": true, "revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) CleanupExpired(ctx context.Context, before time.Time) (n int64, err error) {
	defer func() { recordOutcome(ctx, "session", "cleanup_expired", err) }()
	res := r.db.WithContext(ctx).Where("expires_at <= ?", before).Delete(&domain.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func firstSession(q *gorm.DB) (*domain.Session, error) {
	var s domain.Session
	if err := q.First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &s, nil
}
