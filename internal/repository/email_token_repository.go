package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"

	"gorm.io/gorm"
)

type EmailTokenRepository interface {
	Create(ctx context.Context, t *domain.EmailToken) error
	// FindLatestByUserAndType returns the most recently minted token of the
	// given type regardless of its state.
	FindLatestByUserAndType(ctx context.Context, userID string, typ domain.EmailTokenType) (*domain.EmailToken, error)
	FindUsable(ctx context.Context, hash string, typ domain.EmailTokenType, now time.Time) (*domain.EmailToken, error)
	InvalidateUnused(ctx context.Context, userID string, typ domain.EmailTokenType, now time.Time) (int64, error)
	MarkUsed(ctx context.Context, id string, now time.Time) error
	CleanupExpired(ctx context.Context, before time.Time) (int64, error)
}

type GormEmailTokenRepository struct{ db *gorm.DB }

func NewEmailTokenRepository(db *gorm.DB) EmailTokenRepository {
	return &GormEmailTokenRepository{db: db}
}

func (r *GormEmailTokenRepository) Create(ctx context.Context, t *domain.EmailToken) (err error) {
	defer func() { recordOutcome(ctx, "email_token", "create", err) }()
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create email token: %w", err)
	}
	return nil
}

func (r *GormEmailTokenRepository) FindLatestByUserAndType(ctx context.Context, userID string, typ domain.EmailTokenType) (t *domain.EmailToken, err error) {
	defer func() { recordOutcome(ctx, "email_token", "find_latest", err) }()
	return firstEmailToken(r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, typ).
		Order("created_at DESC"))
}

func (r *GormEmailTokenRepository) FindUsable(ctx context.Context, hash string, typ domain.EmailTokenType, now time.Time) (t *domain.EmailToken, err error) {
	defer func() { recordOutcome(ctx, "email_token", "find_usable", err) }()
	return firstEmailToken(r.db.WithContext(ctx).
		Where("token_hash = ? AND type = ? AND used = ? AND expires_at > ?", hash, typ, false, now))
}

func (r *GormEmailTokenRepository) InvalidateUnused(ctx context.Context, userID string, typ domain.EmailTokenType, now time.Time) (n int64, err error) {
	defer func() { recordOutcome(ctx, "email_token", "invalidate_unused", err) }()
	res := r.db.WithContext(ctx).Model(&domain.EmailToken{}).
		Where("user_id = ? AND type = ? AND used = ?", userID, typ, false).
		Updates(map[string]any{"used": true, "used_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("invalidate email tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkUsed flips used exactly once. A token that is already used or has
// expired reports ErrEmailTokenNotFound.
func (r *GormEmailTokenRepository) MarkUsed(ctx context.Context, id string, now time.Time) (err error) {
	defer func() { recordOutcome(ctx, "email_token", "mark_used", err) }()
	res := r.db.WithContext(ctx).Model(&domain.EmailToken{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Updates(map[string]any{"used": true, "used_at": now})
	if res.Error != nil {
		return fmt.Errorf("mark email token used: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrEmailTokenNotFound
	}
	return nil
}

func (r *GormEmailTokenRepository) CleanupExpired(ctx context.Context, before time.Time) (n int64, err error) {
	defer func() { recordOutcome(ctx, "email_token", "cleanup_expired", err) }()
	res := r.db.WithContext(ctx).Where("expires_at <= ?", before).Delete(&domain.EmailToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup email tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func firstEmailToken(q *gorm.DB) (*domain.EmailToken, error) {
	var t domain.EmailToken
	if err := q.First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmailTokenNotFound
		}
		return nil, fmt.Errorf("find email token: %w", err)
	}
	return &t, nil
}
