package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// LockByID reads the user row with an exclusive lock held until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, now time.Time) error
	MarkEmailVerified(ctx context.Context, id string, now time.Time) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) (err error) {
	defer func() { recordOutcome(ctx, "user", "create", err) }()
	user.Email = NormalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (u *domain.User, err error) {
	defer func() { recordOutcome(ctx, "user", "find_by_id", err) }()
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	defer func() { recordOutcome(ctx, "user", "find_by_email", err) }()
	return r.first(r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)))
}

func (r *GormUserRepository) LockByID(ctx context.Context, id string) (u *domain.User, err error) {
	defer func() { recordOutcome(ctx, "user", "lock_by_id", err) }()
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *GormUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string, now time.Time) (err error) {
	defer func() { recordOutcome(ctx, "user", "update_password_hash", err) }()
	return r.update(ctx, id, map[string]any{"password_hash": passwordHash, "updated_at": now})
}

func (r *GormUserRepository) MarkEmailVerified(ctx context.Context, id string, now time.Time) (err error) {
	defer func() { recordOutcome(ctx, "user", "mark_email_verified", err) }()
	return r.update(ctx, id, map[string]any{"email_verified": true, "updated_at": now})
}

func (r *GormUserRepository) first(q *gorm.DB) (*domain.User, error) {
	var u domain.User
	if err := q.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (r *GormUserRepository) update(ctx context.Context, id string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
