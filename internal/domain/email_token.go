package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmailTokenType string

const (
	EmailTokenVerifyEmail   EmailTokenType = "VERIFY_EMAIL"
	EmailTokenResetPassword EmailTokenType = "RESET_PASSWORD"
)

func (t EmailTokenType) Valid() bool {
	return t == EmailTokenVerifyEmail || t == EmailTokenResetPassword
}

// EmailToken is a single-use, typed, expiring secret delivered by email.
// Used flips to true exactly once, together with the effect it authorizes.
type EmailToken struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"size:36;index:idx_email_tokens_user_type;not null" json:"user_id"`
	Type      EmailTokenType `gorm:"size:32;index:idx_email_tokens_user_type;not null" json:"type"`
	TokenHash string         `gorm:"size:128;uniqueIndex;not null" json:"-"`
	Used      bool           `gorm:"index;not null" json:"used"`
	UsedAt    *time.Time     `json:"used_at,omitempty"`
	ExpiresAt time.Time      `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (t *EmailToken) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Models lists every persisted model, in migration order.
func Models() []any {
	return []any{&User{}, &Session{}, &EmailToken{}}
}
