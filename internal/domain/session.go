package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one link of a refresh-token lineage. Only the digest of the
// bearer secret is stored; IsRevoked only ever moves from false to true.
type Session struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserID           string     `gorm:"size:36;index;not null" json:"user_id"`
	ParentID         *string    `gorm:"size:36;index" json:"-"`
	RefreshTokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	IPAddress        string     `gorm:"size:64" json:"ip_address"`
	IsRevoked        bool       `gorm:"index;not null" json:"is_revoked"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokedReason    *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ClientMeta is the request metadata recorded on a session.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}
