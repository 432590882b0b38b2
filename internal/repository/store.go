package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories behind one unit of work. Repositories
// obtained from the Store passed to WithinTx share its transaction.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	EmailTokens() EmailTokenRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db          *gorm.DB
	users       UserRepository
	sessions    SessionRepository
	emailTokens EmailTokenRepository
}

func NewStore(db *gorm.DB) Store {
	return &GormStore{
		db:          db,
		users:       NewUserRepository(db),
		sessions:    NewSessionRepository(db),
		emailTokens: NewEmailTokenRepository(db),
	}
}

func (s *GormStore) Users() UserRepository             { return s.users }
func (s *GormStore) Sessions() SessionRepository       { return s.sessions }
func (s *GormStore) EmailTokens() EmailTokenRepository { return s.emailTokens }

// WithinTx commits when fn returns nil and rolls back otherwise. Nested
// calls run as savepoints of the outer transaction.
func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
