package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/credential-session-service/internal/observability"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmailTokenNotFound = errors.New("email token not found")
)

func recordOutcome(ctx context.Context, entity, operation string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrEmailTokenNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrDuplicateEmail):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, entity, operation, outcome)
}
