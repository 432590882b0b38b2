package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/credential-session-service/internal/domain"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
	"github.com/sandeepkv93/credential-session-service/internal/security"
)

const (
	DefaultVerifyTokenTTL       = time.Hour
	DefaultResetTokenTTL        = 15 * time.Minute
	DefaultResetRateLimitWindow = 15 * time.Minute
)

type EmailTokenPolicy struct {
	VerifyTTL   time.Duration
	ResetTTL    time.Duration
	ResetWindow time.Duration
}

func (p EmailTokenPolicy) withDefaults() EmailTokenPolicy {
	if p.VerifyTTL <= 0 {
		p.VerifyTTL = DefaultVerifyTokenTTL
	}
	if p.ResetTTL <= 0 {
		p.ResetTTL = DefaultResetTokenTTL
	}
	if p.ResetWindow <= 0 {
		p.ResetWindow = DefaultResetRateLimitWindow
	}
	return p
}

func (p EmailTokenPolicy) ttl(typ domain.EmailTokenType) time.Duration {
	if typ == domain.EmailTokenResetPassword {
		return p.ResetTTL
	}
	return p.VerifyTTL
}

// IssueResult is returned for every issue call. Declined is set when the
// rate limit swallowed the request; Raw is empty in that case.
type IssueResult struct {
	Raw      string
	TokenID  string
	Declined bool
}

type ConsumedToken struct {
	TokenID string
	UserID  string
}

type EmailTokenService struct {
	store  repository.Store
	policy EmailTokenPolicy
	now    Clock
}

func NewEmailTokenService(store repository.Store, policy EmailTokenPolicy, now Clock) *EmailTokenService {
	return &EmailTokenService{store: store, policy: policy.withDefaults(), now: now}
}

func (s *EmailTokenService) Policy() EmailTokenPolicy { return s.policy }

func (s *EmailTokenService) Issue(ctx context.Context, userID string, typ domain.EmailTokenType) (IssueResult, error) {
	var res IssueResult
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		res, err = s.issueIn(ctx, tx, userID, typ)
		return err
	})
	if err != nil {
		return IssueResult{}, internalError(err)
	}
	return res, nil
}

// issueIn must run inside a transaction. For RESET_PASSWORD the user row is
// locked first so concurrent requests for one account serialize on the
// window check.
func (s *EmailTokenService) issueIn(ctx context.Context, tx repository.Store, userID string, typ domain.EmailTokenType) (IssueResult, error) {
	if !typ.Valid() {
		return IssueResult{}, fmt.Errorf("unknown email token type %q", typ)
	}
	now := s.now()
	if typ == domain.EmailTokenResetPassword {
		if _, err := tx.Users().LockByID(ctx, userID); err != nil {
			return IssueResult{}, err
		}
		latest, err := tx.EmailTokens().FindLatestByUserAndType(ctx, userID, typ)
		switch {
		case err == nil:
			if latest.CreatedAt.After(now.Add(-s.policy.ResetWindow)) {
				observability.RecordEmailTokenIssue(ctx, string(typ), "declined")
				return IssueResult{Declined: true}, nil
			}
		case !errors.Is(err, repository.ErrEmailTokenNotFound):
			return IssueResult{}, err
		}
	}

	if _, err := tx.EmailTokens().InvalidateUnused(ctx, userID, typ, now); err != nil {
		return IssueResult{}, err
	}
	raw, err := security.GenerateToken()
	if err != nil {
		return IssueResult{}, err
	}
	token := &domain.EmailToken{
		UserID:    userID,
		Type:      typ,
		TokenHash: security.HashToken(raw),
		ExpiresAt: now.Add(s.policy.ttl(typ)),
		CreatedAt: now,
	}
	if err := tx.EmailTokens().Create(ctx, token); err != nil {
		return IssueResult{}, err
	}
	observability.RecordEmailTokenIssue(ctx, string(typ), "issued")
	return IssueResult{Raw: raw, TokenID: token.ID}, nil
}

// Consume validates raw without mutating it. The caller marks the token
// used in the same transaction as the effect it authorizes.
func (s *EmailTokenService) Consume(ctx context.Context, raw string, typ domain.EmailTokenType) (*ConsumedToken, error) {
	if raw == "" || !typ.Valid() {
		return nil, ErrTokenInvalidOrExpired
	}
	token, err := s.store.EmailTokens().FindUsable(ctx, security.HashToken(raw), typ, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrEmailTokenNotFound) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, internalError(err)
	}
	return &ConsumedToken{TokenID: token.ID, UserID: token.UserID}, nil
}

// markUsedIn flips the token inside tx. Losing a race to another consumer
// reports ErrTokenInvalidOrExpired and aborts the transaction.
func (s *EmailTokenService) markUsedIn(ctx context.Context, tx repository.Store, tokenID string) error {
	if err := tx.EmailTokens().MarkUsed(ctx, tokenID, s.now()); err != nil {
		if errors.Is(err, repository.ErrEmailTokenNotFound) {
			return ErrTokenInvalidOrExpired
		}
		return internalError(err)
	}
	return nil
}

// Invalidate retires a token that was issued but never delivered.
func (s *EmailTokenService) Invalidate(ctx context.Context, tokenID string) error {
	err := s.store.EmailTokens().MarkUsed(ctx, tokenID, s.now())
	if err != nil && !errors.Is(err, repository.ErrEmailTokenNotFound) {
		return internalError(err)
	}
	return nil
}
