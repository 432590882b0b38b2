package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL = 15 * time.Minute
	MinSigningSecretBytes = 32
)

var (
	// ErrUnauthenticated is the only failure callers outside the codec should
	// act on; the wrapped reasons exist for metrics.
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrAccessTokenExpired   = fmt.Errorf("%w: access token expired", ErrUnauthenticated)
	ErrAccessTokenSignature = fmt.Errorf("%w: access token signature invalid", ErrUnauthenticated)
	ErrAccessTokenMalformed = fmt.Errorf("%w: access token malformed", ErrUnauthenticated)
)

// SigningConfig is loaded once at startup and never mutated afterwards.
type SigningConfig struct {
	Issuer   string
	Audience string
	Secret   []byte
	TTL      time.Duration
}

type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

type JWTOption func(*JWTManager)

func WithClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewJWTManager(cfg SigningConfig, opts ...JWTOption) (*JWTManager, error) {
	if len(cfg.Secret) < MinSigningSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSigningSecretBytes)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	m := &JWTManager{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		secret:   append([]byte(nil), cfg.Secret...),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs an access token bound to one session.
func (m *JWTManager) Issue(userID, sessionID string) (string, time.Time, error) {
	if userID == "" || sessionID == "" {
		return "", time.Time{}, errors.New("subject and session id are required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify is pure: signature, expiry and claim shape only, no I/O.
func (m *JWTManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrAccessTokenSignature
	default:
		return nil, ErrAccessTokenMalformed
	}
	if !tok.Valid || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrAccessTokenMalformed
	}
	return claims, nil
}

// FailureReason labels a Verify error for metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrAccessTokenExpired):
		return "expired"
	case errors.Is(err, ErrAccessTokenSignature):
		return "signature"
	default:
		return "malformed"
	}
}
