package identity

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"resumatch.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// SessionClaims is the JWT payload shared by access and refresh tokens. The
// sid claim survives access-token rotation so a session can be traced across
// its whole lifetime.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email"`
}

// TokenIssuer signs and verifies session tokens and manages their persisted
// server-side state.
type TokenIssuer struct {
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithIssuerClock overrides the time source.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// WithTokenTTLs overrides the access and refresh lifetimes. Zero values keep
// the defaults.
func WithTokenTTLs(access, refresh time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if access > 0 {
			t.accessTTL = access
		}
		if refresh > 0 {
			t.refreshTTL = refresh
		}
	}
}

// NewTokenIssuer builds an issuer from an RSA key pair.
func NewTokenIssuer(priv *rsa.PrivateKey, pub *rsa.PublicKey, issuer string, opts ...IssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		priv:       priv,
		pub:        pub,
		issuer:     issuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SessionTokens is an issued pair plus its session identifier.
type SessionTokens struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t *TokenIssuer) sign(userID, email, sessionID string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
		Email:     email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(t.priv)
}

// IssueSessionTokens mints a fresh access/refresh pair under a new session id
// and persists the session row. The stored refresh expiry is authoritative:
// rotation consults it before any signature work.
func (t *TokenIssuer) IssueSessionTokens(ctx context.Context, store Store, user *User) (*SessionTokens, error) {
	sessionID := uuid.NewString()
	access, err := t.sign(user.ID, user.Email, sessionID, t.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.sign(user.ID, user.Email, sessionID, t.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	expiresAt := t.now().Add(t.refreshTTL)
	sess := &TokenSession{
		ID:           ids.New(),
		UserID:       user.ID,
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
	if err := store.Sessions(ctx).Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return &SessionTokens{
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// RotateAccessToken exchanges a refresh token for a new access token under
// the same session id. The persisted expiry is checked before the signature
// so an expired-but-valid token still tears the session down. Concurrent
// rotations on the same refresh token race benignly: each writes its own
// access token and the last write wins.
func (t *TokenIssuer) RotateAccessToken(ctx context.Context, store Store, refreshToken string) (*User, string, error) {
	if refreshToken == "" {
		return nil, "", ErrUnauthorized
	}
	sessions := store.Sessions(ctx)
	sess, err := sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, "", ErrUnauthorized
	}
	if t.now().After(sess.ExpiresAt) {
		if err := sessions.DeleteByRefreshToken(ctx, refreshToken); err != nil {
			return nil, "", err
		}
		return nil, "", ErrRefreshExpired
	}
	claims, err := t.Verify(refreshToken)
	if err != nil {
		return nil, "", ErrInvalidToken
	}
	user, err := store.Users(ctx).Find(ctx, sess.UserID)
	if err != nil {
		return nil, "", ErrUnauthorized
	}
	access, err := t.sign(user.ID, user.Email, claims.SessionID, t.accessTTL)
	if err != nil {
		return nil, "", fmt.Errorf("sign access token: %w", err)
	}
	if err := sessions.UpdateAccessToken(ctx, sess.SessionID, access); err != nil {
		return nil, "", fmt.Errorf("persist rotated token: %w", err)
	}
	return user, access, nil
}

// Verify parses the token and validates its RS256 signature and expiry.
func (t *TokenIssuer) Verify(token string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.pub, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
