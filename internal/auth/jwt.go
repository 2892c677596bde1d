package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"calorieTracker/models"
)

// Principal represents the authenticated caller resolved from a token.
type Principal struct {
	UserID   int64
	Username string
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Claims is the payload carried by session tokens.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}
}

// TTL is the lifetime of issued tokens.
func (t *TokenManager) TTL() time.Duration {
	return t.ttl
}

// Generate issues a signed session token for the user.
func (t *TokenManager) Generate(user models.User) (string, error) {
	return t.GenerateWithTTL(user, t.ttl)
}

// GenerateWithTTL issues a token that expires after ttl instead of the
// session lifetime. Delegated credentials handed to helper processes use it.
func (t *TokenManager) GenerateWithTTL(user models.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	if len(t.secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify returns the token's claims when its signature, issuer and expiry
// are valid. Any failure yields ok == false; callers treat that as
// unauthenticated.
func (t *TokenManager) Verify(tokenStr string) (*Claims, bool) {
	if tokenStr == "" || len(t.secret) == 0 {
		return nil, false
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	c := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, false
	}
	if c.UserID <= 0 || c.Username == "" {
		return nil, false
	}
	return c, true
}
