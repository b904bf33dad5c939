// Package auth provides token sources for the shell's host-mediated
// authentication flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTTL = 5 * time.Minute

// Signer mints short-lived HS256 tokens for the trusted-auth flow.
type Signer struct {
	Secret   []byte
	Issuer   string
	Audience string
	Username string
	TTL      time.Duration
	Now      func() time.Time
}

// Claims are the claims carried by tokens minted by Signer.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

func (s *Signer) validate() error {
	if len(s.Secret) < 32 {
		return errors.New("auth: signing secret must be at least 32 bytes")
	}
	if strings.TrimSpace(s.Username) == "" {
		return errors.New("auth: username is required")
	}
	return nil
}

// Token implements bridge.TokenProvider.
func (s *Signer) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.validate(); err != nil {
		return "", err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	issued := now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   s.Username,
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Username: s.Username,
	}
	if s.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token minted by s and returns its claims.
func (s *Signer) Verify(token string) (Claims, error) {
	var claims Claims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	if s.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.Audience))
	}
	if s.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(s.Now))
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("auth: verify token: %w", err)
	}
	return claims, nil
}
