package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/clock"
)

// JWTSigner signs tokens with HMAC-SHA256 and verifies the signature on
// every Parse.
type JWTSigner struct {
	key   []byte
	clock clock.Clock
}

// Compile-time interface check.
var _ Signer = (*JWTSigner)(nil)

type jwtClaims struct {
	UserID string     `json:"userId"`
	Role   codes.Role `json:"role"`
	Code   string     `json:"code"`
	jwt.RegisteredClaims
}

// NewJWTSigner creates a JWTSigner. The key must not be empty.
func NewJWTSigner(key string, clk clock.Clock) (*JWTSigner, error) {
	if key == "" {
		return nil, errors.New("jwt signing key is required")
	}

	return &JWTSigner{key: []byte(key), clock: clk}, nil
}

// Sign encodes claims as an HS256 JWT.
func (s *JWTSigner) Sign(claims Claims) (string, error) {
	c := jwtClaims{
		UserID: claims.UserID,
		Role:   claims.Role,
		Code:   claims.Code,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Unix(claims.IssuedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(claims.ExpiresAt, 0)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}

	return signed, nil
}

// Parse verifies the signature and expiry of tok and returns its claims.
func (s *JWTSigner) Parse(tok string) (Claims, error) {
	var c jwtClaims

	_, err := jwt.ParseWithClaims(tok, &c,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithLeeway(time.Second),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}

		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := Claims{
		ID:     c.ID,
		UserID: c.UserID,
		Role:   c.Role,
		Code:   c.Code,
	}

	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Unix()
	}

	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Unix()
	}

	return out, nil
}
