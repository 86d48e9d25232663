// Package token issues and verifies the portal's bearer tokens: the
// three-part primary session token and the opaque dashboard token.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/clock"
)

const (
	// DefaultTTL is the lifetime embedded in primary tokens.
	DefaultTTL = 30 * time.Minute

	dashboardTokenBytes = 8
	dashboardPrefix     = "dashboard_"
)

var (
	// ErrMalformed is returned for tokens that cannot be decoded.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned for tokens past their embedded expiry.
	ErrExpired = errors.New("token expired")
)

// Claims is the payload carried by a primary token. Times are unix
// seconds. ID is unique per issued token, so two logins within the same
// second still yield distinct tokens and distinct sessions.
type Claims struct {
	ID        string     `json:"jti,omitempty"`
	UserID    string     `json:"userId"`
	Role      codes.Role `json:"role"`
	Code      string     `json:"code"`
	IssuedAt  int64      `json:"iat"`
	ExpiresAt int64      `json:"exp"`
}

// Signer encodes claims into a token string and decodes them back.
type Signer interface {
	Sign(claims Claims) (string, error)
	Parse(token string) (Claims, error)
}

// Service issues primary and dashboard tokens.
type Service struct {
	signer Signer
	clock  clock.Clock
	ttl    time.Duration
}

// NewService creates a token Service. A non-positive ttl uses DefaultTTL.
func NewService(signer Signer, clk clock.Clock, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Service{
		signer: signer,
		clock:  clk,
		ttl:    ttl,
	}
}

// TTL returns the primary token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// IssuePrimary mints a primary token for the user.
func (s *Service) IssuePrimary(
	userID string, role codes.Role, code string,
) (string, Claims, error) {
	iat := s.clock.Now().Unix()

	claims := Claims{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Code:      code,
		IssuedAt:  iat,
		ExpiresAt: iat + int64(s.ttl/time.Second),
	}

	tok, err := s.signer.Sign(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("signing token: %w", err)
	}

	return tok, claims, nil
}

// VerifyPrimary decodes token and rejects it once the current second is
// past its expiry.
func (s *Service) VerifyPrimary(tok string) (Claims, error) {
	claims, err := s.signer.Parse(tok)
	if err != nil {
		return Claims{}, err
	}

	if s.clock.Now().Unix() > claims.ExpiresAt {
		return Claims{}, ErrExpired
	}

	return claims, nil
}

// IssueDashboard returns a random opaque dashboard token. It carries no
// payload; its validity is tracked by the session package.
func (s *Service) IssueDashboard() (string, error) {
	b := make([]byte, dashboardTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return fmt.Sprintf("%s%d_%s",
		dashboardPrefix, s.clock.Now().UnixMilli(), hex.EncodeToString(b),
	), nil
}
