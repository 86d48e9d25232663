package codes

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and checks one-way digests of access codes.
type Hasher interface {
	Hash(code string) (string, error)
	Verify(code, digest string) bool
}

// Compile-time interface checks.
var (
	_ Hasher = (*StaticHasher)(nil)
	_ Hasher = (*BcryptHasher)(nil)
)

// StaticHasher is hex(SHA-256(code + secret)). There is no per-code salt
// and the hash is fast, so it only keeps plaintext codes out of the lookup
// table. Use BcryptHasher for anything exposed to untrusted clients.
type StaticHasher struct {
	secret string
}

// NewStaticHasher creates a StaticHasher keyed by secret.
func NewStaticHasher(secret string) *StaticHasher {
	return &StaticHasher{secret: secret}
}

// Hash returns the hex digest for code.
func (h *StaticHasher) Hash(code string) (string, error) {
	sum := sha256.Sum256([]byte(code + h.secret))

	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest for code and compares it to digest.
func (h *StaticHasher) Verify(code, digest string) bool {
	computed, _ := h.Hash(code)

	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// BcryptHasher salts and stretches each code with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. A cost outside bcrypt's range
// falls back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &BcryptHasher{cost: cost}
}

// Hash returns a bcrypt digest for code.
func (h *BcryptHasher) Hash(code string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing code: %w", err)
	}

	return string(digest), nil
}

// Verify compares code against a bcrypt digest.
func (h *BcryptHasher) Verify(code, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(code)) == nil
}
