package codes

import (
	"fmt"
)

// Registry holds the digest of every valid code. It is built once and never
// reloaded.
type Registry struct {
	hasher  Hasher
	codes   []string
	digests map[string]string
}

// NewRegistry hashes every code in the fixed universe with hasher.
func NewRegistry(hasher Hasher) (*Registry, error) {
	all := GenerateValidCodes()

	r := &Registry{
		hasher:  hasher,
		codes:   all,
		digests: make(map[string]string, len(all)),
	}

	for _, code := range all {
		digest, err := hasher.Hash(code)
		if err != nil {
			return nil, fmt.Errorf("hashing code %d: %w", len(r.digests), err)
		}

		r.digests[code] = digest
	}

	return r, nil
}

// Codes returns the code universe in generation order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.codes))
	copy(out, r.codes)

	return out
}

// Known reports whether code belongs to the universe.
func (r *Registry) Known(code string) bool {
	_, ok := r.digests[code]

	return ok
}

// Verify reports whether code is known and matches its stored digest.
// Unknown codes and digest mismatches are indistinguishable to the caller.
func (r *Registry) Verify(code string) bool {
	digest, ok := r.digests[code]
	if !ok {
		return false
	}

	return r.hasher.Verify(code, digest)
}
