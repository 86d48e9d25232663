package codes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateValidCodes(t *testing.T) {
	all := GenerateValidCodes()

	require.Len(t, all, 32)
	assert.Equal(t, "MINUCST2026-SG-DIEGO", all[0])
	assert.Equal(t, "MINUCST2026-SGA-NATASHA", all[1])
	assert.Equal(t, "MINUCST-STAFF-01", all[2])
	assert.Equal(t, "MINUCST-STAFF-30", all[31])

	for _, code := range all {
		assert.True(t, IsValidFormat(code), code)
	}
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		code     string
		expected bool
	}{
		{code: "MINUCST2026-SG-DIEGO", expected: true},
		{code: "MINUCST2026-SGA-ANYONE", expected: true},
		{code: "MINUCST-STAFF-05", expected: true},
		{code: "MINUCST-STAFF-30", expected: true},
		{code: "MINUCST-STAFF-00", expected: false},
		{code: "MINUCST-STAFF-31", expected: false},
		{code: "MINUCST-STAFF-5", expected: false},
		{code: "MINUCST2026-STAFF-001", expected: false},
		{code: "MINUCST2026-SG-", expected: false},
		{code: "MINUCST2026-XX-DIEGO", expected: false},
		{code: "minucst-staff-05", expected: false},
		{code: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidFormat(tt.code))
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "MINUCST-STAFF-05", Sanitize("  minucst-staff-05\t"))
	assert.Equal(t, "MINUCST-STAFF-05", Sanitize(`<minucst-"staff"-05&>`))
	assert.Equal(t, "", Sanitize("  '' "))
}

func TestRoleOf(t *testing.T) {
	assert.Equal(t, RoleSuperAdmin, RoleOf("MINUCST2026-SG-DIEGO"))
	assert.Equal(t, RoleSuperAdmin, RoleOf("MINUCST2026-SGA-NATASHA"))
	assert.Equal(t, RoleTraining, RoleOf("MINUCST-STAFF-12"))
}

func TestStaticHasher(t *testing.T) {
	h := NewStaticHasher("secret")

	a, err := h.Hash("MINUCST-STAFF-01")
	require.NoError(t, err)

	again, err := h.Hash("MINUCST-STAFF-01")
	require.NoError(t, err)

	b, err := h.Hash("MINUCST-STAFF-02")
	require.NoError(t, err)

	assert.Equal(t, a, again)
	assert.Len(t, a, 64)
	assert.True(t, h.Verify("MINUCST-STAFF-01", a))
	assert.False(t, h.Verify("MINUCST-STAFF-01", b))

	other := NewStaticHasher("other-secret")
	assert.False(t, other.Verify("MINUCST-STAFF-01", a))
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("MINUCST-STAFF-01")
	require.NoError(t, err)

	assert.True(t, h.Verify("MINUCST-STAFF-01", digest))
	assert.False(t, h.Verify("MINUCST-STAFF-02", digest))
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(NewStaticHasher("secret"))
	require.NoError(t, err)

	assert.Len(t, r.Codes(), 32)

	for _, code := range r.Codes() {
		assert.True(t, r.Known(code))
		assert.True(t, r.Verify(code))
	}

	assert.False(t, r.Known("MINUCST2026-SG-NOBODY"))
	assert.False(t, r.Verify("MINUCST2026-SG-NOBODY"))

	// Callers cannot mutate the registry through Codes.
	codes := r.Codes()
	codes[0] = "tampered"
	assert.Equal(t, "MINUCST2026-SG-DIEGO", r.Codes()[0])
}
