package session

import (
	"testing"
	"time"

	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPolicies(t *testing.T) {
	created := testStart
	last := testStart.Add(10 * time.Minute)

	tests := []struct {
		name     string
		policy   ExpiryPolicy
		now      time.Time
		expected bool
	}{
		{name: "absolute before deadline", policy: Absolute(30 * time.Minute), now: created.Add(29 * time.Minute), expected: false},
		{name: "absolute at deadline", policy: Absolute(30 * time.Minute), now: created.Add(30 * time.Minute), expected: true},
		{name: "inactivity at limit", policy: Inactivity(5 * time.Minute), now: last.Add(5 * time.Minute), expected: false},
		{name: "inactivity past limit", policy: Inactivity(5 * time.Minute), now: last.Add(5*time.Minute + time.Millisecond), expected: true},
		{name: "any none", policy: Any(Absolute(time.Hour), Inactivity(time.Hour)), now: last.Add(time.Minute), expected: false},
		{name: "any one", policy: Any(Absolute(time.Hour), Inactivity(time.Minute)), now: last.Add(2 * time.Minute), expected: true},
		{name: "any empty", policy: Any(), now: last.Add(1000 * time.Hour), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Expired(created, last, tt.now))
		})
	}
}

func TestStore_CreateTouchAndLookup(t *testing.T) {
	clk := clock.NewManual(testStart)
	s := NewStore(clk, 0, nil)

	created := s.Create("tok", "user-1", codes.RoleTraining)
	assert.Equal(t, "tok", created.Token)
	assert.Equal(t, testStart, created.LastActivity)

	clk.Advance(10 * time.Minute)
	require.True(t, s.Touch("tok"))

	got, ok := s.Get("tok")
	require.True(t, ok)
	assert.Equal(t, testStart.Add(10*time.Minute), got.LastActivity)
	assert.Equal(t, testStart, got.CreatedAt)
	assert.Equal(t, codes.RoleTraining, got.Role)

	assert.True(t, s.IsLive("tok"))
	assert.True(t, s.IsOnline("user-1"))
	assert.False(t, s.IsOnline("user-2"))
	assert.False(t, s.Touch("missing"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_ScheduledCleanupAtDuration(t *testing.T) {
	clk := clock.NewManual(testStart)
	s := NewStore(clk, 0, nil)

	s.Create("tok", "user-1", codes.RoleTraining)

	// Activity does not postpone the cleanup timer.
	clk.Advance(20 * time.Minute)
	s.Touch("tok")

	clk.Advance(10 * time.Minute)

	assert.Equal(t, 0, clk.Pending())
	assert.False(t, s.IsLive("tok"))
	assert.False(t, s.IsOnline("user-1"))
}

func TestStore_LazyEvictionOnIdle(t *testing.T) {
	clk := clock.NewManual(testStart)

	// Inactivity only, so the timer at creation+duration leaves it alone.
	s := NewStore(clk, 10*time.Minute, Inactivity(10*time.Minute))
	s.Create("tok", "user-1", codes.RoleTraining)

	clk.Advance(8 * time.Minute)
	require.True(t, s.Touch("tok"))

	clk.Advance(8 * time.Minute)
	assert.True(t, s.IsLive("tok"), "timer fired but session was active")

	clk.Advance(11 * time.Minute)
	assert.False(t, s.IsLive("tok"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	clk := clock.NewManual(testStart)
	s := NewStore(clk, 0, nil)

	s.Create("tok", "user-1", codes.RoleTraining)

	assert.True(t, s.Remove("tok"))
	assert.False(t, s.Remove("tok"))
	assert.Equal(t, 0, clk.Pending(), "pending cleanup is cancelled")

	// A late cleanup for an already removed key is harmless.
	clk.Advance(time.Hour)
	assert.False(t, s.IsLive("tok"))
}

func TestStore_RemoveByUser(t *testing.T) {
	clk := clock.NewManual(testStart)
	s := NewStore(clk, 0, nil)

	s.Create("a1", "user-a", codes.RoleTraining)
	clk.Advance(time.Minute)
	s.Create("a2", "user-a", codes.RoleTraining)
	s.Create("b1", "user-b", codes.RoleSuperAdmin)

	assert.Equal(t, 2, s.RemoveByUser("user-a"))
	assert.False(t, s.IsOnline("user-a"))
	assert.False(t, s.IsLive("a1"))
	assert.False(t, s.IsLive("a2"))
	assert.True(t, s.IsLive("b1"))
	assert.Equal(t, 0, s.RemoveByUser("user-a"))

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "b1", list[0].Token)
}

func TestStore_RecreateSameTokenKeepsNewTimer(t *testing.T) {
	clk := clock.NewManual(testStart)
	s := NewStore(clk, 30*time.Minute, nil)

	s.Create("tok", "user-1", codes.RoleTraining)
	clk.Advance(20 * time.Minute)
	s.Create("tok", "user-1", codes.RoleTraining)

	clk.Advance(15 * time.Minute)
	assert.True(t, s.IsLive("tok"))
	assert.Equal(t, 1, clk.Pending())
}

func TestDashboardSessions(t *testing.T) {
	clk := clock.NewManual(testStart)
	d := NewDashboardSessions(clk, 0)

	d.Add("dash")
	assert.True(t, d.Has("dash"))
	assert.False(t, d.Has(""))
	assert.False(t, d.Has("other"))
	assert.Equal(t, 1, d.Len())

	clk.Advance(29 * time.Minute)
	assert.True(t, d.Has("dash"))

	clk.Advance(time.Minute)
	assert.False(t, d.Has("dash"))
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.Remove("dash"))
}
