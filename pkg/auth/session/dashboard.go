package session

import (
	"time"

	"github.com/minucst/portal/pkg/clock"
)

// DashboardSessions is the set of issued dashboard tokens. Membership is
// the only state; each token expires a fixed duration after issuance.
type DashboardSessions struct {
	tokens *tracker[struct{}]
}

// NewDashboardSessions creates an empty set.
func NewDashboardSessions(clk clock.Clock, duration time.Duration) *DashboardSessions {
	if duration <= 0 {
		duration = DefaultDuration
	}

	return &DashboardSessions{
		tokens: newTracker[struct{}](clk, duration, Absolute(duration)),
	}
}

// Add registers token.
func (d *DashboardSessions) Add(token string) {
	d.tokens.add(token, struct{}{})
}

// Has reports whether token is registered and unexpired.
func (d *DashboardSessions) Has(token string) bool {
	if token == "" {
		return false
	}

	_, ok := d.tokens.get(token)

	return ok
}

// Remove drops token. Removing a missing token is a no-op.
func (d *DashboardSessions) Remove(token string) bool {
	return d.tokens.remove(token)
}

// Len returns the number of unexpired dashboard tokens.
func (d *DashboardSessions) Len() int {
	return len(d.tokens.live())
}
