// Package session holds the authoritative registry of live primary
// sessions and dashboard sessions.
package session

import (
	"sort"
	"time"

	"github.com/minucst/portal/pkg/auth/codes"
	"github.com/minucst/portal/pkg/clock"
)

// DefaultDuration is the lifetime of primary and dashboard sessions.
const DefaultDuration = 30 * time.Minute

// Session is a live primary session.
type Session struct {
	Token        string     `json:"-"`
	UserID       string     `json:"user_id"`
	Role         codes.Role `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
}

type sessionValue struct {
	userID string
	role   codes.Role
}

// Store tracks primary sessions keyed by token. A session dies when its
// policy says so; every session also has a cleanup timer that fires one
// duration after creation.
type Store struct {
	sessions *tracker[sessionValue]
}

// NewStore creates a Store. A nil policy defaults to absolute expiry at
// duration plus inactivity expiry after duration.
func NewStore(clk clock.Clock, duration time.Duration, policy ExpiryPolicy) *Store {
	if duration <= 0 {
		duration = DefaultDuration
	}

	if policy == nil {
		policy = Any(Absolute(duration), Inactivity(duration))
	}

	return &Store{
		sessions: newTracker[sessionValue](clk, duration, policy),
	}
}

// Create records a new session for token.
func (s *Store) Create(token, userID string, role codes.Role) Session {
	item := s.sessions.add(token, sessionValue{userID: userID, role: role})

	return toSession(item)
}

// Touch slides the session's last activity to now. It returns false when
// the session is missing or dead.
func (s *Store) Touch(token string) bool {
	return s.sessions.touch(token)
}

// IsLive reports whether token names a session that has not expired.
// Dead sessions are evicted.
func (s *Store) IsLive(token string) bool {
	_, ok := s.sessions.get(token)

	return ok
}

// Get returns the live session for token.
func (s *Store) Get(token string) (Session, bool) {
	item, ok := s.sessions.get(token)
	if !ok {
		return Session{}, false
	}

	return toSession(item), true
}

// Remove deletes the session for token. Removing a missing session is a
// no-op that returns false.
func (s *Store) Remove(token string) bool {
	return s.sessions.remove(token)
}

// RemoveByUser deletes every session belonging to userID.
func (s *Store) RemoveByUser(userID string) int {
	return s.sessions.removeWhere(func(v sessionValue) bool {
		return v.userID == userID
	})
}

// IsOnline reports whether userID has at least one live session.
func (s *Store) IsOnline(userID string) bool {
	for _, item := range s.sessions.live() {
		if item.value.userID == userID {
			return true
		}
	}

	return false
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return len(s.sessions.live())
}

// List returns all live sessions ordered by creation time.
func (s *Store) List() []Session {
	items := s.sessions.live()
	out := make([]Session, 0, len(items))

	for _, item := range items {
		out = append(out, toSession(item))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func toSession(item tracked[sessionValue]) Session {
	return Session{
		Token:        item.key,
		UserID:       item.value.userID,
		Role:         item.value.role,
		CreatedAt:    item.createdAt,
		LastActivity: item.lastActivity,
	}
}
