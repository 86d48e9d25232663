package session

import "time"

// ExpiryPolicy decides whether an entry created at createdAt and last used
// at lastActivity is dead at now.
type ExpiryPolicy interface {
	Expired(createdAt, lastActivity, now time.Time) bool
}

// Absolute expires an entry ttl after creation, however often it is used.
func Absolute(ttl time.Duration) ExpiryPolicy {
	return absolute(ttl)
}

// Inactivity expires an entry once more than timeout has passed since it
// was last used.
func Inactivity(timeout time.Duration) ExpiryPolicy {
	return inactivity(timeout)
}

// Any expires an entry when at least one of policies does.
func Any(policies ...ExpiryPolicy) ExpiryPolicy {
	return anyOf(policies)
}

type absolute time.Duration

func (p absolute) Expired(createdAt, _, now time.Time) bool {
	return !now.Before(createdAt.Add(time.Duration(p)))
}

type inactivity time.Duration

func (p inactivity) Expired(_, lastActivity, now time.Time) bool {
	return now.Sub(lastActivity) > time.Duration(p)
}

type anyOf []ExpiryPolicy

func (p anyOf) Expired(createdAt, lastActivity, now time.Time) bool {
	for _, policy := range p {
		if policy.Expired(createdAt, lastActivity, now) {
			return true
		}
	}

	return false
}
