// Package clock abstracts wall-clock time and deferred callbacks so that
// session expiry and lockout windows can be driven deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer; false means it already fired or was stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Compile-time interface checks.
var (
	_ Clock = Real{}
	_ Clock = (*Manual)(nil)
)

// Real is the system clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a clock that only moves when Advance or Set is called. Timers
// due at or before the new time fire synchronously, in deadline order, on
// the goroutine that moved the clock.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	clock *Manual
	id    uint64
	at    time.Time
	f     func()
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		timers: make(map[uint64]*manualTimer, 8),
	}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

// AfterFunc schedules f to run once the clock reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++

	t := &manualTimer{
		clock: m,
		id:    m.seq,
		at:    m.now.Add(d),
		f:     f,
	}
	m.timers[t.id] = t

	return t
}

// Advance moves the clock forward by d and fires due timers.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t and fires due timers. Moving backwards only
// changes Now.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t

	due := make([]*manualTimer, 0, len(m.timers))

	for id, timer := range m.timers {
		if !timer.at.After(t) {
			due = append(due, timer)
			delete(m.timers, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}

		return due[i].at.Before(due[j].at)
	})

	for _, timer := range due {
		timer.f()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.timers)
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}

	delete(t.clock.timers, t.id)

	return true
}
