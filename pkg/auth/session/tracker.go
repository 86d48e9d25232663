package session

import (
	"sync"
	"time"

	"github.com/minucst/portal/pkg/clock"
)

type tracked[V any] struct {
	key          string
	value        V
	createdAt    time.Time
	lastActivity time.Time
	timer        clock.Timer
}

// tracker is a token-keyed map whose entries are evicted both by a cleanup
// timer scheduled on insert and lazily on lookup. Both paths go through
// evictIfExpiredLocked, and eviction of a missing key is a no-op.
type tracker[V any] struct {
	clock  clock.Clock
	ttl    time.Duration
	policy ExpiryPolicy

	mu    sync.Mutex
	items map[string]*tracked[V]
}

func newTracker[V any](clk clock.Clock, ttl time.Duration, policy ExpiryPolicy) *tracker[V] {
	return &tracker[V]{
		clock:  clk,
		ttl:    ttl,
		policy: policy,
		items:  make(map[string]*tracked[V], 32),
	}
}

func (t *tracker[V]) add(key string, value V) tracked[V] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.items[key]; ok {
		prev.timer.Stop()
	}

	now := t.clock.Now()
	item := &tracked[V]{
		key:          key,
		value:        value,
		createdAt:    now,
		lastActivity: now,
	}

	item.timer = t.clock.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		// A later add under the same key owns its own timer.
		if cur, ok := t.items[key]; ok && cur == item {
			t.evictIfExpiredLocked(key)
		}
	})

	t.items[key] = item

	return *item
}

// evictIfExpiredLocked removes key when its policy says it is dead and
// reports whether the key is absent afterwards.
func (t *tracker[V]) evictIfExpiredLocked(key string) bool {
	item, ok := t.items[key]
	if !ok {
		return true
	}

	if !t.policy.Expired(item.createdAt, item.lastActivity, t.clock.Now()) {
		return false
	}

	t.removeLocked(key)

	return true
}

func (t *tracker[V]) removeLocked(key string) bool {
	item, ok := t.items[key]
	if !ok {
		return false
	}

	item.timer.Stop()
	delete(t.items, key)

	return true
}

func (t *tracker[V]) remove(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.removeLocked(key)
}

// get returns a copy of the live entry for key.
func (t *tracker[V]) get(key string) (tracked[V], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.evictIfExpiredLocked(key) {
		return tracked[V]{}, false
	}

	return *t.items[key], true
}

func (t *tracker[V]) touch(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.evictIfExpiredLocked(key) {
		return false
	}

	t.items[key].lastActivity = t.clock.Now()

	return true
}

// removeWhere deletes every entry matching fn and returns how many went.
func (t *tracker[V]) removeWhere(fn func(V) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0

	for key, item := range t.items {
		if fn(item.value) {
			t.removeLocked(key)
			removed++
		}
	}

	return removed
}

// live evicts dead entries and returns copies of the rest.
func (t *tracker[V]) live() []tracked[V] {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]tracked[V], 0, len(t.items))

	for key := range t.items {
		if !t.evictIfExpiredLocked(key) {
			out = append(out, *t.items[key])
		}
	}

	return out
}
