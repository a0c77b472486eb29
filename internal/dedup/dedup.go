// Package dedup provides a bounded set of recently seen identifiers, used to
// drop redelivered webhook events and repeated bot commands. Slack's Events
// API delivers at least once; without this gate every retried delivery would
// re-trigger side effects.
package dedup

import "sync"

// Default capacities for the two gates the pipeline runs.
const (
	EventCapacity   = 1000
	CommandCapacity = 500
)

// RecentSet remembers the most recently recorded keys, up to a fixed
// capacity. When the capacity is exceeded, the oldest ~10% of entries are
// evicted in insertion order. This is deliberate FIFO, not LRU: a Seen hit
// does not refresh an entry's position.
//
// RecentSet is safe for concurrent use. State is process-local and volatile;
// a restart forgets prior keys, which is an accepted tradeoff.
type RecentSet struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

// NewRecentSet creates a RecentSet holding at most capacity keys.
// A capacity <= 0 defaults to EventCapacity.
func NewRecentSet(capacity int) *RecentSet {
	if capacity <= 0 {
		capacity = EventCapacity
	}
	return &RecentSet{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen reports whether key has been recorded and not yet evicted.
func (r *RecentSet) Seen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[key]
	return ok
}

// Record adds key to the set, evicting the oldest tenth of entries first if
// the set is full. Recording an already-present key is a no-op.
func (r *RecentSet) Record(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return
	}

	if len(r.order) >= r.capacity {
		evict := r.capacity / 10
		if evict < 1 {
			evict = 1
		}
		for _, old := range r.order[:evict] {
			delete(r.seen, old)
		}
		r.order = append(r.order[:0], r.order[evict:]...)
	}

	r.seen[key] = struct{}{}
	r.order = append(r.order, key)
}

// Len returns the number of keys currently tracked.
func (r *RecentSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
