package files

import (
	"sync"
	"sync/atomic"
	"time"
)

// trimThreshold is the table size above which Admit opportunistically
// drops records idle for staleMultiple times the interval. Expected
// identity cardinality is low; this only guards long uptimes.
const (
	trimThreshold = 1024
	staleMultiple = 10
)

// RateLimiter enforces a minimum interval between accepted uploads per
// client identity. Admission is serialized per identity, never across
// identities, so unrelated clients' uploads do not contend.
type RateLimiter struct {
	interval time.Duration

	records sync.Map // identity -> *rateRecord
	size    atomic.Int64
}

type rateRecord struct {
	mu           sync.Mutex
	lastAccepted time.Time
}

// NewRateLimiter creates a rate limiter with the given minimum interval
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Admit decides whether an upload from identity may proceed at now.
// The check and the last-accepted update happen under one per-identity
// lock, so near-simultaneous requests from one identity yield exactly
// one admission. On denial it returns a *RateLimitError with the
// remaining wait; the record is not updated on denial.
func (l *RateLimiter) Admit(identity string, now time.Time) error {
	v, loaded := l.records.LoadOrStore(identity, &rateRecord{})
	if !loaded {
		l.size.Add(1)
	}
	rec := v.(*rateRecord)

	rec.mu.Lock()
	if !rec.lastAccepted.IsZero() {
		if wait := l.interval - now.Sub(rec.lastAccepted); wait > 0 {
			rec.mu.Unlock()
			return &RateLimitError{RetryAfter: wait}
		}
	}
	// Timestamps are monotonically non-decreasing per identity.
	if now.After(rec.lastAccepted) {
		rec.lastAccepted = now
	}
	rec.mu.Unlock()

	if l.size.Load() > trimThreshold {
		l.trim(now)
	}
	return nil
}

// trim drops records idle long enough that they would be admitted
// anyway. A concurrent request holding a dropped record re-creates it
// on its next call, which is harmless for an idle identity.
func (l *RateLimiter) trim(now time.Time) {
	stale := time.Duration(staleMultiple) * l.interval
	l.records.Range(func(key, value any) bool {
		rec := value.(*rateRecord)
		rec.mu.Lock()
		idle := now.Sub(rec.lastAccepted)
		rec.mu.Unlock()
		if idle >= stale {
			l.records.Delete(key)
			l.size.Add(-1)
		}
		return true
	})
}
