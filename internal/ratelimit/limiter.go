// Package ratelimit implements a fixed-window in-memory request limiter.
// Counters are process-local and reset on restart; deployments needing
// durable counters across instances should front the relay with a shared
// store instead.
package ratelimit

import (
	"strconv"
	"sync"
	"time"
)

const (
	// window is the fixed counting window.
	window = time.Minute

	// defaultSweepEvery amortizes expired-entry cleanup over checks.
	defaultSweepEvery = 100

	// defaultMaxEntries bounds the identifier map; the oldest inserted
	// entry is evicted first once exceeded.
	defaultMaxEntries = 10000
)

// Clock abstracts wall-clock time so tests can travel.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type entry struct {
	count   int
	resetAt time.Time
}

// Result reports a single rate limit decision.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per opaque identifier within fixed windows.
// All methods are safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       []string // insertion order for FIFO eviction
	limit       int
	sweepEvery  int
	maxEntries  int
	clock       Clock
	sinceSweep  int
}

// Option customises limiter construction.
type Option func(*Limiter)

// WithClock injects a clock, used by tests to control window expiry.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithMaxEntries overrides the entry cap.
func WithMaxEntries(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithSweepEvery overrides the amortized cleanup interval.
func WithSweepEvery(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.sweepEvery = n
		}
	}
}

// NewLimiter creates a limiter allowing requestsPerMinute per identifier.
func NewLimiter(requestsPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		entries:    make(map[string]*entry),
		limit:      requestsPerMinute,
		sweepEvery: defaultSweepEvery,
		maxEntries: defaultMaxEntries,
		clock:      SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request for the identifier and reports whether it is
// allowed. The first request in a window (or after expiry) starts a new
// window; at the limit the count is pinned and further requests are denied.
func (l *Limiter) Check(identifier string) Result {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sinceSweep++
	if l.sinceSweep >= l.sweepEvery {
		l.sweep(now)
		l.sinceSweep = 0
	}

	e, ok := l.entries[identifier]
	if !ok || now.After(e.resetAt) {
		// New window: expired entries are replaced, not mutated.
		e = &entry{count: 1, resetAt: now.Add(window)}
		if !ok {
			l.order = append(l.order, identifier)
		}
		l.entries[identifier] = e
		l.enforceCap()
		return Result{Allowed: true, Remaining: l.limit - 1, ResetAt: e.resetAt}
	}

	if e.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}
	}

	e.count++
	return Result{Allowed: true, Remaining: l.limit - e.count, ResetAt: e.resetAt}
}

// Reset clears the window for one identifier without touching others.
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[identifier]; !ok {
		return
	}
	delete(l.entries, identifier)
	l.removeFromOrder(identifier)
}

// Count returns the current window's count for the identifier, zero when
// unseen or expired.
func (l *Limiter) Count(identifier string) int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identifier]
	if !ok || now.After(e.resetAt) {
		return 0
	}
	return e.count
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// SetLimit adjusts the per-window limit, applied to subsequent checks.
func (l *Limiter) SetLimit(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = requestsPerMinute
}

// Len reports the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep drops entries whose window has expired. Caller holds the lock.
func (l *Limiter) sweep(now time.Time) {
	kept := l.order[:0]
	for _, id := range l.order {
		e, ok := l.entries[id]
		if !ok {
			continue
		}
		if now.After(e.resetAt) {
			delete(l.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
}

// enforceCap evicts oldest-inserted entries past the cap. Caller holds the
// lock.
func (l *Limiter) enforceCap() {
	for len(l.entries) > l.maxEntries && len(l.order) > 0 {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
	}
}

func (l *Limiter) removeFromOrder(identifier string) {
	for i, id := range l.order {
		if id == identifier {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// Headers renders the standard rate limit response headers for a decision.
// Retry-After is included only on denial.
func Headers(r Result, limit int, now time.Time) map[string]string {
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     r.ResetAt.UTC().Format(time.RFC3339),
	}
	if !r.Allowed {
		retryAfter := int(r.ResetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		headers["Retry-After"] = strconv.Itoa(retryAfter)
	}
	return headers
}
