package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Result is the outcome of a single limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Entry is one fingerprint's fixed-window counter.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Store holds per-key counters. Take must perform the whole
// read-decide-write for one key atomically so two concurrent requests
// cannot both claim the last slot in a window. MemoryStore is the
// in-process implementation; multi-instance deployments plug in an
// external counter behind the same interface.
type Store interface {
	Take(key string, max int, window time.Duration, now time.Time) Result
}

// MemoryStore is a mutex-guarded in-memory counter map. Expired entries
// are pruned opportunistically on each Take to bound memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Take implements the fixed-window algorithm: a fresh or elapsed window
// starts over at count 1; a full window is denied without resetting the
// deadline; otherwise the count is incremented.
func (s *MemoryStore) Take(key string, max int, window time.Duration, now time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)

	e, ok := s.entries[key]
	if !ok || now.After(e.ResetAt) || now.Equal(e.ResetAt) {
		e = Entry{Count: 1, ResetAt: now.Add(window)}
		s.entries[key] = e
		return Result{Allowed: true, Remaining: max - 1, ResetAt: e.ResetAt}
	}

	if e.Count >= max {
		// Do not reset the window early; the deadline stands.
		return Result{Allowed: false, Remaining: 0, ResetAt: e.ResetAt}
	}

	e.Count++
	s.entries[key] = e
	return Result{Allowed: true, Remaining: max - e.Count, ResetAt: e.ResetAt}
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for k, e := range s.entries {
		if now.After(e.ResetAt) {
			delete(s.entries, k)
		}
	}
}

// Len reports the number of live entries, for tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Limiter binds a policy (max attempts per window) to a Store.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

// Login endpoint defaults: 5 attempts per 15 minutes per fingerprint.
const (
	DefaultLoginMax    = 5
	DefaultLoginWindow = 15 * time.Minute
)

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{store: store, max: max, window: window}
}

// NewLoginLimiter creates the brute-force limiter for the login
// endpoint with an in-memory store and the default policy.
func NewLoginLimiter() *Limiter {
	return NewLimiter(NewMemoryStore(), DefaultLoginMax, DefaultLoginWindow)
}

// Check consumes one attempt for the key.
func (l *Limiter) Check(key string) Result {
	return l.store.Take(key, l.max, l.window, time.Now())
}

// Fingerprint derives the client identity key for a request: remote IP
// plus user agent. RemoteAddr is already rewritten by the RealIP
// middleware when the server sits behind a proxy; the ephemeral port is
// stripped so one client maps to one key.
func Fingerprint(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip + "|" + r.UserAgent()
}
