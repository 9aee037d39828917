// Package cache provides a process-local TTL cache that memoizes expensive
// pipeline results. Keys are content-addressed hashes of an operation kind
// plus its parameters, so identical requests hit the same slot regardless of
// ordering. Entry count is unbounded and eviction is TTL-only; this is a
// documented scaling limitation, not an oversight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Kind names the operation whose result is being cached. Distinct kinds get
// distinct key spaces and may carry distinct TTLs.
type Kind string

// Cache kinds used by the pipeline.
const (
	KindSearch Kind = "search"
	KindAnswer Kind = "answer"
)

// Default TTLs by kind. Answers expire sooner to bound staleness of
// synthesized medical guidance.
const (
	DefaultSearchTTL = 24 * time.Hour
	DefaultAnswerTTL = 12 * time.Hour

	// DefaultSweepInterval is how often the background sweep removes
	// expired entries.
	DefaultSweepInterval = 10 * time.Minute
)

// entry is one cached value with its absolute expiry.
type entry struct {
	value     interface{}
	createdAt time.Time
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Store is a concurrency-safe TTL cache.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	// inflight guards per-key computes so concurrent misses for the same
	// key run the compute function once.
	inflight map[string]*call

	hits   uint64
	misses uint64
	sets   uint64

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

// call tracks one in-flight compute.
type call struct {
	done  chan struct{}
	value interface{}
	err   error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSweepInterval overrides the background sweep interval.
func WithSweepInterval(interval time.Duration) StoreOption {
	return func(s *Store) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// NewStore creates a Store and starts its background sweep. Call Stop to
// terminate the sweep goroutine.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:       make(map[string]*entry),
		inflight:      make(map[string]*call),
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()
	return s
}

// Stop terminates the background sweep goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
}

// Key builds the content-addressed cache key for a kind and payload. The
// payload is JSON-marshaled, so identical parameters always produce the same
// key. Marshal failures fall back to the fmt representation rather than
// erroring; the worst case is a cache miss.
func Key(kind Kind, payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", payload))
	}

	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrCompute returns the cached value for (kind, payload) when present and
// unexpired; otherwise it invokes compute exactly once (even under concurrent
// misses for the same key), stores the result with the given TTL, and returns
// it. Compute errors are returned without caching. A zero ttl stores the
// entry without expiry. A caller served by another caller's in-flight
// compute counts as a hit.
func (s *Store) GetOrCompute(ctx context.Context, kind Kind, payload interface{}, ttl time.Duration, compute func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	key := Key(kind, payload)

	for {
		s.mu.Lock()
		if e, ok := s.entries[key]; ok {
			if e.expired(time.Now()) {
				delete(s.entries, key)
			} else {
				s.hits++
				value := e.value
				s.mu.Unlock()
				return value, nil
			}
		}

		if c, running := s.inflight[key]; running {
			s.mu.Unlock()
			select {
			case <-c.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if c.err == nil {
				// The other caller's compute served this request too.
				s.mu.Lock()
				s.hits++
				s.mu.Unlock()
				return c.value, nil
			}
			// The other caller's compute failed; retry with our own.
			continue
		}

		s.misses++
		c := &call{done: make(chan struct{})}
		s.inflight[key] = c
		s.mu.Unlock()

		value, err := compute(ctx)

		s.mu.Lock()
		delete(s.inflight, key)
		if err == nil {
			now := time.Now()
			e := &entry{value: value, createdAt: now}
			if ttl > 0 {
				e.expiresAt = now.Add(ttl)
			}
			s.entries[key] = e
			s.sets++
		}
		s.mu.Unlock()

		c.value = value
		c.err = err
		close(c.done)
		return value, err
	}
}

// Get returns the cached value for (kind, payload) if present and unexpired.
func (s *Store) Get(kind Kind, payload interface{}) (interface{}, bool) {
	key := Key(kind, payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// Set stores a value directly with the given TTL.
func (s *Store) Set(kind Kind, payload interface{}, value interface{}, ttl time.Duration) {
	key := Key(kind, payload)
	now := time.Now()
	e := &entry{value: value, createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.sets++
	s.mu.Unlock()
}

// Clear removes every entry and resets nothing else; counters survive so hit
// rates remain meaningful across administrative clears.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Hits:   s.hits,
		Misses: s.misses,
		Sets:   s.sets,
		Size:   len(s.entries),
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// sweepLoop periodically removes expired entries. Expiry is also checked
// lazily on read, so the sweep only reclaims memory.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := time.Now()

	s.mu.Lock()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}
