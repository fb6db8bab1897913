package assistant

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/clinicflow/booking-assistant/pkg/logging"
)

// ErrSessionNotFound is returned by read operations on unknown session keys.
var ErrSessionNotFound = errors.New("assistant: session not found")

// SessionStore is the injected session-state backend. Acquire hands the
// caller exclusive ownership of one session for the duration of a turn,
// guaranteeing per-session serialization while different sessions proceed in
// parallel.
type SessionStore interface {
	// Acquire locks the session, creating it when absent, and returns it
	// together with a release func the caller must invoke when the turn is
	// done. Mutations are persisted via Save before release.
	Acquire(ctx context.Context, key string) (*Session, func(), error)
	// Save persists the session. Callers hold the session's lock.
	Save(ctx context.Context, sess *Session) error
	// Peek returns a read-only copy without locking out an in-flight turn.
	Peek(ctx context.Context, key string) (*Session, error)
	// Delete removes the session entirely.
	Delete(ctx context.Context, key string) error
	// Ping verifies the backend is reachable; the in-memory store always is.
	Ping(ctx context.Context) error
	// Close stops background maintenance.
	Close() error
}

// MemoryStore keeps sessions in process memory. A janitor goroutine expires
// idle sessions and prunes stale offers on a fixed interval; it never holds
// a session lock for longer than a single cleanup pass.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	ttl    time.Duration
	logger *logging.Logger

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once

	now func() time.Time
}

type memoryEntry struct {
	mu   sync.Mutex
	sess *Session
}

// MemoryStoreOption configures the in-memory store.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the time source; tests use this to control expiry.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an in-memory session store. ttl bounds session
// inactivity; janitorInterval fixes the cleanup cadence (0 disables it).
func NewMemoryStore(ttl, janitorInterval time.Duration, logger *logging.Logger, opts ...MemoryStoreOption) *MemoryStore {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		ttl:         ttl,
		logger:      logger,
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if janitorInterval > 0 {
		go s.runJanitor(janitorInterval)
	} else {
		close(s.janitorDone)
	}
	return s
}

var _ SessionStore = (*MemoryStore)(nil)

func (s *MemoryStore) entry(key string, create bool) *memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok && create {
		e = &memoryEntry{sess: NewSession(key, s.now())}
		s.entries[key] = e
	}
	return e
}

// Acquire locks the session for one turn. The returned release func must be
// called exactly once.
func (s *MemoryStore) Acquire(ctx context.Context, key string) (*Session, func(), error) {
	for {
		e := s.entry(key, true)

		locked := make(chan struct{})
		go func() {
			e.mu.Lock()
			close(locked)
		}()
		select {
		case <-locked:
		case <-ctx.Done():
			// The lock goroutine will still take and must release the mutex.
			go func() {
				<-locked
				e.mu.Unlock()
			}()
			return nil, nil, ctx.Err()
		}

		// The janitor may have expired this entry between lookup and lock;
		// mutating an orphaned entry would lose the whole turn, so start over
		// on the live map slot.
		s.mu.Lock()
		current := s.entries[key]
		s.mu.Unlock()
		if current != e {
			e.mu.Unlock()
			continue
		}

		e.sess.LastActiveAt = s.now()
		var once sync.Once
		release := func() { once.Do(e.mu.Unlock) }
		return e.sess, release, nil
	}
}

// Save is a no-op for the in-memory store; the caller mutates the live
// session under its lock.
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error { return nil }

// Peek returns a deep copy of the current session state.
func (s *MemoryStore) Peek(ctx context.Context, key string) (*Session, error) {
	e := s.entry(key, false)
	if e == nil {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

// Delete removes the session; the next Acquire starts fresh.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrSessionNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close stops the janitor.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.janitorStop) })
	<-s.janitorDone
	return nil
}

func (s *MemoryStore) runJanitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep expires idle sessions and prunes stale offers. Entries locked by an
// in-flight turn are skipped rather than waited on.
func (s *MemoryStore) sweep() {
	now := s.now()
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)

	expired := 0
	for _, key := range keys {
		e := s.entry(key, false)
		if e == nil {
			continue
		}
		if !e.mu.TryLock() {
			continue // turn in flight
		}
		idle := e.sess.LastActiveAt.Before(cutoff)
		if idle {
			// Removed while still locked, so an Acquire racing this pass sees
			// the deletion and restarts on a fresh entry instead of mutating
			// an orphan.
			s.mu.Lock()
			delete(s.entries, key)
			s.mu.Unlock()
			expired++
		} else {
			pruneOffers(e.sess, now)
		}
		e.mu.Unlock()
	}

	if expired > 0 {
		s.logger.Debug("expired idle sessions", "count", expired)
	}
}

// pruneOffers drops offers past the freshness window so the resolver never
// sees them and memory stays bounded.
func pruneOffers(sess *Session, now time.Time) {
	if len(sess.Offers) == 0 {
		return
	}
	kept := sess.Offers[:0]
	for _, o := range sess.Offers {
		if now.Sub(o.At) <= offerFreshWindow {
			kept = append(kept, o)
		}
	}
	sess.Offers = kept
}
