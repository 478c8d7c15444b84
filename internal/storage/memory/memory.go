// Package memory is an in-process storage.Store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sonic7adarsh/bharatapp/internal/storage"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store keeps values in a map. Entries older than the TTL read as missing.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a store. A zero ttl keeps entries forever.
func New(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func key(session, k string) string {
	return session + "\x00" + k
}

// Get returns a copy of the stored value.
func (s *Store) Get(_ context.Context, session, k string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key(session, k)]
	s.mu.RUnlock()

	if !ok || s.expired(e) {
		return nil, storage.ErrNotFound(session, k)
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, session, k string, value []byte) error {
	e := entry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key(session, k)] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the key.
func (s *Store) Delete(_ context.Context, session, k string) error {
	s.mu.Lock()
	delete(s.entries, key(session, k))
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Purge drops expired entries and returns how many were removed.
func (s *Store) Purge(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}
