// Package state holds the per-session shared state the pipeline stages
// communicate through. A store belongs to exactly one session and is passed
// explicitly into every stage call; nothing here is process-global.
package state

import "sync"

// Store is a mutex-guarded key/value map. Reads and writes are both
// exclusive: contention is low (one writer per stage, plus the gather
// fan-out appending partial results from several goroutines), so a single
// mutex is simpler than read/write locking. Last write wins; there is no
// versioning.
type Store struct {
	mu     sync.Mutex
	values map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the value for key, or fallback when the key is absent.
func (s *Store) Get(key string, fallback any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return fallback
}

// Lookup returns the value for key and whether it was present.
func (s *Store) Lookup(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Snapshot returns a shallow copy of the current contents.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]any, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	return snap
}
