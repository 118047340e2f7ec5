// Package cache provides the context cache: an authoritative, immutable
// store of each violation's original line for the duration of one
// orchestration. The validator always reads the original from here, never
// from the caller, so a revision prompt cannot drift from the true original.
package cache

import "sync"

// CachedOriginal holds the bit-exact original line stored at intake, plus
// its line number and an optional surrounding snippet supplied by the caller.
type CachedOriginal struct {
	OriginalLine string
	LineNumber   int
	Snippet      string
}

// Store is an in-process cache keyed by violation ID. The first Put for an
// ID wins; later Puts for the same ID are no-ops, which keeps later tiers
// from overwriting the original with their own candidates. Safe for
// concurrent use. Zero value is not valid; use New.
type Store struct {
	mu      sync.Mutex
	entries map[string]CachedOriginal
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]CachedOriginal)}
}

// Put stores the original line for id. If an entry already exists for id,
// Put does nothing and reports false.
func (s *Store) Put(id, originalLine string, lineNumber int, snippet string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return false
	}
	s.entries[id] = CachedOriginal{
		OriginalLine: originalLine,
		LineNumber:   lineNumber,
		Snippet:      snippet,
	}
	return true
}

// Get returns the cached entry for id. The entry is returned by value so
// callers cannot mutate the stored original.
func (s *Store) Get(id string) (CachedOriginal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// Evict removes the entry for id. Evicting an absent id is a no-op.
func (s *Store) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of live entries. Used by tests to verify eviction
// on terminal outcomes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
