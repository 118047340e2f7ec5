package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestPut_firstWriteWins(t *testing.T) {
	t.Parallel()
	s := New()
	if !s.Put("v1", "original = value", 10, "") {
		t.Fatal("first Put should succeed")
	}
	if s.Put("v1", "overwritten = candidate", 10, "") {
		t.Error("second Put for same id should be a no-op")
	}
	got, ok := s.Get("v1")
	if !ok {
		t.Fatal("Get after Put should find the entry")
	}
	if got.OriginalLine != "original = value" {
		t.Errorf("OriginalLine = %q, want the first write", got.OriginalLine)
	}
}

func TestGet_missing(t *testing.T) {
	t.Parallel()
	s := New()
	if _, ok := s.Get("absent"); ok {
		t.Error("Get on empty store should report false")
	}
}

func TestGet_returnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	s.Put("v1", "x = 1", 3, "ctx")
	e, _ := s.Get("v1")
	e.OriginalLine = "mutated"
	again, _ := s.Get("v1")
	if again.OriginalLine != "x = 1" {
		t.Error("mutating a returned entry should not affect the store")
	}
}

func TestEvict(t *testing.T) {
	t.Parallel()
	s := New()
	s.Put("v1", "x = 1", 3, "")
	s.Evict("v1")
	if _, ok := s.Get("v1"); ok {
		t.Error("Get after Evict should report false")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after eviction, want 0", s.Len())
	}
	// Evicting an absent id must not panic.
	s.Evict("never-stored")
}

func TestPut_afterEvictAllowsRewrite(t *testing.T) {
	t.Parallel()
	s := New()
	s.Put("v1", "first", 1, "")
	s.Evict("v1")
	if !s.Put("v1", "second", 1, "") {
		t.Error("Put after Evict should succeed")
	}
	e, _ := s.Get("v1")
	if e.OriginalLine != "second" {
		t.Errorf("OriginalLine = %q, want %q", e.OriginalLine, "second")
	}
}

func TestStore_concurrentAccess(t *testing.T) {
	t.Parallel()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("v%d", i%4)
			s.Put(id, "line", i+1, "")
			s.Get(id)
			if i%8 == 0 {
				s.Evict(id)
			}
		}()
	}
	wg.Wait()
	if s.Len() > 4 {
		t.Errorf("Len() = %d, want at most 4 distinct ids", s.Len())
	}
}
