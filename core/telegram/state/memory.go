package state

import (
	"sort"
	"sync"
	"time"
)

type entry[T any] struct {
	value    T
	lastSeen time.Time
}

// Store is an in-memory chat-keyed map safe for concurrent handlers.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[int64]*entry[T]
	now     func() time.Time
}

// NewStore returns an empty store using the wall clock.
func NewStore[T any]() *Store[T] {
	return &Store[T]{entries: make(map[int64]*entry[T]), now: time.Now}
}

// SetClock replaces the clock used for last-seen stamps.
func (s *Store[T]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns the entry for a chat if it exists.
func (s *Store[T]) Get(chatID int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[chatID]; ok {
		return e.value, true
	}
	var zero T
	return zero, false
}

// GetOrCreate returns the chat's entry, creating it with create when absent.
// created reports whether create ran. The entry is marked as seen either way.
func (s *Store[T]) GetOrCreate(chatID int64, create func() T) (v T, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		e = &entry[T]{value: create()}
		s.entries[chatID] = e
	}
	e.lastSeen = s.now()
	return e.value, !ok
}

// Touch marks an existing entry as seen now.
func (s *Store[T]) Touch(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if ok {
		e.lastSeen = s.now()
	}
	return ok
}

// Remove deletes and returns the chat's entry.
func (s *Store[T]) Remove(chatID int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.entries, chatID)
	return e.value, true
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Range calls fn for a snapshot of the entries in chat id order until fn
// returns false. fn may call back into the store.
func (s *Store[T]) Range(fn func(chatID int64, v T) bool) {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.entries))
	values := make(map[int64]T, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		values[id] = e.value
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(id, values[id]) {
			return
		}
	}
}

// Idle lists chats not seen for longer than ttl.
func (s *Store[T]) Idle(ttl time.Duration) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-ttl)
	var ids []int64
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
