package tonconnect

import (
	"context"
	"sync"
)

// Storage persists the bridge session of one chat. Get returns "" and a nil
// error for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// ChatStorage hands out the Storage of each chat.
type ChatStorage interface {
	ForChat(chatID int64) Storage
}

// MemoryStore hands out one MemoryStorage per chat and keeps it for the
// process lifetime, so a connector rebuilt after eviction restores its
// session.
type MemoryStore struct {
	mu    sync.Mutex
	chats map[int64]*MemoryStorage
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[int64]*MemoryStorage)}
}

// ForChat returns the chat's storage, creating it on first use.
func (s *MemoryStore) ForChat(chatID int64) Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.chats[chatID]
	if !ok {
		st = NewMemoryStorage()
		s.chats[chatID] = st
	}
	return st
}
