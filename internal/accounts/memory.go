package accounts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内のマップにアカウントを保持します。
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*Account
	byUsername map[string]string
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Account),
		byUsername: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[account.Username]; exists {
		return ErrUsernameTaken
	}
	s.byID[account.ID] = account.clone()
	s.byUsername[account.Username] = account.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return account.clone(), nil
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (*Account, error) {
	s.mu.RLock()
	id, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

func (s *MemoryStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	account.LastLogin = &at
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
