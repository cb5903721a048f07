package repository

import (
	"context"
	"sort"
	"sync"

	accounts "github.com/goliatone/go-accounts"
)

// MemoryStore is a process local Store for development and tests.
// Records are cloned on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*accounts.Account
}

var _ accounts.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*accounts.Account)}
}

func (s *MemoryStore) Get(_ context.Context, handle string) (*accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.records[handle]
	if !ok {
		return nil, accounts.ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (s *MemoryStore) Insert(_ context.Context, account *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[account.Handle]; ok {
		return accounts.ErrAccountExists
	}
	s.records[account.Handle] = account.Clone()
	return nil
}

func (s *MemoryStore) Save(_ context.Context, account *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[account.Handle]; !ok {
		return accounts.ErrAccountNotFound
	}
	s.records[account.Handle] = account.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*accounts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*accounts.Account, 0, len(s.records))
	for _, account := range s.records {
		records = append(records, account.Clone())
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Created.Equal(records[j].Created) {
			return records[i].Handle < records[j].Handle
		}
		return records[i].Created.Before(records[j].Created)
	})

	return records, nil
}
