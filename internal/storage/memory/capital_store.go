package memory

import (
	"context"
	"sync"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// CapitalStore is an in-memory implementation of storage.CapitalStore.
// WithAccountLock serializes mutations per (user, mode) key, mirroring the
// SELECT ... FOR UPDATE row lock of the Postgres implementation.
type CapitalStore struct {
	mu    sync.RWMutex
	data  map[accountKey]*domain.CapitalAccount
	locks map[accountKey]*sync.Mutex
}

type accountKey struct {
	userID string
	mode   domain.Mode
}

// NewCapitalStore creates a new in-memory capital store.
func NewCapitalStore() *CapitalStore {
	return &CapitalStore{
		data:  make(map[accountKey]*domain.CapitalAccount),
		locks: make(map[accountKey]*sync.Mutex),
	}
}

// Compile-time interface check.
var _ storage.CapitalStore = (*CapitalStore)(nil)

// Get retrieves an account. Returns ErrNotFound if not initialized.
func (s *CapitalStore) Get(_ context.Context, userID string, mode domain.Mode) (*domain.CapitalAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[accountKey{userID, mode}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Create adds a new account row. Returns ErrDuplicateKey if it exists.
func (s *CapitalStore) Create(_ context.Context, a *domain.CapitalAccount) error {
	if a == nil || a.UserID == "" || !a.Mode.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{a.UserID, a.Mode}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *a
	s.data[key] = &cp
	return nil
}

// WithAccountLock runs fn under the per-account exclusive lock and persists
// the mutated account when fn returns nil.
func (s *CapitalStore) WithAccountLock(_ context.Context, userID string, mode domain.Mode, fn func(a *domain.CapitalAccount) error) error {
	lock := s.accountLock(accountKey{userID, mode})
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	a, exists := s.data[accountKey{userID, mode}]
	s.mu.RUnlock()
	if !exists {
		return storage.ErrNotFound
	}

	cp := *a
	if err := fn(&cp); err != nil {
		return err
	}

	s.mu.Lock()
	s.data[accountKey{userID, mode}] = &cp
	s.mu.Unlock()
	return nil
}

// Delete removes an account row.
func (s *CapitalStore) Delete(_ context.Context, userID string, mode domain.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{userID, mode}
	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *CapitalStore) accountLock(key accountKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, exists := s.locks[key]; exists {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}
