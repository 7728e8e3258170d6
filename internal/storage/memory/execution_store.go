package memory

import (
	"context"
	"sort"
	"sync"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionRecord // keyed by trade id
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.ExecutionRecord),
	}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// Insert adds a new record in SUBMITTED state.
func (s *ExecutionStore) Insert(_ context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.TradeID == "" || r.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *r
	cp.ExecutionStatus = domain.ExecutionSubmitted
	s.data[r.TradeID] = &cp
	return nil
}

// GetByTradeID retrieves a record. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByTradeID(_ context.Context, tradeID string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListPending retrieves all SUBMITTED records, oldest submission first.
func (s *ExecutionStore) ListPending(_ context.Context) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*domain.ExecutionRecord
	for _, r := range s.data {
		if r.ExecutionStatus == domain.ExecutionSubmitted {
			cp := *r
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].SubmittedAt != pending[j].SubmittedAt {
			return pending[i].SubmittedAt < pending[j].SubmittedAt
		}
		return pending[i].TradeID < pending[j].TradeID
	})
	return pending, nil
}

// Finalize transitions a record out of SUBMITTED. Returns false when the
// record has already been finalized.
func (s *ExecutionStore) Finalize(_ context.Context, tradeID string, res *domain.ExecutionResult) (bool, error) {
	if res == nil || (res.Status != domain.ExecutionConfirmed && res.Status != domain.ExecutionReverted) {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[tradeID]
	if !exists {
		return false, storage.ErrNotFound
	}
	if r.ExecutionStatus != domain.ExecutionSubmitted {
		return false, nil
	}

	r.ExecutionStatus = res.Status
	r.ReceiptStatus = res.ReceiptStatus
	r.BlockNumber = res.BlockNumber
	r.GasUsed = res.GasUsed
	r.DecodeMethod = res.DecodeMethod
	r.FinalizedAt = res.FinalizedAt
	return true, nil
}
