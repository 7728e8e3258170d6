package memory

import (
	"context"
	"sort"
	"sync"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Trade // keyed by trade id
	order map[string]int           // insertion sequence, breaks executed_at ties
	seq   int
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data:  make(map[string]*domain.Trade),
		order: make(map[string]int),
	}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *t
	s.data[t.ID] = &cp
	s.order[t.ID] = s.seq
	s.seq++
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// GetByUserMode retrieves a user's non-corrupted history for one mode,
// ordered by executed_at ASC, insertion order on ties.
func (s *TradeStore) GetByUserMode(_ context.Context, userID string, mode domain.Mode) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.UserID == userID && t.Mode == mode && !t.IsCorrupted {
			cp := *t
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ExecutedAt != result[j].ExecutedAt {
			return result[i].ExecutedAt < result[j].ExecutedAt
		}
		return s.order[result[i].ID] < s.order[result[j].ID]
	})
	return result, nil
}

// GetByTxHash retrieves the placeholder trade for an on-chain submission.
func (s *TradeStore) GetByTxHash(_ context.Context, txHash string) (*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data {
		if t.TxHash != nil && *t.TxHash == txHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// UnsettledSellUsers lists user ids with at least one unsettled SELL.
func (s *TradeStore) UnsettledSellUsers(_ context.Context, mode domain.Mode) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var users []string
	for _, t := range s.data {
		if t.Mode != mode || t.TradeType != domain.TradeTypeSell || t.IsCorrupted || t.Settled() {
			continue
		}
		if _, ok := seen[t.UserID]; !ok {
			seen[t.UserID] = struct{}{}
			users = append(users, t.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

// ApplySellSnapshot writes the sale snapshot onto an unsettled SELL row.
// Returns false when the write guard was hit.
func (s *TradeStore) ApplySellSnapshot(_ context.Context, tradeID string, snap *domain.SaleSnapshot) (bool, error) {
	if snap == nil {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[tradeID]
	if !exists {
		return false, storage.ErrNotFound
	}
	// Write guard, re-checked at write time like the SQL implementation.
	if t.TradeType != domain.TradeTypeSell || t.OriginalPurchaseValue != nil {
		return false, nil
	}

	t.OriginalTradeID = ptr(snap.OriginalTradeID)
	t.OriginalPurchaseAmount = ptr(snap.OriginalPurchaseAmount)
	t.OriginalPurchasePrice = ptr(snap.OriginalPurchasePrice)
	t.OriginalPurchaseValue = ptr(snap.OriginalPurchaseValue)
	t.ExitValue = ptr(snap.ExitValue)
	t.RealizedPnL = ptr(snap.RealizedPnL)
	t.RealizedPnLPct = ptr(snap.RealizedPnLPct)
	t.BuyFees = snap.BuyFees
	t.SellFees = snap.SellFees
	return true, nil
}

// UpdateEconomics overwrites executed amount, price, value and fees.
func (s *TradeStore) UpdateEconomics(_ context.Context, tradeID string, amount, price, totalValue, fees float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[tradeID]
	if !exists {
		return false, nil
	}
	t.Amount = amount
	t.Price = price
	t.TotalValue = totalValue
	t.Fees = fees
	return true, nil
}

// MarkCorrupted excludes a row from all computations.
func (s *TradeStore) MarkCorrupted(_ context.Context, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[tradeID]
	if !exists {
		return storage.ErrNotFound
	}
	t.IsCorrupted = true
	return nil
}

func ptr[T any](v T) *T { return &v }
