package memory

import (
	"context"
	"sync"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu     sync.RWMutex
	points map[string][]*domain.PricePoint // keyed by symbol
	seen   map[pointKey]struct{}
}

type pointKey struct {
	symbol      string
	timestampMs int64
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		points: make(map[string][]*domain.PricePoint),
		seen:   make(map[pointKey]struct{}),
	}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// InsertPoints adds price points. Duplicate (symbol, timestamp_ms) points
// fail the batch with ErrDuplicateKey.
func (s *PriceStore) InsertPoints(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: detect duplicates (existing + intra-batch)
	batch := make(map[pointKey]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := pointKey{p.Symbol, p.TimestampMs}
		if _, exists := s.seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[k]; exists {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, p := range points {
		cp := *p
		s.points[p.Symbol] = append(s.points[p.Symbol], &cp)
		s.seen[pointKey{p.Symbol, p.TimestampMs}] = struct{}{}
	}
	return nil
}

// LatestBySymbol returns the most recent known price per requested symbol.
func (s *PriceStore) LatestBySymbol(_ context.Context, symbols []string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		var best *domain.PricePoint
		for _, p := range s.points[sym] {
			if best == nil || p.TimestampMs > best.TimestampMs {
				best = p
			}
		}
		if best != nil {
			latest[sym] = best.Price
		}
	}
	return latest, nil
}
