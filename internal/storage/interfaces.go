package storage

import (
	"context"

	"trade-ledger/internal/domain"
)

// TradeStore provides access to the trade ledger.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.Trade, error)

	// GetByUserMode retrieves a user's full non-corrupted history for one
	// mode, ordered by executed_at ASC with insertion order breaking ties.
	GetByUserMode(ctx context.Context, userID string, mode domain.Mode) ([]*domain.Trade, error)

	// GetByTxHash retrieves the placeholder trade for an on-chain
	// submission. Returns ErrNotFound if no placeholder exists.
	GetByTxHash(ctx context.Context, txHash string) (*domain.Trade, error)

	// UnsettledSellUsers lists user ids that have at least one SELL with a
	// null snapshot in the given mode.
	UnsettledSellUsers(ctx context.Context, mode domain.Mode) ([]string, error)

	// ApplySellSnapshot writes the sale snapshot onto a SELL row. The update
	// is guarded: it only applies while trade_type = 'sell' and
	// original_purchase_value is still null. Returns false when the guard
	// was hit (already settled, possibly by a racing caller).
	ApplySellSnapshot(ctx context.Context, tradeID string, snap *domain.SaleSnapshot) (bool, error)

	// UpdateEconomics overwrites a trade's executed amount, price, value and
	// fees from decoded on-chain truth. Returns false if the trade does not
	// exist.
	UpdateEconomics(ctx context.Context, tradeID string, amount, price, totalValue, fees float64) (bool, error)

	// MarkCorrupted excludes a row from all FIFO and capital computations.
	MarkCorrupted(ctx context.Context, tradeID string) error
}

// CapitalStore provides access to per-(user, mode) capital accounts.
type CapitalStore interface {
	// Get retrieves an account. Returns ErrNotFound if not initialized.
	Get(ctx context.Context, userID string, mode domain.Mode) (*domain.CapitalAccount, error)

	// Create adds a new account row. Returns ErrDuplicateKey if it exists.
	Create(ctx context.Context, a *domain.CapitalAccount) error

	// WithAccountLock loads the account under an exclusive row lock, invokes
	// fn, and persists the mutated account when fn returns nil. The lock is
	// held for the whole read-modify-write. A non-nil fn error aborts the
	// write and is returned unchanged. Returns ErrNotFound if no account
	// row exists.
	WithAccountLock(ctx context.Context, userID string, mode domain.Mode, fn func(a *domain.CapitalAccount) error) error

	// Delete removes an account row. Mode restrictions are enforced by the
	// capital service, not here.
	Delete(ctx context.Context, userID string, mode domain.Mode) error
}

// ExecutionStore provides access to on-chain execution records.
type ExecutionStore interface {
	// Insert adds a new record in SUBMITTED state. Returns ErrDuplicateKey
	// if the trade already has one.
	Insert(ctx context.Context, r *domain.ExecutionRecord) error

	// GetByTradeID retrieves a record. Returns ErrNotFound if not exists.
	GetByTradeID(ctx context.Context, tradeID string) (*domain.ExecutionRecord, error)

	// ListPending retrieves all records still in SUBMITTED state, oldest
	// submission first.
	ListPending(ctx context.Context) ([]*domain.ExecutionRecord, error)

	// Finalize transitions a record out of SUBMITTED. The update is guarded:
	// only rows still in SUBMITTED transition, so re-polling an already
	// finalized record is a no-op. Returns false when the guard was hit.
	Finalize(ctx context.Context, tradeID string, res *domain.ExecutionResult) (bool, error)
}

// PriceStore provides access to the mark price timeseries.
type PriceStore interface {
	// InsertPoints adds price points. Duplicate (symbol, timestamp_ms)
	// points fail the batch with ErrDuplicateKey.
	InsertPoints(ctx context.Context, points []*domain.PricePoint) error

	// LatestBySymbol returns the most recent known price per requested
	// symbol. Symbols with no points are absent from the result.
	LatestBySymbol(ctx context.Context, symbols []string) (map[string]float64, error)
}
