package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, user_id, mode, trade_type, symbol,
	amount, price, total_value, fees, buy_fees, sell_fees,
	executed_at, tx_hash, strategy_id,
	original_trade_id, original_purchase_amount, original_purchase_price,
	original_purchase_value, exit_value, realized_pnl, realized_pnl_pct,
	is_corrupted
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (` + tradeColumns + `
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21,
			$22
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.Mode, t.TradeType, t.Symbol,
		t.Amount, t.Price, t.TotalValue, t.Fees, t.BuyFees, t.SellFees,
		t.ExecutedAt, t.TxHash, t.StrategyID,
		t.OriginalTradeID, t.OriginalPurchaseAmount, t.OriginalPurchasePrice,
		t.OriginalPurchaseValue, t.ExitValue, t.RealizedPnL, t.RealizedPnLPct,
		t.IsCorrupted,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByUserMode retrieves a user's non-corrupted history for one mode,
// ordered by executed_at ASC, insertion order on ties.
func (s *TradeStore) GetByUserMode(ctx context.Context, userID string, mode domain.Mode) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND mode = $2 AND NOT is_corrupted
		ORDER BY executed_at ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("get trades by user/mode: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTxHash retrieves the placeholder trade for an on-chain submission.
func (s *TradeStore) GetByTxHash(ctx context.Context, txHash string) (*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE tx_hash = $1
		ORDER BY seq ASC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, txHash)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by tx hash: %w", err)
	}
	return t, nil
}

// UnsettledSellUsers lists user ids with at least one unsettled SELL.
func (s *TradeStore) UnsettledSellUsers(ctx context.Context, mode domain.Mode) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM trades
		WHERE mode = $1
		  AND trade_type = 'sell'
		  AND original_purchase_value IS NULL
		  AND NOT is_corrupted
		ORDER BY user_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mode)
	if err != nil {
		return nil, fmt.Errorf("list unsettled sell users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan unsettled sell user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsettled sell users: %w", err)
	}
	return users, nil
}

// ApplySellSnapshot writes the sale snapshot onto an unsettled SELL row.
// The guard is part of the statement: only a sell with a null snapshot is
// updated, so a racing second settlement affects zero rows.
func (s *TradeStore) ApplySellSnapshot(ctx context.Context, tradeID string, snap *domain.SaleSnapshot) (bool, error) {
	if snap == nil {
		return false, storage.ErrInvalidInput
	}

	query := `
		UPDATE trades SET
			original_trade_id = $2,
			original_purchase_amount = $3,
			original_purchase_price = $4,
			original_purchase_value = $5,
			exit_value = $6,
			realized_pnl = $7,
			realized_pnl_pct = $8,
			buy_fees = $9,
			sell_fees = $10
		WHERE trade_id = $1
		  AND trade_type = 'sell'
		  AND original_purchase_value IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, tradeID,
		snap.OriginalTradeID, snap.OriginalPurchaseAmount, snap.OriginalPurchasePrice,
		snap.OriginalPurchaseValue, snap.ExitValue, snap.RealizedPnL, snap.RealizedPnLPct,
		snap.BuyFees, snap.SellFees,
	)
	if err != nil {
		return false, fmt.Errorf("apply sell snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trades WHERE trade_id = $1)`, tradeID).Scan(&exists); err != nil {
			return false, fmt.Errorf("check trade exists: %w", err)
		}
		if !exists {
			return false, storage.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// UpdateEconomics overwrites executed amount, price, value and fees.
func (s *TradeStore) UpdateEconomics(ctx context.Context, tradeID string, amount, price, totalValue, fees float64) (bool, error) {
	query := `
		UPDATE trades SET
			amount = $2,
			price = $3,
			total_value = $4,
			fees = $5
		WHERE trade_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, tradeID, amount, price, totalValue, fees)
	if err != nil {
		return false, fmt.Errorf("update trade economics: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCorrupted excludes a row from all computations.
func (s *TradeStore) MarkCorrupted(ctx context.Context, tradeID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE trades SET is_corrupted = TRUE WHERE trade_id = $1`, tradeID)
	if err != nil {
		return fmt.Errorf("mark trade corrupted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade

	err := row.Scan(
		&t.ID, &t.UserID, &t.Mode, &t.TradeType, &t.Symbol,
		&t.Amount, &t.Price, &t.TotalValue, &t.Fees, &t.BuyFees, &t.SellFees,
		&t.ExecutedAt, &t.TxHash, &t.StrategyID,
		&t.OriginalTradeID, &t.OriginalPurchaseAmount, &t.OriginalPurchasePrice,
		&t.OriginalPurchaseValue, &t.ExitValue, &t.RealizedPnL, &t.RealizedPnLPct,
		&t.IsCorrupted,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade

		err := rows.Scan(
			&t.ID, &t.UserID, &t.Mode, &t.TradeType, &t.Symbol,
			&t.Amount, &t.Price, &t.TotalValue, &t.Fees, &t.BuyFees, &t.SellFees,
			&t.ExecutedAt, &t.TxHash, &t.StrategyID,
			&t.OriginalTradeID, &t.OriginalPurchaseAmount, &t.OriginalPurchasePrice,
			&t.OriginalPurchaseValue, &t.ExitValue, &t.RealizedPnL, &t.RealizedPnLPct,
			&t.IsCorrupted,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
