package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const executionColumns = `
	trade_id, tx_hash, user_id, mode, symbol, side, execution_status,
	receipt_status, block_number, gas_used, decode_method,
	is_system_operator, strategy_id, submitted_at, finalized_at
`

// Insert adds a new record in SUBMITTED state.
func (s *ExecutionStore) Insert(ctx context.Context, r *domain.ExecutionRecord) error {
	if r == nil || r.TradeID == "" || r.TxHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO execution_records (` + executionColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.TradeID, r.TxHash, r.UserID, r.Mode, r.Symbol, r.Side, domain.ExecutionSubmitted,
		r.ReceiptStatus, r.BlockNumber, r.GasUsed, r.DecodeMethod,
		r.IsSystemOperator, r.StrategyID, r.SubmittedAt, r.FinalizedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

// GetByTradeID retrieves a record. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByTradeID(ctx context.Context, tradeID string) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_records WHERE trade_id = $1`

	row := s.pool.QueryRow(ctx, query, tradeID)
	r, err := scanExecutionRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution record: %w", err)
	}
	return r, nil
}

// ListPending retrieves all SUBMITTED records, oldest submission first.
func (s *ExecutionStore) ListPending(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_records
		WHERE execution_status = $1
		ORDER BY submitted_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.ExecutionSubmitted)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	var pending []*domain.ExecutionRecord
	for rows.Next() {
		r, err := scanExecutionRecordRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution record row: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution record rows: %w", err)
	}
	return pending, nil
}

// Finalize transitions a record out of SUBMITTED. The SUBMITTED predicate
// is part of the statement, so only one of any number of racing pollers
// performs the transition.
func (s *ExecutionStore) Finalize(ctx context.Context, tradeID string, res *domain.ExecutionResult) (bool, error) {
	if res == nil || (res.Status != domain.ExecutionConfirmed && res.Status != domain.ExecutionReverted) {
		return false, storage.ErrInvalidInput
	}

	query := `
		UPDATE execution_records SET
			execution_status = $2,
			receipt_status = $3,
			block_number = $4,
			gas_used = $5,
			decode_method = $6,
			finalized_at = $7
		WHERE trade_id = $1
		  AND execution_status = $8
	`

	tag, err := s.pool.Exec(ctx, query, tradeID,
		res.Status, res.ReceiptStatus, res.BlockNumber, res.GasUsed,
		res.DecodeMethod, res.FinalizedAt, domain.ExecutionSubmitted,
	)
	if err != nil {
		return false, fmt.Errorf("finalize execution record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM execution_records WHERE trade_id = $1)`, tradeID).Scan(&exists); err != nil {
			return false, fmt.Errorf("check execution record exists: %w", err)
		}
		if !exists {
			return false, storage.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// scanExecutionRecord scans a single row into an ExecutionRecord.
func scanExecutionRecord(row pgx.Row) (*domain.ExecutionRecord, error) {
	var r domain.ExecutionRecord

	err := row.Scan(
		&r.TradeID, &r.TxHash, &r.UserID, &r.Mode, &r.Symbol, &r.Side, &r.ExecutionStatus,
		&r.ReceiptStatus, &r.BlockNumber, &r.GasUsed, &r.DecodeMethod,
		&r.IsSystemOperator, &r.StrategyID, &r.SubmittedAt, &r.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanExecutionRecordRows scans the current row of a multi-row result.
func scanExecutionRecordRows(rows pgx.Rows) (*domain.ExecutionRecord, error) {
	var r domain.ExecutionRecord

	err := rows.Scan(
		&r.TradeID, &r.TxHash, &r.UserID, &r.Mode, &r.Symbol, &r.Side, &r.ExecutionStatus,
		&r.ReceiptStatus, &r.BlockNumber, &r.GasUsed, &r.DecodeMethod,
		&r.IsSystemOperator, &r.StrategyID, &r.SubmittedAt, &r.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}
