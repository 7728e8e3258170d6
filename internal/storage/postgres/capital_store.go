package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

// CapitalStore implements storage.CapitalStore using PostgreSQL.
type CapitalStore struct {
	pool *Pool
}

// NewCapitalStore creates a new CapitalStore.
func NewCapitalStore(pool *Pool) *CapitalStore {
	return &CapitalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CapitalStore = (*CapitalStore)(nil)

const capitalColumns = `
	user_id, mode, starting_capital, cash_balance, reserved,
	created_at, updated_at
`

// Get retrieves an account. Returns ErrNotFound if not initialized.
func (s *CapitalStore) Get(ctx context.Context, userID string, mode domain.Mode) (*domain.CapitalAccount, error) {
	query := `SELECT ` + capitalColumns + ` FROM capital_accounts WHERE user_id = $1 AND mode = $2`

	row := s.pool.QueryRow(ctx, query, userID, mode)
	a, err := scanCapitalAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get capital account: %w", err)
	}
	return a, nil
}

// Create adds a new account row. Returns ErrDuplicateKey if it exists.
func (s *CapitalStore) Create(ctx context.Context, a *domain.CapitalAccount) error {
	if a == nil || a.UserID == "" || !a.Mode.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO capital_accounts (` + capitalColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		a.UserID, a.Mode, a.StartingCapital, a.CashBalance, a.Reserved,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("create capital account: %w", err)
	}
	return nil
}

// WithAccountLock loads the account row with SELECT ... FOR UPDATE inside a
// transaction, invokes fn, and persists the mutated balances on commit. The
// row lock serializes concurrent mutations of the same (user, mode) pair;
// different accounts proceed in parallel.
func (s *CapitalStore) WithAccountLock(ctx context.Context, userID string, mode domain.Mode, fn func(a *domain.CapitalAccount) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + capitalColumns + `
		FROM capital_accounts
		WHERE user_id = $1 AND mode = $2
		FOR UPDATE
	`

	row := tx.QueryRow(ctx, query, userID, mode)
	a, err := scanCapitalAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock capital account: %w", err)
	}

	if err := fn(a); err != nil {
		return err
	}

	update := `
		UPDATE capital_accounts SET
			starting_capital = $3,
			cash_balance = $4,
			reserved = $5,
			updated_at = $6
		WHERE user_id = $1 AND mode = $2
	`

	if _, err := tx.Exec(ctx, update,
		userID, mode, a.StartingCapital, a.CashBalance, a.Reserved, a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update capital account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes an account row.
func (s *CapitalStore) Delete(ctx context.Context, userID string, mode domain.Mode) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM capital_accounts WHERE user_id = $1 AND mode = $2`, userID, mode)
	if err != nil {
		return fmt.Errorf("delete capital account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanCapitalAccount scans a single row into a CapitalAccount.
func scanCapitalAccount(row pgx.Row) (*domain.CapitalAccount, error) {
	var a domain.CapitalAccount

	err := row.Scan(
		&a.UserID, &a.Mode, &a.StartingCapital, &a.CashBalance, &a.Reserved,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &a, nil
}
