package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

func createTestExecution(tradeID, txHash string, submittedAt int64) *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		TradeID:     tradeID,
		TxHash:      txHash,
		UserID:      "user-1",
		Mode:        domain.ModeReal,
		Symbol:      "WBTC-USDC",
		Side:        domain.TradeTypeBuy,
		SubmittedAt: submittedAt,
	}
}

func TestExecutionStore_InsertAndGetByTradeID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	rec := createTestExecution("trade-001", "0xaaa", 1000)
	rec.StrategyID = ptr("momentum-1")
	// Insert normalizes the status regardless of what the caller set
	rec.ExecutionStatus = domain.ExecutionConfirmed

	require.NoError(t, store.Insert(ctx, rec))

	retrieved, err := store.GetByTradeID(ctx, "trade-001")
	require.NoError(t, err)

	assert.Equal(t, "trade-001", retrieved.TradeID)
	assert.Equal(t, "0xaaa", retrieved.TxHash)
	assert.Equal(t, domain.ExecutionSubmitted, retrieved.ExecutionStatus)
	assert.Equal(t, domain.TradeTypeBuy, retrieved.Side)
	assert.Equal(t, uint64(0), retrieved.ReceiptStatus)
	assert.Equal(t, int64(0), retrieved.FinalizedAt)
	require.NotNil(t, retrieved.StrategyID)
	assert.Equal(t, "momentum-1", *retrieved.StrategyID)
}

func TestExecutionStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	rec := createTestExecution("trade-dup", "0xaaa", 1000)
	require.NoError(t, store.Insert(ctx, rec))

	err := store.Insert(ctx, rec)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestExecutionStore_InsertInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	err := store.Insert(ctx, &domain.ExecutionRecord{TradeID: "t", TxHash: ""})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestExecutionStore_GetByTradeIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	_, err := store.GetByTradeID(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecutionStore_ListPendingOrderedBySubmission(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	// t2 and t3 share a submission timestamp, so trade_id breaks the tie
	require.NoError(t, store.Insert(ctx, createTestExecution("t3", "0xc", 2000)))
	require.NoError(t, store.Insert(ctx, createTestExecution("t1", "0xa", 1000)))
	require.NoError(t, store.Insert(ctx, createTestExecution("t2", "0xb", 2000)))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)

	require.Len(t, pending, 3)
	assert.Equal(t, "t1", pending[0].TradeID)
	assert.Equal(t, "t2", pending[1].TradeID)
	assert.Equal(t, "t3", pending[2].TradeID)
}

func TestExecutionStore_FinalizeTransitionsOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	require.NoError(t, store.Insert(ctx, createTestExecution("trade-001", "0xaaa", 1000)))

	res := &domain.ExecutionResult{
		Status:        domain.ExecutionConfirmed,
		ReceiptStatus: 1,
		BlockNumber:   19000000,
		GasUsed:       120000,
		DecodeMethod:  "erc20_transfer_pair",
		FinalizedAt:   2000,
	}

	updated, err := store.Finalize(ctx, "trade-001", res)
	require.NoError(t, err)
	assert.True(t, updated)

	retrieved, err := store.GetByTradeID(ctx, "trade-001")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionConfirmed, retrieved.ExecutionStatus)
	assert.Equal(t, uint64(1), retrieved.ReceiptStatus)
	assert.Equal(t, uint64(19000000), retrieved.BlockNumber)
	assert.Equal(t, uint64(120000), retrieved.GasUsed)
	assert.Equal(t, "erc20_transfer_pair", retrieved.DecodeMethod)
	assert.Equal(t, int64(2000), retrieved.FinalizedAt)

	// Second finalize misses the guard without error
	res.Status = domain.ExecutionReverted
	updated, err = store.Finalize(ctx, "trade-001", res)
	require.NoError(t, err)
	assert.False(t, updated)

	again, err := store.GetByTradeID(ctx, "trade-001")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionConfirmed, again.ExecutionStatus)

	// Finalized records leave the pending set
	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExecutionStore_FinalizeNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	res := &domain.ExecutionResult{Status: domain.ExecutionReverted, FinalizedAt: 2000}
	_, err := store.Finalize(ctx, "missing", res)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecutionStore_FinalizeRejectsSubmittedStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExecutionStore(pool)

	require.NoError(t, store.Insert(ctx, createTestExecution("trade-001", "0xaaa", 1000)))

	_, err := store.Finalize(ctx, "trade-001", &domain.ExecutionResult{Status: domain.ExecutionSubmitted})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
