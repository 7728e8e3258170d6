package memory

import (
	"context"
	"errors"
	"testing"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/storage"
)

func testTrade(id, userID string, tradeType domain.TradeType, executedAt int64) *domain.Trade {
	return &domain.Trade{
		ID:         id,
		UserID:     userID,
		Mode:       domain.ModeTest,
		TradeType:  tradeType,
		Symbol:     "BTC-EUR",
		Amount:     1.0,
		Price:      90000,
		TotalValue: 90000,
		ExecutedAt: executedAt,
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := testTrade("t1", "u1", domain.TradeTypeBuy, 1000)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Price != 90000 {
		t.Errorf("Price mismatch: got %f, want 90000", got.Price)
	}
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := testTrade("t1", "u1", domain.TradeTypeBuy, 1000)
	if err := store.Insert(ctx, trade); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, trade)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeStore_GetByUserModeOrdering(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	// Inserted out of executed_at order, plus one tie.
	_ = store.Insert(ctx, testTrade("t2", "u1", domain.TradeTypeBuy, 2000))
	_ = store.Insert(ctx, testTrade("t1", "u1", domain.TradeTypeBuy, 1000))
	_ = store.Insert(ctx, testTrade("t3", "u1", domain.TradeTypeBuy, 2000))

	trades, err := store.GetByUserMode(ctx, "u1", domain.ModeTest)
	if err != nil {
		t.Fatalf("GetByUserMode failed: %v", err)
	}

	wantOrder := []string{"t1", "t2", "t3"}
	for i, want := range wantOrder {
		if trades[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, trades[i].ID, want)
		}
	}
}

func TestTradeStore_GetByUserModeExcludesCorrupted(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testTrade("t1", "u1", domain.TradeTypeBuy, 1000))
	_ = store.Insert(ctx, testTrade("t2", "u1", domain.TradeTypeBuy, 2000))
	if err := store.MarkCorrupted(ctx, "t2"); err != nil {
		t.Fatalf("MarkCorrupted failed: %v", err)
	}

	trades, _ := store.GetByUserMode(ctx, "u1", domain.ModeTest)
	if len(trades) != 1 || trades[0].ID != "t1" {
		t.Errorf("corrupted row not excluded: %v", trades)
	}
}

func TestTradeStore_ModeIsolation(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	real := testTrade("t1", "u1", domain.TradeTypeBuy, 1000)
	real.Mode = domain.ModeReal
	_ = store.Insert(ctx, real)
	_ = store.Insert(ctx, testTrade("t2", "u1", domain.TradeTypeBuy, 2000))

	trades, _ := store.GetByUserMode(ctx, "u1", domain.ModeTest)
	if len(trades) != 1 || trades[0].ID != "t2" {
		t.Errorf("mode isolation broken: %v", trades)
	}
}

func TestTradeStore_ApplySellSnapshotGuard(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testTrade("s1", "u1", domain.TradeTypeSell, 1000))

	snap := &domain.SaleSnapshot{
		OriginalTradeID:        "b1",
		OriginalPurchaseAmount: 1.0,
		OriginalPurchasePrice:  90000,
		OriginalPurchaseValue:  90000,
		ExitValue:              91500,
		RealizedPnL:            1500,
		RealizedPnLPct:         1.67,
	}

	applied, err := store.ApplySellSnapshot(ctx, "s1", snap)
	if err != nil {
		t.Fatalf("ApplySellSnapshot failed: %v", err)
	}
	if !applied {
		t.Fatal("first apply should succeed")
	}

	// Second apply hits the write guard: no error, no write.
	applied, err = store.ApplySellSnapshot(ctx, "s1", snap)
	if err != nil {
		t.Fatalf("second ApplySellSnapshot errored: %v", err)
	}
	if applied {
		t.Error("settlement must be write-once")
	}

	got, _ := store.GetByID(ctx, "s1")
	if got.OriginalPurchaseValue == nil || *got.OriginalPurchaseValue != 90000 {
		t.Errorf("snapshot not persisted: %+v", got)
	}
}

func TestTradeStore_ApplySellSnapshotRejectsBuy(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testTrade("b1", "u1", domain.TradeTypeBuy, 1000))

	applied, err := store.ApplySellSnapshot(ctx, "b1", &domain.SaleSnapshot{OriginalPurchaseValue: 1})
	if err != nil {
		t.Fatalf("ApplySellSnapshot errored: %v", err)
	}
	if applied {
		t.Error("snapshot applied to a BUY row")
	}
}

func TestTradeStore_UnsettledSellUsers(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testTrade("s1", "u1", domain.TradeTypeSell, 1000))
	_ = store.Insert(ctx, testTrade("s2", "u2", domain.TradeTypeSell, 2000))
	_ = store.Insert(ctx, testTrade("b1", "u3", domain.TradeTypeBuy, 3000))

	// Settle u2's sell.
	_, _ = store.ApplySellSnapshot(ctx, "s2", &domain.SaleSnapshot{
		OriginalTradeID: "x", OriginalPurchaseAmount: 1, OriginalPurchasePrice: 1, OriginalPurchaseValue: 1,
	})

	users, err := store.UnsettledSellUsers(ctx, domain.ModeTest)
	if err != nil {
		t.Fatalf("UnsettledSellUsers failed: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("users = %v, want [u1]", users)
	}
}

func TestTradeStore_GetByTxHash(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := testTrade("t1", "u1", domain.TradeTypeBuy, 1000)
	hash := "0xabc"
	trade.TxHash = &hash
	_ = store.Insert(ctx, trade)

	got, err := store.GetByTxHash(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetByTxHash failed: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("got %s, want t1", got.ID)
	}

	if _, err := store.GetByTxHash(ctx, "0xmissing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTradeStore_UpdateEconomics(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	_ = store.Insert(ctx, testTrade("t1", "u1", domain.TradeTypeBuy, 1000))

	found, err := store.UpdateEconomics(ctx, "t1", 0.5, 91000, 45500, 12.5)
	if err != nil {
		t.Fatalf("UpdateEconomics failed: %v", err)
	}
	if !found {
		t.Fatal("expected row to be found")
	}

	got, _ := store.GetByID(ctx, "t1")
	if got.Amount != 0.5 || got.TotalValue != 45500 || got.Fees != 12.5 {
		t.Errorf("economics not applied: %+v", got)
	}

	found, _ = store.UpdateEconomics(ctx, "missing", 1, 1, 1, 0)
	if found {
		t.Error("expected false for missing row")
	}
}
