// Package fifo implements the lot-matching engine: every SELL consumes the
// oldest remaining BUY lots for its symbol, producing the cost basis and
// realized P&L snapshot for that sale.
package fifo

import (
	"sort"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/money"
)

// dustThreshold is the smallest lot remainder still considered open.
// Quantities round to 8 decimals, so anything below this is float residue.
const dustThreshold = 1e-9

// Outcome is the matching result for a single SELL trade.
type Outcome struct {
	SellTradeID string
	Allocations []domain.Allocation

	// Snapshot is nil when the SELL is an orphan or fails the snapshot
	// guard; such sells must never be settled.
	Snapshot *domain.SaleSnapshot

	// Orphan: no BUY liquidity was available when matching began.
	Orphan bool

	// Partial: some but not all of the SELL amount found lots. The snapshot
	// covers only the matched portion.
	Partial bool
}

// Result is the outcome of matching one user's history for one symbol.
type Result struct {
	Outcomes []Outcome

	// OpenLots are the BUY lots with quantity left after all sells, oldest
	// first. Input for the mark-to-market projection.
	OpenLots []*domain.BuyLot
}

// Orphans counts sells that matched nothing.
func (r *Result) Orphans() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Orphan {
			n++
		}
	}
	return n
}

// MatchHistory processes the full trade history for one user and one
// normalized symbol in chronological order. Ties on ExecutedAt keep the
// caller's insertion order (stable sort); corrupted rows are ignored.
// feeRate applies to both legs of every matched sale.
func MatchHistory(trades []*domain.Trade, feeRate float64) *Result {
	ordered := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsCorrupted {
			continue
		}
		ordered = append(ordered, t)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt < ordered[j].ExecutedAt
	})

	res := &Result{}
	var lots []*domain.BuyLot

	for _, t := range ordered {
		switch t.TradeType {
		case domain.TradeTypeBuy:
			if t.Amount <= 0 {
				continue
			}
			lots = append(lots, &domain.BuyLot{
				SourceTradeID:   t.ID,
				Symbol:          t.Symbol,
				TotalAmount:     t.Amount,
				RemainingAmount: t.Amount,
				Price:           t.Price,
				TotalValue:      t.TotalValue,
				ExecutedAt:      t.ExecutedAt,
			})

		case domain.TradeTypeSell:
			res.Outcomes = append(res.Outcomes, matchSell(t, lots, feeRate))
		}
	}

	for _, lot := range lots {
		if lot.RemainingAmount > dustThreshold {
			res.OpenLots = append(res.OpenLots, lot)
		}
	}
	return res
}

// matchSell walks lots oldest-first, consuming min(lot remaining, still
// needed) from each until the sell amount is covered or lots run out.
func matchSell(sell *domain.Trade, lots []*domain.BuyLot, feeRate float64) Outcome {
	out := Outcome{SellTradeID: sell.ID}
	needed := sell.Amount

	for _, lot := range lots {
		if needed <= dustThreshold {
			break
		}
		if lot.Exhausted() {
			continue
		}

		matched := lot.RemainingAmount
		if needed < matched {
			matched = needed
		}
		matched = money.Round8(matched)

		lot.RemainingAmount = money.Round8(lot.RemainingAmount - matched)
		needed = money.Round8(needed - matched)

		out.Allocations = append(out.Allocations, domain.Allocation{
			LotID:           lot.SourceTradeID,
			MatchedAmount:   matched,
			BuyPrice:        lot.Price,
			BuyValuePortion: matched * lot.Price,
		})
	}

	if len(out.Allocations) == 0 {
		out.Orphan = true
		return out
	}
	out.Partial = needed > dustThreshold

	out.Snapshot = buildSnapshot(sell, out.Allocations, feeRate)
	return out
}

// buildSnapshot computes the sale economics from the allocations. Returns
// nil when the guard fails: a snapshot with zero amount, value or price
// would corrupt realized-P&L reporting.
func buildSnapshot(sell *domain.Trade, allocs []domain.Allocation, feeRate float64) *domain.SaleSnapshot {
	var purchaseAmount, purchaseValueRaw float64
	for _, a := range allocs {
		purchaseAmount += a.MatchedAmount
		purchaseValueRaw += a.BuyValuePortion
	}

	purchaseValue := money.Round2(purchaseValueRaw)
	purchasePrice := 0.0
	if purchaseAmount > 0 {
		purchasePrice = money.Round6(purchaseValueRaw / purchaseAmount)
	}

	if purchaseAmount <= 0 || purchaseValue <= 0 || purchasePrice <= 0 {
		return nil
	}

	exitValue := money.Round2(sell.Amount * sell.Price)
	buyFees := money.Round2(purchaseValue * feeRate)
	sellFees := money.Round2(exitValue * feeRate)
	realized := money.Round2((exitValue - sellFees) - (purchaseValue + buyFees))

	pct := 0.0
	if purchaseValue > 0 {
		pct = money.Round2(realized / purchaseValue * 100)
	}

	return &domain.SaleSnapshot{
		OriginalTradeID:        allocs[0].LotID,
		OriginalPurchaseAmount: money.Round8(purchaseAmount),
		OriginalPurchasePrice:  purchasePrice,
		OriginalPurchaseValue:  purchaseValue,
		ExitValue:              exitValue,
		BuyFees:                buyFees,
		SellFees:               sellFees,
		RealizedPnL:            realized,
		RealizedPnLPct:         pct,
	}
}
