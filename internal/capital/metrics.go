package capital

import (
	"context"
	"errors"
	"fmt"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/fifo"
	"trade-ledger/internal/money"
	"trade-ledger/internal/storage"
	"trade-ledger/internal/symbols"
)

// PortfolioMetrics computes the read-side projection: open-position cost
// basis from remaining FIFO lots, mark-to-market value from latest known
// prices, realized P&L and fee totals. Never mutates state. An uninitialized
// account returns Initialized=false, not an error.
func (s *Service) PortfolioMetrics(ctx context.Context, prices storage.PriceStore, userID string, mode domain.Mode) (*domain.PortfolioMetrics, error) {
	acct, err := s.capital.Get(ctx, userID, mode)
	if errors.Is(err, storage.ErrNotFound) {
		return &domain.PortfolioMetrics{Initialized: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load capital account: %w", err)
	}

	trades, err := s.trades.GetByUserMode(ctx, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	bySymbol := make(map[string][]*domain.Trade)
	var realized, totalFees float64
	for _, t := range trades {
		sym := symbols.Normalize(t.Symbol)
		bySymbol[sym] = append(bySymbol[sym], t)

		// A settled sell carries settlement-computed legs; those supersede
		// any intake fee figure on the same row.
		if t.TradeType == domain.TradeTypeSell && t.Settled() {
			totalFees += t.BuyFees + t.SellFees
		} else {
			totalFees += t.Fees
		}
		if t.TradeType == domain.TradeTypeSell && t.RealizedPnL != nil {
			realized += *t.RealizedPnL
		}
	}

	// Remaining open lots per symbol; fee rate is irrelevant for the lot
	// remainder computation.
	openLots := make(map[string][]*domain.BuyLot, len(bySymbol))
	syms := make([]string, 0, len(bySymbol))
	for sym, group := range bySymbol {
		res := fifo.MatchHistory(group, 0)
		if len(res.OpenLots) > 0 {
			openLots[sym] = res.OpenLots
			syms = append(syms, sym)
		}
	}

	marks, err := prices.LatestBySymbol(ctx, syms)
	if err != nil {
		return nil, fmt.Errorf("load latest prices: %w", err)
	}

	var costBasis, currentValue float64
	for sym, lots := range openLots {
		mark, marked := marks[sym]
		for _, lot := range lots {
			cost := lot.RemainingAmount * lot.Price
			costBasis += cost
			if marked {
				currentValue += lot.RemainingAmount * mark
			} else {
				// No mark yet: carry the position at cost, unrealized 0.
				currentValue += cost
			}
		}
	}

	m := &domain.PortfolioMetrics{
		Initialized:     true,
		StartingCapital: money.Round2(acct.StartingCapital),
		CashBalance:     money.Round2(acct.CashBalance),
		Reserved:        money.Round2(acct.Reserved),
		Available:       money.Round2(acct.Available()),
		CostBasis:       money.Round2(costBasis),
		CurrentValue:    money.Round2(currentValue),
		UnrealizedPnL:   money.Round2(currentValue - costBasis),
		RealizedPnL:     money.Round2(realized),
		TotalFees:       money.Round2(totalFees),
	}
	m.TotalPnL = money.Round2(m.RealizedPnL + m.UnrealizedPnL)
	m.TotalPortfolioValue = money.Round2(acct.CashBalance + currentValue)
	return m, nil
}
