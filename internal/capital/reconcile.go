package capital

import (
	"context"
	"fmt"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/events"
	"trade-ledger/internal/money"
)

// Reconciliation is the cash-recalculation report. Correction is the delta
// applied to (or, for a dry run, the delta that would be applied to) the
// stored cash balance.
type Reconciliation struct {
	UserID            string      `json:"user_id"`
	Mode              domain.Mode `json:"mode"`
	StartingCapital   float64     `json:"starting_capital"`
	TotalBuyCost      float64     `json:"total_buy_cost"`
	TotalSellProceeds float64     `json:"total_sell_proceeds"`
	ExpectedCash      float64     `json:"expected_cash"`
	PreviousCash      float64     `json:"previous_cash"`
	Correction        float64     `json:"correction"`
	Applied           bool        `json:"applied"`
}

// Reconcile recomputes the cash balance from the non-corrupted trade history
// (starting_capital - sum of buy costs and fees + sum of net sell proceeds)
// and, when apply is set, corrects the stored balance under the account
// lock. Real mode requires the explicit operator unlock.
func (s *Service) Reconcile(ctx context.Context, userID string, mode domain.Mode, apply, unlockReal bool) (*Reconciliation, error) {
	if mode == domain.ModeReal && !unlockReal {
		return nil, ErrRealModeLocked
	}

	acct, err := s.capital.Get(ctx, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("load capital account: %w", err)
	}

	trades, err := s.trades.GetByUserMode(ctx, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	var buyCost, sellProceeds float64
	for _, t := range trades {
		switch t.TradeType {
		case domain.TradeTypeBuy:
			buyCost += t.TotalValue + t.Fees
		case domain.TradeTypeSell:
			sellProceeds += t.TotalValue - t.Fees
		}
	}

	expected := money.Round2(acct.StartingCapital - buyCost + sellProceeds)
	rep := &Reconciliation{
		UserID:            userID,
		Mode:              mode,
		StartingCapital:   acct.StartingCapital,
		TotalBuyCost:      money.Round2(buyCost),
		TotalSellProceeds: money.Round2(sellProceeds),
		ExpectedCash:      expected,
		PreviousCash:      money.Round2(acct.CashBalance),
		Correction:        money.Round2(expected - acct.CashBalance),
	}

	if !apply || rep.Correction == 0 {
		return rep, nil
	}

	err = s.capital.WithAccountLock(ctx, userID, mode, func(a *domain.CapitalAccount) error {
		// Recompute the correction against the locked row: the balance may
		// have moved since the unlocked read above.
		rep.PreviousCash = money.Round2(a.CashBalance)
		rep.Correction = money.Round2(expected - a.CashBalance)
		a.CashBalance = expected
		a.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply cash correction: %w", err)
	}
	rep.Applied = true

	s.logger.Printf("cash corrected: user=%s mode=%s delta=%.2f", userID, mode, rep.Correction)
	s.emitter.Emit(ctx, events.Event{
		Type: events.TypeCashCorrected, UserID: userID, Mode: mode, Amount: rep.Correction,
	})
	return rep, nil
}
