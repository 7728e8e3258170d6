package domain

// CapitalAccount is the per-user, per-mode cash ledger. Reserved tracks
// committed-but-unsettled amounts; Available() is the only quantity that may
// authorize new reservations.
type CapitalAccount struct {
	UserID          string
	Mode            Mode
	StartingCapital float64
	CashBalance     float64
	Reserved        float64
	CreatedAt       int64 // Unix timestamp (ms)
	UpdatedAt       int64 // Unix timestamp (ms)
}

// Available is the cash not committed to open reservations.
func (a *CapitalAccount) Available() float64 {
	return a.CashBalance - a.Reserved
}

// PortfolioMetrics is the read-side projection over a capital account and its
// trade history. All monetary fields are rounded to 2 decimals.
type PortfolioMetrics struct {
	Initialized bool `json:"initialized"`

	StartingCapital     float64 `json:"starting_capital"`
	CashBalance         float64 `json:"cash_balance"`
	Reserved            float64 `json:"reserved"`
	Available           float64 `json:"available"`
	CostBasis           float64 `json:"cost_basis"`
	CurrentValue        float64 `json:"current_value"`
	UnrealizedPnL       float64 `json:"unrealized_pnl"`
	RealizedPnL         float64 `json:"realized_pnl"`
	TotalPnL            float64 `json:"total_pnl"`
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
	TotalFees           float64 `json:"total_fees"`
}
