package domain

import "math"

// Mode isolates test capital and trades from real ones. The two modes never
// mix in any computation.
type Mode string

const (
	ModeTest Mode = "test"
	ModeReal Mode = "real"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeTest || m == ModeReal
}

// TradeType is the side of a ledger row.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// Trade is a single ledger row. SELL rows additionally carry snapshot fields
// (OriginalPurchase*, ExitValue, RealizedPnL*) once settled; the snapshot is
// write-once and either fully populated or fully nil.
type Trade struct {
	ID        string
	UserID    string
	Mode      Mode
	TradeType TradeType
	Symbol    string // normalized BASE-QUOTE pair

	Amount     float64
	Price      float64
	TotalValue float64
	Fees       float64
	BuyFees    float64
	SellFees   float64

	ExecutedAt int64 // Unix timestamp (ms)

	// On-chain attribution. Nil for off-chain (test) trades.
	TxHash     *string
	StrategyID *string

	// FIFO sale snapshot, nil until settlement.
	OriginalTradeID        *string
	OriginalPurchaseAmount *float64
	OriginalPurchasePrice  *float64
	OriginalPurchaseValue  *float64
	ExitValue              *float64
	RealizedPnL            *float64
	RealizedPnLPct         *float64

	// Corrupted rows are excluded from FIFO and capital computations.
	IsCorrupted bool
}

// totalValueTolerance bounds the accepted drift between TotalValue and
// Amount*Price at intake (rounding of upstream feeds).
const totalValueTolerance = 0.01

// Validate checks intake invariants for a new ledger row.
func (t *Trade) Validate() error {
	if t.ID == "" || t.UserID == "" || t.Symbol == "" {
		return ErrMissingField
	}
	if !t.Mode.Valid() {
		return ErrInvalidMode
	}
	if t.TradeType != TradeTypeBuy && t.TradeType != TradeTypeSell {
		return ErrInvalidTradeType
	}
	if t.Amount < 0 || t.Price < 0 || t.TotalValue < 0 {
		return ErrNegativeValue
	}
	if math.Abs(t.TotalValue-t.Amount*t.Price) > totalValueTolerance {
		return ErrValueMismatch
	}
	return nil
}

// Settled reports whether the SELL snapshot has been written.
func (t *Trade) Settled() bool {
	return t.OriginalPurchaseValue != nil
}
