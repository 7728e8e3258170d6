package domain

// BuyLot is the unconsumed remainder of a BUY trade during FIFO matching.
// Lots are ordered by ExecutedAt ASC (insertion order breaks ties) and
// RemainingAmount only ever decreases, never below zero.
type BuyLot struct {
	SourceTradeID   string
	Symbol          string
	TotalAmount     float64
	RemainingAmount float64
	Price           float64
	TotalValue      float64
	ExecutedAt      int64 // Unix timestamp (ms)
}

// Exhausted reports whether the lot has no quantity left to match.
func (l *BuyLot) Exhausted() bool {
	return l.RemainingAmount <= 0
}

// Allocation is one BUY lot's contribution to a single SELL's matching pass.
type Allocation struct {
	LotID           string  // source BUY trade id
	MatchedAmount   float64 // quantity consumed from the lot
	BuyPrice        float64
	BuyValuePortion float64 // MatchedAmount * BuyPrice
}

// SaleSnapshot is the write-once economics attached to a settled SELL.
type SaleSnapshot struct {
	OriginalTradeID        string // oldest contributing BUY
	OriginalPurchaseAmount float64
	OriginalPurchasePrice  float64
	OriginalPurchaseValue  float64
	ExitValue              float64
	BuyFees                float64
	SellFees               float64
	RealizedPnL            float64
	RealizedPnLPct         float64
}
