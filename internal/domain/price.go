package domain

// PricePoint is one mark from the external price feed. Used only for
// mark-to-market projection, never for settlement economics.
type PricePoint struct {
	Symbol      string // normalized BASE-QUOTE pair
	Price       float64
	TimestampMs int64
}
