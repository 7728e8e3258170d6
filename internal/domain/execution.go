package domain

// ExecutionStatus is the lifecycle state of an on-chain trade execution.
// The only transitions are SUBMITTED -> CONFIRMED and SUBMITTED -> REVERTED,
// both driven by a successfully fetched transaction receipt.
type ExecutionStatus string

const (
	ExecutionSubmitted ExecutionStatus = "SUBMITTED"
	ExecutionConfirmed ExecutionStatus = "CONFIRMED"
	ExecutionReverted  ExecutionStatus = "REVERTED"
)

// ExecutionRecord tracks one submitted on-chain trade through confirmation.
type ExecutionRecord struct {
	TradeID         string
	TxHash          string
	UserID          string
	Mode            Mode
	Symbol          string
	Side            TradeType
	ExecutionStatus ExecutionStatus

	// Receipt-derived fields, zero until finalized.
	ReceiptStatus uint64
	BlockNumber   uint64
	GasUsed       uint64
	DecodeMethod  string

	// IsSystemOperator is fixed at creation: true attributes the confirmed
	// trade to an unattributed system operation (StrategyID nil), false to a
	// user-owned strategy. Never re-derived after the fact.
	IsSystemOperator bool
	StrategyID       *string

	SubmittedAt int64 // Unix timestamp (ms)
	FinalizedAt int64 // Unix timestamp (ms), zero while SUBMITTED
}

// ExecutionResult carries the receipt-derived outcome applied when a record
// leaves the SUBMITTED state.
type ExecutionResult struct {
	Status        ExecutionStatus // CONFIRMED or REVERTED
	ReceiptStatus uint64
	BlockNumber   uint64
	GasUsed       uint64
	DecodeMethod  string
	FinalizedAt   int64 // Unix timestamp (ms)
}

// Finalized reports whether the record left the SUBMITTED state.
func (r *ExecutionRecord) Finalized() bool {
	return r.ExecutionStatus != ExecutionSubmitted
}
