package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/ethereum"
	"trade-ledger/internal/events"
	"trade-ledger/internal/fees"
	"trade-ledger/internal/money"
	"trade-ledger/internal/receipt"
	"trade-ledger/internal/settlement"
	"trade-ledger/internal/storage"
)

// Poll result statuses.
const (
	StatusPending          = "pending"
	StatusMined            = "mined"
	StatusFailed           = "failed"
	StatusValidationFailed = "validation_failed"
	StatusDecodeFailed     = "decode_failed"
)

// StateMachine drives execution records through their only legal
// transitions, SUBMITTED to CONFIRMED or SUBMITTED to REVERTED, using
// fetched receipts as the sole input. Finalization is guarded at the
// store so a record transitions at most once no matter how many pollers
// observe the same receipt.
type StateMachine struct {
	executions storage.ExecutionStore
	trades     storage.TradeStore
	decoder    *receipt.Decoder
	schedule   *fees.Schedule
	tiers      settlement.TierResolver
	emitter    events.Emitter
	logger     *log.Logger
	now        func() int64
}

// NewStateMachine creates a state machine over the given stores.
func NewStateMachine(executions storage.ExecutionStore, trades storage.TradeStore, decoder *receipt.Decoder, schedule *fees.Schedule, tiers settlement.TierResolver, emitter events.Emitter, logger *log.Logger) *StateMachine {
	return &StateMachine{
		executions: executions,
		trades:     trades,
		decoder:    decoder,
		schedule:   schedule,
		tiers:      tiers,
		emitter:    emitter,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Submit registers a new on-chain execution in SUBMITTED state.
func (m *StateMachine) Submit(ctx context.Context, rec *domain.ExecutionRecord) error {
	if rec.TradeID == "" || rec.TxHash == "" || rec.UserID == "" || rec.Symbol == "" {
		return domain.ErrMissingField
	}
	if !rec.Mode.Valid() {
		return domain.ErrInvalidMode
	}
	if rec.Side != domain.TradeTypeBuy && rec.Side != domain.TradeTypeSell {
		return domain.ErrInvalidTradeType
	}

	// System operations are never attributed to a user strategy
	if rec.IsSystemOperator {
		rec.StrategyID = nil
	}

	rec.ExecutionStatus = domain.ExecutionSubmitted
	if rec.SubmittedAt == 0 {
		rec.SubmittedAt = m.now()
	}
	rec.FinalizedAt = 0
	return m.executions.Insert(ctx, rec)
}

// Apply feeds one fetched receipt into the record's lifecycle. A nil
// receipt means the transaction is not yet mined. The returned status is
// one of the poll result statuses; only infrastructure failures return an
// error.
func (m *StateMachine) Apply(ctx context.Context, rec *domain.ExecutionRecord, rcpt *ethereum.Receipt) (string, error) {
	if rec.Finalized() {
		return terminalStatus(rec.ExecutionStatus), nil
	}
	if rcpt == nil {
		return StatusPending, nil
	}

	if !rcpt.Succeeded() {
		return m.revert(ctx, rec, rcpt)
	}
	return m.confirm(ctx, rec, rcpt)
}

// revert finalizes a reverted transaction: the execution keeps its gas
// cost, the ledger gets a zero-economics audit row excluded from FIFO and
// capital computations. The audit write precedes finalization: a failure
// between the two leaves the record SUBMITTED and the next poll repeats
// both writes, which are idempotent per tx hash.
func (m *StateMachine) revert(ctx context.Context, rec *domain.ExecutionRecord, rcpt *ethereum.Receipt) (string, error) {
	if err := m.writeRevertAudit(ctx, rec); err != nil {
		return "", err
	}

	res := &domain.ExecutionResult{
		Status:        domain.ExecutionReverted,
		ReceiptStatus: rcpt.Status,
		BlockNumber:   rcpt.BlockNumber,
		GasUsed:       rcpt.GasUsed,
		FinalizedAt:   m.now(),
	}

	updated, err := m.executions.Finalize(ctx, rec.TradeID, res)
	if err != nil {
		return "", fmt.Errorf("finalize reverted %s: %w", rec.TradeID, err)
	}
	if !updated {
		// Lost the race to another poller
		return StatusFailed, nil
	}

	m.logger.Printf("execution reverted trade=%s tx=%s block=%d gas=%d",
		rec.TradeID, rec.TxHash, rcpt.BlockNumber, rcpt.GasUsed)
	m.emitter.Emit(ctx, events.Event{
		Type:    events.TypeExecutionReverted,
		UserID:  rec.UserID,
		Mode:    rec.Mode,
		TradeID: rec.TradeID,
		Detail:  fmt.Sprintf("tx=%s gas=%d", rec.TxHash, rcpt.GasUsed),
	})
	return StatusFailed, nil
}

// writeRevertAudit zeroes the placeholder trade for the tx, or inserts a
// fresh corrupted row when no placeholder exists. Either way the row never
// enters FIFO or capital math.
func (m *StateMachine) writeRevertAudit(ctx context.Context, rec *domain.ExecutionRecord) error {
	t, err := m.trades.GetByTxHash(ctx, rec.TxHash)
	switch {
	case err == nil:
		if _, err := m.trades.UpdateEconomics(ctx, t.ID, 0, 0, 0, 0); err != nil {
			return fmt.Errorf("zero reverted trade %s: %w", t.ID, err)
		}
		return m.trades.MarkCorrupted(ctx, t.ID)
	case errors.Is(err, storage.ErrNotFound):
		txHash := rec.TxHash
		audit := &domain.Trade{
			ID:          rec.TradeID,
			UserID:      rec.UserID,
			Mode:        rec.Mode,
			TradeType:   rec.Side,
			Symbol:      rec.Symbol,
			ExecutedAt:  m.now(),
			TxHash:      &txHash,
			StrategyID:  rec.StrategyID,
			IsCorrupted: true,
		}
		if err := m.trades.Insert(ctx, audit); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// A racing poller inserted the audit row first
				return nil
			}
			return fmt.Errorf("insert revert audit for %s: %w", rec.TradeID, err)
		}
		return nil
	default:
		return fmt.Errorf("lookup placeholder for %s: %w", rec.TxHash, err)
	}
}

// confirm decodes the successful receipt, writes the decoded economics
// to the ledger and then finalizes the record. A decode failure leaves
// the record SUBMITTED: no ledger row ever carries fabricated values.
// The ledger write precedes finalization: a failure between the two
// leaves the record SUBMITTED and the next poll repeats both writes,
// which are idempotent per tx hash.
func (m *StateMachine) confirm(ctx context.Context, rec *domain.ExecutionRecord, rcpt *ethereum.Receipt) (string, error) {
	dec, err := m.decoder.Decode(rcpt, rec.Symbol, rec.Side)
	if err != nil {
		m.logger.Printf("decode failed trade=%s tx=%s: %v", rec.TradeID, rec.TxHash, err)
		return StatusDecodeFailed, nil
	}

	feeRate := m.schedule.Rate(m.tiers.Tier(ctx, rec.UserID))
	feeAmount := money.Round2(dec.TotalValue * feeRate)

	if err := m.writeEconomics(ctx, rec, dec, feeAmount); err != nil {
		return "", err
	}

	res := &domain.ExecutionResult{
		Status:        domain.ExecutionConfirmed,
		ReceiptStatus: rcpt.Status,
		BlockNumber:   rcpt.BlockNumber,
		GasUsed:       rcpt.GasUsed,
		DecodeMethod:  dec.Method,
		FinalizedAt:   m.now(),
	}

	updated, err := m.executions.Finalize(ctx, rec.TradeID, res)
	if err != nil {
		return "", fmt.Errorf("finalize confirmed %s: %w", rec.TradeID, err)
	}
	if !updated {
		// Lost the race; the winner already holds identical economics
		return StatusMined, nil
	}

	m.logger.Printf("execution confirmed trade=%s tx=%s method=%s amount=%.8f price=%.6f value=%.2f",
		rec.TradeID, rec.TxHash, dec.Method, dec.FilledAmount, dec.ExecutedPrice, dec.TotalValue)
	m.emitter.Emit(ctx, events.Event{
		Type:    events.TypeExecutionConfirmed,
		UserID:  rec.UserID,
		Mode:    rec.Mode,
		TradeID: rec.TradeID,
		Amount:  dec.TotalValue,
		Detail:  fmt.Sprintf("tx=%s method=%s", rec.TxHash, dec.Method),
	})
	return StatusMined, nil
}

// writeEconomics overwrites the placeholder trade with decoded values, or
// inserts the ledger row when no placeholder was pre-created.
func (m *StateMachine) writeEconomics(ctx context.Context, rec *domain.ExecutionRecord, dec *receipt.Result, feeAmount float64) error {
	t, err := m.trades.GetByTxHash(ctx, rec.TxHash)
	switch {
	case err == nil:
		if _, err := m.trades.UpdateEconomics(ctx, t.ID, dec.FilledAmount, dec.ExecutedPrice, dec.TotalValue, feeAmount); err != nil {
			return fmt.Errorf("update economics %s: %w", t.ID, err)
		}
		return nil
	case errors.Is(err, storage.ErrNotFound):
		txHash := rec.TxHash
		row := &domain.Trade{
			ID:         rec.TradeID,
			UserID:     rec.UserID,
			Mode:       rec.Mode,
			TradeType:  rec.Side,
			Symbol:     rec.Symbol,
			Amount:     dec.FilledAmount,
			Price:      dec.ExecutedPrice,
			TotalValue: dec.TotalValue,
			Fees:       feeAmount,
			ExecutedAt: m.now(),
			TxHash:     &txHash,
			StrategyID: rec.StrategyID,
		}
		if err := m.trades.Insert(ctx, row); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// A racing poller inserted the row first
				return nil
			}
			return fmt.Errorf("insert confirmed trade %s: %w", rec.TradeID, err)
		}
		return nil
	default:
		return fmt.Errorf("lookup placeholder for %s: %w", rec.TxHash, err)
	}
}

// terminalStatus maps a finalized execution state to its poll status.
func terminalStatus(s domain.ExecutionStatus) string {
	if s == domain.ExecutionReverted {
		return StatusFailed
	}
	return StatusMined
}
