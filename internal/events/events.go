// Package events carries audit/notification events emitted after successful
// state transitions. Emission is fire-and-forget: the core's correctness
// never depends on delivery.
package events

import (
	"context"
	"log"

	"trade-ledger/internal/domain"
)

// Type identifies an audit event.
type Type string

const (
	TypeCapitalReserved    Type = "capital_reserved"
	TypeCapitalReleased    Type = "capital_released"
	TypeReleaseClamped     Type = "release_clamped"
	TypeBuySettled         Type = "buy_settled"
	TypeSellSettled        Type = "sell_settled"
	TypeCapitalReset       Type = "capital_reset"
	TypeCashCorrected      Type = "cash_corrected"
	TypeTradeSettled       Type = "trade_settled"
	TypeExecutionConfirmed Type = "execution_confirmed"
	TypeExecutionReverted  Type = "execution_reverted"
)

// Event is one audit record.
type Event struct {
	Type    Type
	UserID  string
	Mode    domain.Mode
	TradeID string
	Amount  float64
	Detail  string
}

// Emitter delivers events to an external notifier.
type Emitter interface {
	// Emit never blocks the caller on delivery and never reports failure.
	Emit(ctx context.Context, e Event)
}

// LogEmitter writes events to a logger.
type LogEmitter struct {
	logger *log.Logger
}

// NewLogEmitter creates a logger-backed emitter.
func NewLogEmitter(logger *log.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Compile-time interface check.
var _ Emitter = (*LogEmitter)(nil)

// Emit logs the event.
func (l *LogEmitter) Emit(_ context.Context, e Event) {
	l.logger.Printf("event=%s user=%s mode=%s trade=%s amount=%.8f %s",
		e.Type, e.UserID, e.Mode, e.TradeID, e.Amount, e.Detail)
}

// NopEmitter discards all events. Useful in tests.
type NopEmitter struct{}

// Emit does nothing.
func (NopEmitter) Emit(context.Context, Event) {}
