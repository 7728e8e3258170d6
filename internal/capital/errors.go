package capital

import "errors"

// Capital operation failures.
var (
	// ErrInsufficientAvailable rejects a reservation that exceeds
	// cash_balance - reserved.
	ErrInsufficientAvailable = errors.New("insufficient available capital")

	// ErrInsufficientCash rejects a buy settlement that exceeds the cash
	// balance.
	ErrInsufficientCash = errors.New("insufficient cash balance")

	// ErrRealModeReset rejects any programmatic reset of real capital.
	// There is no override: real financial state has no reset path.
	ErrRealModeReset = errors.New("real capital cannot be reset")

	// ErrRealModeLocked rejects a real-mode reconciliation without the
	// explicit operator unlock.
	ErrRealModeLocked = errors.New("real mode reconciliation requires operator unlock")

	// ErrInvalidAmount rejects non-positive operation amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)
