package domain

import "errors"

// Intake validation errors.
var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidMode      = errors.New("invalid mode")
	ErrInvalidTradeType = errors.New("invalid trade type")
	ErrNegativeValue    = errors.New("negative amount, price or value")
	ErrValueMismatch    = errors.New("total_value does not match amount * price")
)
