package receipt

import "errors"

var (
	// ErrNoLogs indicates the receipt carried no log entries at all.
	ErrNoLogs = errors.New("receipt has no logs")

	// ErrNoTransferEvents indicates no ERC-20 Transfer event was found.
	ErrNoTransferEvents = errors.New("no transfer events in receipt")

	// ErrAmbiguousTransfers indicates the transfers could not be resolved
	// into a token/value pair.
	ErrAmbiguousTransfers = errors.New("transfers do not resolve to a token/value pair")

	// ErrZeroAmount indicates a resolved leg carried a zero amount.
	ErrZeroAmount = errors.New("resolved transfer leg has zero amount")
)
