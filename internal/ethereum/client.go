// Package ethereum provides the JSON-RPC client used to fetch transaction
// receipts and balances from an Ethereum-compatible node.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// ReceiptClient defines the RPC surface the execution poller needs.
type ReceiptClient interface {
	// TransactionReceipt retrieves the receipt for a transaction hash.
	// Returns (nil, nil) while the transaction is not yet mined: pending is
	// not an error.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// BlockNumber retrieves the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// Balance retrieves the wei balance of an address at the latest block.
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// Receipt status values.
const (
	ReceiptStatusFailed  uint64 = 0
	ReceiptStatusSuccess uint64 = 1
)

// Receipt is a mined transaction's outcome.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
	Logs        []Log
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccess
}

// Log is one event log entry from a receipt.
type Log struct {
	Address string   // emitting contract, 0x-prefixed hex
	Topics  []string // indexed fields; Topics[0] is the event signature
	Data    string   // unindexed fields, 0x-prefixed hex
}

// HexToUint64 parses a 0x-prefixed hex quantity.
func HexToUint64(s string) (uint64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("hex quantity %q overflows uint64", s)
	}
	return v.Uint64(), nil
}

// HexToBig parses a 0x-prefixed hex quantity of arbitrary size.
func HexToBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
