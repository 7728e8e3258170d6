package stub

import (
	"context"
	"math/big"

	"trade-ledger/internal/ethereum"
)

// Client implements ethereum.ReceiptClient for testing. A tx hash with no
// receipt and no error reads as pending, matching the live client contract.
type Client struct {
	Receipts map[string]*ethereum.Receipt
	Errors   map[string]error
	Balances map[string]*big.Int
	Block    uint64
}

// NewClient creates a new stub receipt client.
func NewClient() *Client {
	return &Client{
		Receipts: make(map[string]*ethereum.Receipt),
		Errors:   make(map[string]error),
		Balances: make(map[string]*big.Int),
	}
}

// Compile-time interface check.
var _ ethereum.ReceiptClient = (*Client)(nil)

// TransactionReceipt retrieves a receipt from the stub store. Returns
// (nil, nil) when no receipt and no error is registered for the hash.
func (c *Client) TransactionReceipt(_ context.Context, txHash string) (*ethereum.Receipt, error) {
	if err, ok := c.Errors[txHash]; ok {
		return nil, err
	}
	receipt, ok := c.Receipts[txHash]
	if !ok {
		return nil, nil
	}
	return receipt, nil
}

// BlockNumber returns the configured latest block number.
func (c *Client) BlockNumber(_ context.Context) (uint64, error) {
	return c.Block, nil
}

// Balance retrieves a balance from the stub store.
func (c *Client) Balance(_ context.Context, address string) (*big.Int, error) {
	bal, ok := c.Balances[address]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// AddReceipt adds a receipt to the stub store.
func (c *Client) AddReceipt(receipt *ethereum.Receipt) {
	c.Receipts[receipt.TxHash] = receipt
}

// AddError registers an RPC error for a transaction hash.
func (c *Client) AddError(txHash string, err error) {
	c.Errors[txHash] = err
}

// SetBalance sets the balance for an address.
func (c *Client) SetBalance(address string, wei *big.Int) {
	c.Balances[address] = wei
}
