package receipt

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/ethereum"
	"trade-ledger/internal/money"
	"trade-ledger/internal/symbols"
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Decode methods, recorded on the execution for auditability.
const (
	// MethodTransferPair is the primary path: one stablecoin leg plus
	// one token leg.
	MethodTransferPair = "erc20_transfer_pair"
	// MethodFirstPair is the lower-confidence fallback: the first two
	// transfers taken as a naive token/value pair.
	MethodFirstPair = "first_transfer_pair"
)

// TokenInfo describes a known ERC-20 contract.
type TokenInfo struct {
	Symbol     string
	Decimals   int32
	Stablecoin bool
}

// DefaultRegistry maps lowercase mainnet contract addresses to token info.
func DefaultRegistry() map[string]TokenInfo {
	return map[string]TokenInfo{
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {Symbol: "USDC", Decimals: 6, Stablecoin: true},
		"0xdac17f958d2ee523a2206206994597c13d831ec7": {Symbol: "USDT", Decimals: 6, Stablecoin: true},
		"0x6b175474e89094c44da98b954eedeac495271d0f": {Symbol: "DAI", Decimals: 18, Stablecoin: true},
		"0x1abaea1f7c830bd89acc67ec4af516284b1bc33c": {Symbol: "EURC", Decimals: 6, Stablecoin: true},
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {Symbol: "WETH", Decimals: 18},
		"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": {Symbol: "WBTC", Decimals: 8},
	}
}

// defaultDecimals is assumed for contracts not in the registry.
const defaultDecimals = 18

// Result is a successful decode: the authoritative filled amount, price
// and value for a real trade, sourced only from on-chain transfer logs.
type Result struct {
	FilledAmount  float64
	ExecutedPrice float64
	TotalValue    float64
	Method        string
}

// Decoder extracts trade economics from ERC-20 Transfer events in a
// transaction receipt. It fails closed: any receipt that does not resolve
// to an unambiguous token/value pair returns an error, and the caller
// must not write ledger economics for it.
type Decoder struct {
	registry map[string]TokenInfo
}

// NewDecoder creates a decoder with the given token registry. A nil
// registry uses DefaultRegistry.
func NewDecoder(registry map[string]TokenInfo) *Decoder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Decoder{registry: registry}
}

// transfer is a parsed ERC-20 Transfer event.
type transfer struct {
	token  string
	info   TokenInfo
	known  bool
	amount decimal.Decimal
}

// Decode resolves the receipt's transfer logs into filled amount, executed
// price and total value for the given trade. The side parameter is accepted
// for symmetry with the caller's contract; economics are direction-agnostic.
func (d *Decoder) Decode(rcpt *ethereum.Receipt, symbol string, side domain.TradeType) (*Result, error) {
	_ = side

	if len(rcpt.Logs) == 0 {
		return nil, ErrNoLogs
	}

	transfers := d.extractTransfers(rcpt.Logs)
	if len(transfers) == 0 {
		return nil, ErrNoTransferEvents
	}

	// Primary path: one stablecoin leg, one token leg
	if stable, token, ok := d.splitLegs(transfers, symbol); ok {
		return buildResult(token, stable, MethodTransferPair)
	}

	// Fallback: no stablecoin leg but at least two transfers
	if len(transfers) >= 2 {
		return buildResult(transfers[0], transfers[1], MethodFirstPair)
	}

	return nil, ErrAmbiguousTransfers
}

// extractTransfers parses Transfer events from receipt logs. Anonymous or
// malformed entries are skipped.
func (d *Decoder) extractTransfers(logs []ethereum.Log) []transfer {
	var out []transfer
	for _, l := range logs {
		if len(l.Topics) < 3 || !strings.EqualFold(l.Topics[0], transferTopic) {
			continue
		}
		raw, err := ethereum.HexToBig(l.Data)
		if err != nil {
			continue
		}

		addr := strings.ToLower(l.Address)
		info, known := d.registry[addr]
		dec := info.Decimals
		if !known {
			dec = defaultDecimals
		}

		out = append(out, transfer{
			token:  addr,
			info:   info,
			known:  known,
			amount: scale(raw, dec),
		})
	}
	return out
}

// splitLegs finds one stablecoin transfer and one token transfer. When
// several token legs exist, the one matching the trade symbol's base is
// preferred; otherwise the first non-stablecoin transfer wins.
func (d *Decoder) splitLegs(transfers []transfer, symbol string) (stable, token transfer, ok bool) {
	base := symbols.Base(symbols.Normalize(symbol))

	var haveStable, haveToken bool
	for _, t := range transfers {
		if t.known && t.info.Stablecoin {
			if !haveStable {
				stable = t
				haveStable = true
			}
			continue
		}
		if t.known && t.info.Symbol == base {
			token = t
			haveToken = true
			continue
		}
		if !haveToken {
			token = t
			haveToken = true
		}
	}
	return stable, token, haveStable && haveToken
}

// buildResult derives the economics triple from a token leg and a value
// leg. Zero amounts fail closed.
func buildResult(token, value transfer, method string) (*Result, error) {
	filled := money.Round8(token.amount.InexactFloat64())
	total := money.Round2(value.amount.InexactFloat64())
	if filled <= 0 || total <= 0 {
		return nil, ErrZeroAmount
	}

	return &Result{
		FilledAmount:  filled,
		ExecutedPrice: money.Round6(total / filled),
		TotalValue:    total,
		Method:        method,
	}, nil
}

// scale converts a raw uint256 amount into token units.
func scale(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}
