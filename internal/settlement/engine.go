// Package settlement applies FIFO match results to persistent SELL rows as
// an idempotent backfill: only sells with a null snapshot are touched, and
// the store-level write guard makes concurrent runs safe.
package settlement

import (
	"context"
	"fmt"
	"log"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/events"
	"trade-ledger/internal/fees"
	"trade-ledger/internal/fifo"
	"trade-ledger/internal/storage"
	"trade-ledger/internal/symbols"
)

// Scope selects which users a settlement run covers.
type Scope string

const (
	ScopeAllUsers   Scope = "all_users"
	ScopeSingleUser Scope = "single_user"
)

// sampleLimit caps the per-run report sample.
const sampleLimit = 10

// Request describes one settlement run.
type Request struct {
	Scope  Scope
	UserID string // required for ScopeSingleUser
	Mode   domain.Mode
	DryRun bool
}

// SampleEntry is one settled sell in the report sample.
type SampleEntry struct {
	TradeID        string  `json:"trade_id"`
	UserID         string  `json:"user_id"`
	Symbol         string  `json:"symbol"`
	PurchaseValue  float64 `json:"original_purchase_value"`
	ExitValue      float64 `json:"exit_value"`
	RealizedPnL    float64 `json:"realized_pnl"`
	RealizedPnLPct float64 `json:"realized_pnl_pct"`
	Partial        bool    `json:"partial"`
}

// Report summarizes a settlement run. Partial success is the normal outcome:
// problem records are counted and skipped, never abort the run.
type Report struct {
	Total          int           `json:"total"`
	Updated        int           `json:"updated"`
	SkippedOrphans int           `json:"skipped_orphans"`
	SkippedSettled int           `json:"skipped_settled"` // write-guard hits by racing runs
	PartialMatches int           `json:"partial_matches"`
	DryRun         bool          `json:"dry_run"`
	Sample         []SampleEntry `json:"sample"`
}

// TierResolver maps a user to a fee tier.
type TierResolver interface {
	Tier(ctx context.Context, userID string) fees.Tier
}

// StaticTier resolves every user to one tier.
type StaticTier fees.Tier

// Tier returns the fixed tier.
func (t StaticTier) Tier(context.Context, string) fees.Tier { return fees.Tier(t) }

// Engine runs settlement backfills.
type Engine struct {
	trades  storage.TradeStore
	fees    *fees.Schedule
	tiers   TierResolver
	emitter events.Emitter
	logger  *log.Logger
}

// NewEngine creates a settlement engine.
func NewEngine(trades storage.TradeStore, schedule *fees.Schedule, tiers TierResolver, emitter events.Emitter, logger *log.Logger) *Engine {
	return &Engine{
		trades:  trades,
		fees:    schedule,
		tiers:   tiers,
		emitter: emitter,
		logger:  logger,
	}
}

// Settle runs one settlement pass. Running it twice over the same trade set
// yields Updated = 0 on the second run.
func (e *Engine) Settle(ctx context.Context, req Request) (*Report, error) {
	users, err := e.resolveUsers(ctx, req)
	if err != nil {
		return nil, err
	}

	rep := &Report{DryRun: req.DryRun}
	for _, userID := range users {
		if err := e.settleUser(ctx, userID, req, rep); err != nil {
			return nil, fmt.Errorf("settle user %s: %w", userID, err)
		}
	}

	e.logger.Printf("settlement run: mode=%s dry_run=%v total=%d updated=%d orphans=%d",
		req.Mode, req.DryRun, rep.Total, rep.Updated, rep.SkippedOrphans)
	return rep, nil
}

func (e *Engine) resolveUsers(ctx context.Context, req Request) ([]string, error) {
	switch req.Scope {
	case ScopeSingleUser:
		if req.UserID == "" {
			return nil, fmt.Errorf("%w: single_user scope requires a user id", storage.ErrInvalidInput)
		}
		return []string{req.UserID}, nil
	case ScopeAllUsers:
		users, err := e.trades.UnsettledSellUsers(ctx, req.Mode)
		if err != nil {
			return nil, fmt.Errorf("list users with unsettled sells: %w", err)
		}
		return users, nil
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", storage.ErrInvalidInput, req.Scope)
	}
}

// settleUser matches the user's full history per symbol and applies
// snapshots to the still-unsettled sells.
func (e *Engine) settleUser(ctx context.Context, userID string, req Request, rep *Report) error {
	history, err := e.trades.GetByUserMode(ctx, userID, req.Mode)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	byID := make(map[string]*domain.Trade, len(history))
	bySymbol := make(map[string][]*domain.Trade)
	for _, t := range history {
		byID[t.ID] = t
		sym := symbols.Normalize(t.Symbol)
		bySymbol[sym] = append(bySymbol[sym], t)
	}

	rate := e.fees.Rate(e.tiers.Tier(ctx, userID))

	for sym, group := range bySymbol {
		// The full group is matched, settled sells included: earlier settled
		// sells must consume their lots so later ones match correctly.
		res := fifo.MatchHistory(group, rate)

		for _, out := range res.Outcomes {
			sell := byID[out.SellTradeID]
			if sell == nil || sell.Settled() {
				continue
			}
			rep.Total++

			if out.Snapshot == nil {
				rep.SkippedOrphans++
				continue
			}
			if out.Partial {
				rep.PartialMatches++
			}

			if !req.DryRun {
				applied, err := e.trades.ApplySellSnapshot(ctx, sell.ID, out.Snapshot)
				if err != nil {
					return fmt.Errorf("apply snapshot to %s: %w", sell.ID, err)
				}
				if !applied {
					// A racing run settled this sell first. Success-no-op.
					rep.SkippedSettled++
					continue
				}
				e.emitter.Emit(ctx, events.Event{
					Type: events.TypeTradeSettled, UserID: userID, Mode: req.Mode,
					TradeID: sell.ID, Amount: out.Snapshot.RealizedPnL,
				})
			}

			rep.Updated++
			if len(rep.Sample) < sampleLimit {
				rep.Sample = append(rep.Sample, SampleEntry{
					TradeID:        sell.ID,
					UserID:         userID,
					Symbol:         sym,
					PurchaseValue:  out.Snapshot.OriginalPurchaseValue,
					ExitValue:      out.Snapshot.ExitValue,
					RealizedPnL:    out.Snapshot.RealizedPnL,
					RealizedPnLPct: out.Snapshot.RealizedPnLPct,
					Partial:        out.Partial,
				})
			}
		}
	}
	return nil
}
