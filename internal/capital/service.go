// Package capital implements the per-user, per-mode cash/reserved ledger:
// reserve, release, buy/sell settlement, test-mode reset, drift
// recalculation and the portfolio-metrics projection. Every mutation runs
// inside the store's exclusive account lock.
package capital

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/events"
	"trade-ledger/internal/storage"
)

// DefaultStartingCapital is the balance a test account is (re)initialized to.
const DefaultStartingCapital = 10000.0

// Service owns all capital account operations.
type Service struct {
	capital storage.CapitalStore
	trades  storage.TradeStore
	emitter events.Emitter
	logger  *log.Logger
	now     func() int64
}

// NewService creates a capital service.
func NewService(capital storage.CapitalStore, trades storage.TradeStore, emitter events.Emitter, logger *log.Logger) *Service {
	return &Service{
		capital: capital,
		trades:  trades,
		emitter: emitter,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Initialize creates the account row for a (user, mode) on first strategy
// activation. Idempotent: an existing row is left untouched.
func (s *Service) Initialize(ctx context.Context, userID string, mode domain.Mode, startingCapital float64) error {
	if startingCapital < 0 {
		return ErrInvalidAmount
	}
	now := s.now()
	err := s.capital.Create(ctx, &domain.CapitalAccount{
		UserID:          userID,
		Mode:            mode,
		StartingCapital: startingCapital,
		CashBalance:     startingCapital,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

// Reserve commits available capital to a pending trade. Fails with
// ErrInsufficientAvailable when the reservation exceeds cash - reserved.
func (s *Service) Reserve(ctx context.Context, userID string, mode domain.Mode, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	err := s.capital.WithAccountLock(ctx, userID, mode, func(a *domain.CapitalAccount) error {
		if a.Available() < amount {
			return ErrInsufficientAvailable
		}
		a.Reserved += amount
		a.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(ctx, events.Event{
		Type: events.TypeCapitalReserved, UserID: userID, Mode: mode, Amount: amount,
	})
	return nil
}

// Release returns reserved capital. Over-release is clamped to the reserved
// balance, not an error; clamps are logged and emitted for audit.
func (s *Service) Release(ctx context.Context, userID string, mode domain.Mode, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	var clamped float64
	err := s.capital.WithAccountLock(ctx, userID, mode, func(a *domain.CapitalAccount) error {
		release := amount
		if release > a.Reserved {
			clamped = release - a.Reserved
			release = a.Reserved
		}
		a.Reserved -= release
		a.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(ctx, events.Event{
		Type: events.TypeCapitalReleased, UserID: userID, Mode: mode, Amount: amount,
	})
	if clamped > 0 {
		s.logger.Printf("release clamped: user=%s mode=%s requested=%.2f over=%.2f", userID, mode, amount, clamped)
		s.emitter.Emit(ctx, events.Event{
			Type: events.TypeReleaseClamped, UserID: userID, Mode: mode, Amount: clamped,
		})
	}
	return nil
}

// SettleBuy debits the actual spend and releases the matching reservation.
// Fails with ErrInsufficientCash when the spend exceeds the cash balance.
func (s *Service) SettleBuy(ctx context.Context, userID string, mode domain.Mode, actualSpent, reservedToRelease float64) error {
	if actualSpent < 0 || reservedToRelease < 0 {
		return ErrInvalidAmount
	}

	err := s.capital.WithAccountLock(ctx, userID, mode, func(a *domain.CapitalAccount) error {
		if a.CashBalance < actualSpent {
			return ErrInsufficientCash
		}
		a.CashBalance -= actualSpent
		release := reservedToRelease
		if release > a.Reserved {
			release = a.Reserved
		}
		a.Reserved -= release
		a.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(ctx, events.Event{
		Type: events.TypeBuySettled, UserID: userID, Mode: mode, Amount: actualSpent,
	})
	return nil
}

// SettleSell credits sale proceeds. A sell always increases cash; there is
// no upper bound check.
func (s *Service) SettleSell(ctx context.Context, userID string, mode domain.Mode, proceeds float64) error {
	if proceeds < 0 {
		return ErrInvalidAmount
	}

	err := s.capital.WithAccountLock(ctx, userID, mode, func(a *domain.CapitalAccount) error {
		a.CashBalance += proceeds
		a.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	s.emitter.Emit(ctx, events.Event{
		Type: events.TypeSellSettled, UserID: userID, Mode: mode, Amount: proceeds,
	})
	return nil
}

// Reset deletes and reinitializes test capital to the default starting
// balance. Real capital hard-fails: no programmatic reset path exists.
func (s *Service) Reset(ctx context.Context, userID string, mode domain.Mode) error {
	if mode == domain.ModeReal {
		return ErrRealModeReset
	}
	if mode != domain.ModeTest {
		return fmt.Errorf("%w: %q", storage.ErrInvalidInput, mode)
	}

	if err := s.capital.Delete(ctx, userID, mode); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete test capital: %w", err)
	}

	now := s.now()
	if err := s.capital.Create(ctx, &domain.CapitalAccount{
		UserID:          userID,
		Mode:            mode,
		StartingCapital: DefaultStartingCapital,
		CashBalance:     DefaultStartingCapital,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		return fmt.Errorf("reinitialize test capital: %w", err)
	}

	s.emitter.Emit(ctx, events.Event{
		Type: events.TypeCapitalReset, UserID: userID, Mode: mode, Amount: DefaultStartingCapital,
	})
	return nil
}
