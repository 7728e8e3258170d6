package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/ethereum"
	"trade-ledger/internal/storage"
)

// Default poller configuration.
const (
	DefaultConcurrency    = 8
	DefaultReceiptTimeout = 10 * time.Second
)

// PollResult is the per-trade outcome of one poll cycle.
type PollResult struct {
	TradeID string `json:"trade_id"`
	TxHash  string `json:"tx_hash"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// PollReport summarizes one poll cycle.
type PollReport struct {
	Polled  int          `json:"polled"`
	Results []PollResult `json:"results"`
}

// Poller fetches receipts for pending executions and feeds them through
// the state machine. Trades in a batch are polled concurrently; each
// trade's finalization is independent, so the only coordination is the
// bounded worker count.
type Poller struct {
	machine     *StateMachine
	executions  storage.ExecutionStore
	client      ethereum.ReceiptClient
	concurrency int
	timeout     time.Duration
	logger      *log.Logger
}

// NewPoller creates a poller. Non-positive concurrency or timeout fall
// back to the defaults.
func NewPoller(machine *StateMachine, executions storage.ExecutionStore, client ethereum.ReceiptClient, concurrency int, timeout time.Duration, logger *log.Logger) *Poller {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	return &Poller{
		machine:     machine,
		executions:  executions,
		client:      client,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

// Poll processes one execution when tradeID is set, otherwise every
// record still in SUBMITTED state.
func (p *Poller) Poll(ctx context.Context, tradeID string) (*PollReport, error) {
	var records []*domain.ExecutionRecord
	if tradeID != "" {
		rec, err := p.executions.GetByTradeID(ctx, tradeID)
		if err != nil {
			return nil, fmt.Errorf("load execution %s: %w", tradeID, err)
		}
		records = append(records, rec)
	} else {
		pending, err := p.executions.ListPending(ctx)
		if err != nil {
			return nil, fmt.Errorf("list pending executions: %w", err)
		}
		records = pending
	}

	results := make([]PollResult, len(records))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.pollOne(ctx, rec)
		}()
	}
	wg.Wait()

	return &PollReport{Polled: len(records), Results: results}, nil
}

// pollOne fetches and applies the receipt for a single execution.
// Infrastructure errors are reported in the result and leave the record
// SUBMITTED for the next cycle.
func (p *Poller) pollOne(ctx context.Context, rec *domain.ExecutionRecord) PollResult {
	result := PollResult{TradeID: rec.TradeID, TxHash: rec.TxHash}

	if rec.Finalized() {
		result.Status = terminalStatus(rec.ExecutionStatus)
		return result
	}
	if rec.TxHash == "" {
		result.Status = StatusValidationFailed
		result.Detail = "missing tx hash"
		return result
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	rcpt, err := p.client.TransactionReceipt(fetchCtx, rec.TxHash)
	cancel()
	if err != nil {
		p.logger.Printf("receipt fetch trade=%s tx=%s: %v", rec.TradeID, rec.TxHash, err)
		result.Status = StatusValidationFailed
		result.Detail = err.Error()
		return result
	}

	status, err := p.machine.Apply(ctx, rec, rcpt)
	if err != nil {
		p.logger.Printf("apply receipt trade=%s tx=%s: %v", rec.TradeID, rec.TxHash, err)
		result.Status = StatusValidationFailed
		result.Detail = err.Error()
		return result
	}
	result.Status = status
	return result
}
