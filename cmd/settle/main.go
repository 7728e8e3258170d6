// Package main provides a one-shot FIFO settlement backfill over the trade
// ledger. Safe to re-run: already settled sells are skipped by the
// write-once snapshot guard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"trade-ledger/internal/domain"
	"trade-ledger/internal/events"
	"trade-ledger/internal/fees"
	"trade-ledger/internal/settlement"
	"trade-ledger/internal/storage"
	"trade-ledger/internal/storage/memory"
	pgstore "trade-ledger/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "", "Settle a single user (default: all users with unsettled sells)")
	mode := flag.String("mode", string(domain.ModeTest), "Capital mode: test or real")
	dryRun := flag.Bool("dry-run", false, "Compute matches without writing snapshots")
	feeTier := flag.String("fee-tier", string(fees.TierStandard), "Fee tier applied to all users")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (empty ledger, useful for smoke tests)")
	outputJSON := flag.Bool("json", false, "Output the report as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[settle] ", log.LstdFlags)

	if !domain.Mode(*mode).Valid() {
		logger.Fatalf("Invalid mode: %s. Must be test or real", *mode)
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required when not using --use-memory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	var tradeStore storage.TradeStore = memory.NewTradeStore()
	if !*useMemory {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		tradeStore = pgstore.NewTradeStore(pool)
	}

	engine := settlement.NewEngine(
		tradeStore,
		fees.NewSchedule(),
		settlement.StaticTier(fees.Tier(*feeTier)),
		events.NewLogEmitter(log.New(os.Stderr, "[events] ", log.LstdFlags)),
		logger,
	)

	req := settlement.Request{
		Scope:  settlement.ScopeAllUsers,
		Mode:   domain.Mode(*mode),
		DryRun: *dryRun,
	}
	if *userID != "" {
		req.Scope = settlement.ScopeSingleUser
		req.UserID = *userID
	}

	logger.Printf("Running settlement: scope=%s user=%s mode=%s dry_run=%v",
		req.Scope, req.UserID, req.Mode, req.DryRun)

	report, err := engine.Settle(ctx, req)
	if err != nil {
		logger.Fatalf("settlement failed: %v", err)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return
	}
	printReport(report)
}

// printReport prints a human-readable settlement report.
func printReport(rep *settlement.Report) {
	fmt.Println("=== Settlement Report ===")
	if rep.DryRun {
		fmt.Println("(dry run, no snapshots written)")
	}
	fmt.Printf("Unsettled sells considered: %d\n", rep.Total)
	fmt.Printf("Settled:                    %d\n", rep.Updated)
	fmt.Printf("Orphans skipped:            %d\n", rep.SkippedOrphans)
	fmt.Printf("Settled by racing runs:     %d\n", rep.SkippedSettled)
	fmt.Printf("Partial matches:            %d\n", rep.PartialMatches)

	if len(rep.Sample) > 0 {
		fmt.Println("\nSample:")
		for _, s := range rep.Sample {
			partial := ""
			if s.Partial {
				partial = " (partial)"
			}
			fmt.Printf("  %s %s %s: cost=%.2f exit=%.2f pnl=%.2f (%.2f%%)%s\n",
				s.TradeID, s.UserID, s.Symbol,
				s.PurchaseValue, s.ExitValue, s.RealizedPnL, s.RealizedPnLPct, partial)
		}
	}
}
