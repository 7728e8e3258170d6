// Package main provides a one-shot cash reconciliation: recompute the
// expected cash balance from the trade history and optionally apply the
// correction. Real mode requires the explicit --unlock-real flag.
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

	"trade-ledger/internal/capital"
	"trade-ledger/internal/domain"
	"trade-ledger/internal/events"
	pgstore "trade-ledger/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	userID := flag.String("user", "", "User to reconcile (required)")
	mode := flag.String("mode", string(domain.ModeTest), "Capital mode: test or real")
	apply := flag.Bool("apply", false, "Apply the correction (default: report only)")
	unlockReal := flag.Bool("unlock-real", false, "Operator unlock for real-mode reconciliation")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	outputJSON := flag.Bool("json", false, "Output the report as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[reconcile] ", log.LstdFlags)

	if *userID == "" {
		logger.Fatal("--user is required")
	}
	if !domain.Mode(*mode).Valid() {
		logger.Fatalf("Invalid mode: %s. Must be test or real", *mode)
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
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

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	service := capital.NewService(
		pgstore.NewCapitalStore(pool),
		pgstore.NewTradeStore(pool),
		events.NewLogEmitter(log.New(os.Stderr, "[events] ", log.LstdFlags)),
		logger,
	)

	rep, err := service.Reconcile(ctx, *userID, domain.Mode(*mode), *apply, *unlockReal)
	if err != nil {
		logger.Fatalf("reconciliation failed: %v", err)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Println(string(output))
		return
	}
	printReport(rep)
}

// printReport prints a human-readable reconciliation report.
func printReport(rep *capital.Reconciliation) {
	fmt.Println("=== Reconciliation Report ===")
	fmt.Printf("User:                %s (%s)\n", rep.UserID, rep.Mode)
	fmt.Printf("Starting capital:    %.2f\n", rep.StartingCapital)
	fmt.Printf("Total buy cost:      %.2f\n", rep.TotalBuyCost)
	fmt.Printf("Total sell proceeds: %.2f\n", rep.TotalSellProceeds)
	fmt.Printf("Expected cash:       %.2f\n", rep.ExpectedCash)
	fmt.Printf("Stored cash:         %.2f\n", rep.PreviousCash)
	fmt.Printf("Correction:          %+.2f\n", rep.Correction)
	if rep.Applied {
		fmt.Println("Correction applied.")
	} else if rep.Correction != 0 {
		fmt.Println("Correction NOT applied (re-run with --apply).")
	} else {
		fmt.Println("Cash balance is consistent.")
	}
}
