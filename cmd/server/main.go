// Package main provides the unified ledger service:
// - HTTP JSON API: trade intake, capital operations, settlement, portfolio
// - Receipt polling (continuous): finalizes pending on-chain executions
// - Prometheus metrics and health endpoints
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"trade-ledger/internal/capital"
	"trade-ledger/internal/domain"
	"trade-ledger/internal/ethereum"
	"trade-ledger/internal/events"
	"trade-ledger/internal/execution"
	"trade-ledger/internal/fees"
	"trade-ledger/internal/observability"
	"trade-ledger/internal/receipt"
	"trade-ledger/internal/settlement"
	"trade-ledger/internal/storage"
	chstore "trade-ledger/internal/storage/clickhouse"
	"trade-ledger/internal/storage/memory"
	"trade-ledger/internal/storage/migrations"
	pgstore "trade-ledger/internal/storage/postgres"
)

// Server holds all components of the unified service.
type Server struct {
	settlement *settlement.Engine
	capital    *capital.Service
	machine    *execution.StateMachine
	poller     *execution.Poller
	stores     *allStores
	metrics    *observability.Metrics
	logger     *log.Logger

	rpc             ethereum.ReceiptClient
	operatorAddress string

	mu           sync.Mutex
	started      time.Time
	lastPollRun  time.Time
	lastSettleAt time.Time
	pollCycles   int
}

// allStores holds all storage implementations.
type allStores struct {
	tradeStore     storage.TradeStore
	capitalStore   storage.CapitalStore
	executionStore storage.ExecutionStore
	priceStore     storage.PriceStore
}

func main() {
	// Load .env file if exists; system env vars win
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("ETH_WS_ENDPOINT"), "Ethereum WebSocket endpoint (optional, enables newHeads poll triggering)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 8, "Maximum pooled PostgreSQL connections")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	migrate := flag.Bool("migrate", false, "Apply database migrations on startup")
	listenAddr := flag.String("listen-addr", ":8080", "HTTP API listen address")
	pollInterval := flag.Duration("poll-interval", 15*time.Second, "Receipt poll interval")
	pollConcurrency := flag.Int("poll-concurrency", execution.DefaultConcurrency, "Concurrent receipt fetches per poll cycle")
	feeTier := flag.String("fee-tier", string(fees.TierStandard), "Fee tier applied to all users")
	operatorAddress := flag.String("operator-address", os.Getenv("OPERATOR_ADDRESS"), "Operator wallet address reported on /status (optional)")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *migrate, int32(*postgresMaxConns))
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")
	emitter := events.NewLogEmitter(log.New(os.Stdout, "[events] ", log.LstdFlags))
	schedule := fees.NewSchedule()
	tiers := settlement.StaticTier(fees.Tier(*feeTier))
	decoder := receipt.NewDecoder(receipt.DefaultRegistry())

	rpc := ethereum.NewHTTPClient(*rpcEndpoint)
	machine := execution.NewStateMachine(stores.executionStore, stores.tradeStore, decoder, schedule, tiers, emitter,
		log.New(os.Stdout, "[execution] ", log.LstdFlags|log.Lshortfile))
	poller := execution.NewPoller(machine, stores.executionStore, rpc, *pollConcurrency, execution.DefaultReceiptTimeout,
		log.New(os.Stdout, "[poller] ", log.LstdFlags|log.Lshortfile))

	server := &Server{
		settlement: settlement.NewEngine(stores.tradeStore, schedule, tiers, emitter,
			log.New(os.Stdout, "[settlement] ", log.LstdFlags|log.Lshortfile)),
		capital: capital.NewService(stores.capitalStore, stores.tradeStore, emitter,
			log.New(os.Stdout, "[capital] ", log.LstdFlags|log.Lshortfile)),
		machine:         machine,
		poller:          poller,
		stores:          stores,
		metrics:         metrics,
		logger:          logger,
		rpc:             rpc,
		operatorAddress: *operatorAddress,
		started:         time.Now(),
	}

	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go server.startHTTPServer(*listenAddr)

	err = server.Run(ctx, *wsEndpoint, *pollInterval)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores, optionally applying migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory, migrate bool, pgMaxConns int32) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			tradeStore:     memory.NewTradeStore(),
			capitalStore:   memory.NewCapitalStore(),
			executionStore: memory.NewExecutionStore(),
			priceStore:     memory.NewPriceStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN, pgstore.WithMaxConns(pgMaxConns))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	var chConn *chstore.Conn
	if migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, clickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		tradeStore:     pgstore.NewTradeStore(pool),
		capitalStore:   pgstore.NewCapitalStore(pool),
		executionStore: pgstore.NewExecutionStore(pool),
		priceStore:     chstore.NewPriceStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the receipt polling loop and blocks until ctx is cancelled.
// When a WebSocket endpoint is configured, new heads trigger poll cycles
// between ticks; otherwise polling is interval-only.
func (s *Server) Run(ctx context.Context, wsEndpoint string, pollInterval time.Duration) error {
	s.logger.Println("Starting unified ledger service...")

	var heads <-chan ethereum.Head
	if wsEndpoint != "" {
		sub, err := ethereum.NewHeadsSubscriber(ctx, wsEndpoint, nil)
		if err != nil {
			// Head triggering is an optimization; interval polling still covers
			// every pending execution.
			s.logger.Printf("newHeads subscription unavailable, falling back to interval polling: %v", err)
		} else {
			defer sub.Close()
			heads = sub.Heads()
			s.logger.Println("Subscribed to newHeads")
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case _, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
		}
		s.runPollCycle(ctx)
	}
}

// runPollCycle polls every pending execution once.
func (s *Server) runPollCycle(ctx context.Context) {
	report, err := s.poller.Poll(ctx, "")
	if err != nil {
		s.logger.Printf("Poll cycle error: %v", err)
		return
	}

	s.recordPollReport(ctx, report)

	s.mu.Lock()
	s.lastPollRun = time.Now()
	s.pollCycles++
	s.mu.Unlock()
}

// recordPollReport feeds one poll report into the metrics.
func (s *Server) recordPollReport(ctx context.Context, report *execution.PollReport) {
	statuses := make(map[string]int)
	for _, r := range report.Results {
		statuses[r.Status]++
	}
	s.metrics.RecordPollResults(statuses)
	s.metrics.LastSuccessfulPoll.SetToCurrentTime()

	if pending, err := s.stores.executionStore.ListPending(ctx); err == nil {
		s.metrics.PendingExecutions.Set(float64(len(pending)))
	}
}

// startHTTPServer starts the HTTP JSON API.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	mux.HandleFunc("POST /v1/trades", s.handleTradeIntake)
	mux.HandleFunc("POST /v1/settlement/run", s.handleSettlementRun)

	mux.HandleFunc("POST /v1/capital/initialize", s.handleCapitalInitialize)
	mux.HandleFunc("POST /v1/capital/reserve", s.handleCapitalReserve)
	mux.HandleFunc("POST /v1/capital/release", s.handleCapitalRelease)
	mux.HandleFunc("POST /v1/capital/settle-buy", s.handleCapitalSettleBuy)
	mux.HandleFunc("POST /v1/capital/settle-sell", s.handleCapitalSettleSell)
	mux.HandleFunc("POST /v1/capital/reset", s.handleCapitalReset)
	mux.HandleFunc("POST /v1/capital/reconcile", s.handleCapitalReconcile)
	mux.HandleFunc("GET /v1/portfolio/metrics", s.handlePortfolioMetrics)

	mux.HandleFunc("POST /v1/executions", s.handleExecutionSubmit)
	mux.HandleFunc("POST /v1/executions/poll", s.handleExecutionPoll)

	mux.HandleFunc("POST /v1/prices", s.handlePriceIngest)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// errorResponse is the JSON error body with a machine-readable reason code.
type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps domain failures to HTTP status and reason codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		reason = "internal"
	)

	switch {
	case errors.Is(err, capital.ErrInsufficientAvailable):
		status, reason = http.StatusConflict, "insufficient_available"
	case errors.Is(err, capital.ErrInsufficientCash):
		status, reason = http.StatusConflict, "insufficient_cash"
	case errors.Is(err, capital.ErrRealModeReset), errors.Is(err, capital.ErrRealModeLocked):
		status, reason = http.StatusForbidden, "real_mode_locked"
	case errors.Is(err, capital.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrInvalidTradeType),
		errors.Is(err, domain.ErrNegativeValue),
		errors.Is(err, domain.ErrValueMismatch),
		errors.Is(err, storage.ErrInvalidInput):
		status, reason = http.StatusBadRequest, "bad_request"
	case errors.Is(err, storage.ErrNotFound):
		status, reason = http.StatusNotFound, "portfolio_not_initialized"
	case errors.Is(err, storage.ErrDuplicateKey):
		status, reason = http.StatusConflict, "duplicate"
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Reason: reason})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Reason: "bad_request"})
		return false
	}
	return true
}

// parseMode validates a mode string from a request.
func parseMode(w http.ResponseWriter, raw string) (domain.Mode, bool) {
	mode := domain.Mode(raw)
	if !mode.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown mode %q", raw), Reason: "bad_request"})
		return "", false
	}
	return mode, true
}

// tradeIntakeRequest is the POST /v1/trades body.
type tradeIntakeRequest struct {
	TradeID    string  `json:"trade_id"`
	UserID     string  `json:"user_id"`
	Mode       string  `json:"mode"`
	TradeType  string  `json:"trade_type"`
	Symbol     string  `json:"symbol"`
	Amount     float64 `json:"amount"`
	Price      float64 `json:"price"`
	TotalValue float64 `json:"total_value"`
	Fees       float64 `json:"fees"`
	ExecutedAt int64   `json:"executed_at"`
	TxHash     *string `json:"tx_hash,omitempty"`
	StrategyID *string `json:"strategy_id,omitempty"`
}

// handleTradeIntake validates and inserts a new ledger row. A missing
// trade id gets a generated one.
func (s *Server) handleTradeIntake(w http.ResponseWriter, r *http.Request) {
	var req tradeIntakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TradeID == "" {
		req.TradeID = uuid.NewString()
	}

	trade := &domain.Trade{
		ID:         req.TradeID,
		UserID:     req.UserID,
		Mode:       domain.Mode(req.Mode),
		TradeType:  domain.TradeType(req.TradeType),
		Symbol:     req.Symbol,
		Amount:     req.Amount,
		Price:      req.Price,
		TotalValue: req.TotalValue,
		Fees:       req.Fees,
		ExecutedAt: req.ExecutedAt,
		TxHash:     req.TxHash,
		StrategyID: req.StrategyID,
	}
	if trade.ExecutedAt == 0 {
		trade.ExecutedAt = time.Now().UnixMilli()
	}

	if err := trade.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.stores.tradeStore.Insert(r.Context(), trade); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"trade_id": trade.ID})
}

// settlementRunRequest is the POST /v1/settlement/run body.
type settlementRunRequest struct {
	Scope  string `json:"scope"`
	UserID string `json:"user_id,omitempty"`
	Mode   string `json:"mode"`
	DryRun bool   `json:"dry_run"`
}

// handleSettlementRun runs one FIFO settlement pass.
func (s *Server) handleSettlementRun(w http.ResponseWriter, r *http.Request) {
	var req settlementRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := parseMode(w, req.Mode)
	if !ok {
		return
	}

	scope := settlement.Scope(req.Scope)
	if scope == "" {
		scope = settlement.ScopeAllUsers
	}

	start := time.Now()
	report, err := s.settlement.Settle(r.Context(), settlement.Request{
		Scope:  scope,
		UserID: req.UserID,
		Mode:   mode,
		DryRun: req.DryRun,
	})
	if err != nil {
		s.metrics.SettlementRunsTotal.WithLabelValues(string(scope), "error").Inc()
		writeError(w, err)
		return
	}

	s.metrics.SettlementRunsTotal.WithLabelValues(string(scope), "success").Inc()
	s.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	if !report.DryRun {
		s.metrics.TradesSettled.Add(float64(report.Updated))
		s.metrics.OrphanSellsSkipped.Add(float64(report.SkippedOrphans))
		s.metrics.PartialMatches.Add(float64(report.PartialMatches))
		s.metrics.LastSuccessfulSettlement.SetToCurrentTime()
	}

	s.mu.Lock()
	s.lastSettleAt = time.Now()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, report)
}

// capitalRequest is the shared body of the capital operation endpoints.
type capitalRequest struct {
	UserID            string  `json:"user_id"`
	Mode              string  `json:"mode"`
	Amount            float64 `json:"amount,omitempty"`
	StartingCapital   float64 `json:"starting_capital,omitempty"`
	ActualSpent       float64 `json:"actual_spent,omitempty"`
	ReservedToRelease float64 `json:"reserved_to_release,omitempty"`
	Proceeds          float64 `json:"proceeds,omitempty"`
	Apply             bool    `json:"apply,omitempty"`
	UnlockReal        bool    `json:"unlock_real,omitempty"`
}

// handleCapitalOp runs one capital mutation and reports the resulting account.
func (s *Server) handleCapitalOp(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error) {
	var req capitalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := parseMode(w, req.Mode)
	if !ok {
		return
	}

	if err := fn(r.Context(), req.UserID, mode, &req); err != nil {
		s.metrics.CapitalErrors.WithLabelValues(op, reasonOf(err)).Inc()
		writeError(w, err)
		return
	}
	s.metrics.CapitalOperations.WithLabelValues(op).Inc()

	acct, err := s.stores.capitalStore.Get(r.Context(), req.UserID, mode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      acct.UserID,
		"mode":         acct.Mode,
		"cash_balance": acct.CashBalance,
		"reserved":     acct.Reserved,
		"available":    acct.Available(),
	})
}

// reasonOf maps an operation error to a short label for metrics.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, capital.ErrInsufficientAvailable):
		return "insufficient_available"
	case errors.Is(err, capital.ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, capital.ErrRealModeReset), errors.Is(err, capital.ErrRealModeLocked):
		return "real_mode_locked"
	case errors.Is(err, capital.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, storage.ErrNotFound):
		return "not_initialized"
	default:
		return "other"
	}
}

func (s *Server) handleCapitalInitialize(w http.ResponseWriter, r *http.Request) {
	s.handleCapitalOp(w, r, "initialize", func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error {
		return s.capital.Initialize(ctx, userID, mode, req.StartingCapital)
	})
}

func (s *Server) handleCapitalReserve(w http.ResponseWriter, r *http.Request) {
	s.handleCapitalOp(w, r, "reserve", func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error {
		return s.capital.Reserve(ctx, userID, mode, req.Amount)
	})
}

func (s *Server) handleCapitalRelease(w http.ResponseWriter, r *http.Request) {
	s.handleCapitalOp(w, r, "release", func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error {
		return s.capital.Release(ctx, userID, mode, req.Amount)
	})
}

func (s *Server) handleCapitalSettleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleCapitalOp(w, r, "settle_buy", func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error {
		return s.capital.SettleBuy(ctx, userID, mode, req.ActualSpent, req.ReservedToRelease)
	})
}

func (s *Server) handleCapitalSettleSell(w http.ResponseWriter, r *http.Request) {
	s.handleCapitalOp(w, r, "settle_sell", func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error {
		return s.capital.SettleSell(ctx, userID, mode, req.Proceeds)
	})
}

func (s *Server) handleCapitalReset(w http.ResponseWriter, r *http.Request) {
	s.handleCapitalOp(w, r, "reset", func(ctx context.Context, userID string, mode domain.Mode, req *capitalRequest) error {
		return s.capital.Reset(ctx, userID, mode)
	})
}

// handleCapitalReconcile recomputes cash from trade history.
func (s *Server) handleCapitalReconcile(w http.ResponseWriter, r *http.Request) {
	var req capitalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := parseMode(w, req.Mode)
	if !ok {
		return
	}

	rep, err := s.capital.Reconcile(r.Context(), req.UserID, mode, req.Apply, req.UnlockReal)
	if err != nil {
		s.metrics.CapitalErrors.WithLabelValues("reconcile", reasonOf(err)).Inc()
		writeError(w, err)
		return
	}
	if rep.Applied {
		s.metrics.CashCorrections.Inc()
	}

	writeJSON(w, http.StatusOK, rep)
}

// handlePortfolioMetrics serves the read-side portfolio projection.
func (s *Server) handlePortfolioMetrics(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required", Reason: "bad_request"})
		return
	}
	mode, ok := parseMode(w, r.URL.Query().Get("mode"))
	if !ok {
		return
	}

	metrics, err := s.capital.PortfolioMetrics(r.Context(), s.stores.priceStore, userID, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

// executionSubmitRequest is the POST /v1/executions body.
type executionSubmitRequest struct {
	TradeID          string  `json:"trade_id"`
	TxHash           string  `json:"tx_hash"`
	UserID           string  `json:"user_id"`
	Mode             string  `json:"mode"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	IsSystemOperator bool    `json:"is_system_operator"`
	StrategyID       *string `json:"strategy_id,omitempty"`
}

// handleExecutionSubmit registers an on-chain execution for polling.
func (s *Server) handleExecutionSubmit(w http.ResponseWriter, r *http.Request) {
	var req executionSubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec := &domain.ExecutionRecord{
		TradeID:          req.TradeID,
		TxHash:           req.TxHash,
		UserID:           req.UserID,
		Mode:             domain.Mode(req.Mode),
		Symbol:           req.Symbol,
		Side:             domain.TradeType(req.Side),
		IsSystemOperator: req.IsSystemOperator,
		StrategyID:       req.StrategyID,
	}

	if err := s.machine.Submit(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	s.metrics.ExecutionsSubmitted.Inc()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"trade_id":     rec.TradeID,
		"status":       rec.ExecutionStatus,
		"submitted_at": rec.SubmittedAt,
	})
}

// executionPollRequest is the POST /v1/executions/poll body.
type executionPollRequest struct {
	TradeID string `json:"trade_id,omitempty"`
}

// handleExecutionPoll polls one or all pending executions on demand.
func (s *Server) handleExecutionPoll(w http.ResponseWriter, r *http.Request) {
	var req executionPollRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	report, err := s.poller.Poll(r.Context(), req.TradeID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.recordPollReport(r.Context(), report)

	writeJSON(w, http.StatusOK, report)
}

// priceIngestRequest is the POST /v1/prices body.
type priceIngestRequest struct {
	Points []struct {
		Symbol      string  `json:"symbol"`
		TimestampMs int64   `json:"timestamp_ms"`
		Price       float64 `json:"price"`
	} `json:"points"`
}

// handlePriceIngest stores mark price points for portfolio valuation.
func (s *Server) handlePriceIngest(w http.ResponseWriter, r *http.Request) {
	var req priceIngestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	points := make([]*domain.PricePoint, 0, len(req.Points))
	for _, p := range req.Points {
		points = append(points, &domain.PricePoint{
			Symbol:      p.Symbol,
			TimestampMs: p.TimestampMs,
			Price:       p.Price,
		})
	}

	if err := s.stores.priceStore.InsertPoints(r.Context(), points); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int{"inserted": len(points)})
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status             string    `json:"status"`
	Uptime             string    `json:"uptime"`
	LastPollRun        time.Time `json:"last_poll_run,omitempty"`
	LastSettle         time.Time `json:"last_settlement_run,omitempty"`
	PollCycles         int       `json:"poll_cycles"`
	OperatorBalanceWei string    `json:"operator_balance_wei,omitempty"`
}

// handleStatus returns server status as JSON, including the operator
// wallet balance when an address is configured.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      strings.TrimSpace(time.Since(s.started).Round(time.Second).String()),
		LastPollRun: s.lastPollRun,
		LastSettle:  s.lastSettleAt,
		PollCycles:  s.pollCycles,
	}
	s.mu.Unlock()

	if s.operatorAddress != "" {
		if bal, err := s.rpc.Balance(r.Context(), s.operatorAddress); err != nil {
			s.logger.Printf("operator balance lookup: %v", err)
		} else {
			resp.OperatorBalanceWei = bal.String()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
