package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-sniper/internal/config"
	"solana-sniper/internal/coordinator"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/filter"
	"solana-sniper/internal/ingest"
	"solana-sniper/internal/notify"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/storage/migrations"
	"solana-sniper/internal/storage/postgres"
	"solana-sniper/internal/storage/statefile"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	mode := flag.String("mode", "", "Override run mode: live, index, or dry")
	flag.Parse()

	logger := log.New(os.Stdout, "[sniper] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Load config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}
	logger.Printf("Starting in %s mode", cfg.Mode)

	// Start metrics server if enabled
	if cfg.Server.Enabled {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = run(ctx, logger, cfg)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the pipeline and blocks until ctx is cancelled or a stage
// fails.
func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	state, err := openStateStore(ctx, logger, cfg)
	if err != nil {
		return err
	}

	rpc := solana.NewHTTPClient(cfg.RPC.HTTPURL,
		solana.WithTimeout(cfg.RPC.Timeout.Duration),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
	)

	ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, wsConfig(cfg))
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	ingestor := ingest.New(ws, rpc, state, ingest.Config{
		BufferSize:      cfg.Ingest.BufferSize,
		CatchUpPageSize: cfg.Ingest.CatchUpPageSize,
		FetchRetries:    cfg.Ingest.FetchRetries,
	})

	filterEngine := filter.NewEngine(filterConfig(cfg.Filter))
	logger.Printf("Filter rules: %s", strings.Join(filterEngine.Rules(), ", "))

	var execEngine *execution.Engine
	if cfg.Mode != "index" {
		execEngine, err = buildExecutionEngine(ctx, logger, cfg, state, rpc)
		if err != nil {
			return err
		}
	} else {
		logger.Println("Index mode: execution disabled")
	}

	coord := coordinator.New(ingestor, filterEngine, execEngine, state, coordinator.Config{
		ExecQueueSize:      cfg.Execution.QueueSize,
		CheckpointInterval: cfg.State.CheckpointInterval.Duration,
	})

	return coord.Run(ctx)
}

// openStateStore picks the state backend by mode. Dry runs are
// throwaway and stay in memory; live and index runs persist the cursor
// and seen set so restarts resume instead of re-executing.
func openStateStore(ctx context.Context, logger *log.Logger, cfg *config.Config) (storage.StateStore, error) {
	if cfg.Mode == "dry" {
		logger.Println("Dry mode: using in-memory state")
		return memory.NewStateStore(), nil
	}

	store := statefile.New(cfg.State.Path, statefile.WithMaxAttempts(cfg.State.RetainedAttempts))
	cursor, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCorruptState) {
			return nil, fmt.Errorf("state file %s is corrupt, refusing to start blind: %w", cfg.State.Path, err)
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	if cursor.IsZero() {
		logger.Printf("No prior state at %s, cold start", cfg.State.Path)
	} else {
		logger.Printf("Resuming from slot %d signature %s", cursor.Slot, cursor.Signature)
	}
	return store, nil
}

// buildExecutionEngine assembles the signer, transaction builders and
// optional audit sinks for a live run.
func buildExecutionEngine(ctx context.Context, logger *log.Logger, cfg *config.Config, state storage.StateStore, rpc solana.RPCClient) (*execution.Engine, error) {
	signer, err := loadSigner(cfg.Wallet)
	if err != nil {
		return nil, err
	}
	logger.Printf("Buying as %s, spend %.4f SOL per fill", signer.PublicKey(), cfg.Execution.SpendSOL)

	pumpBuilder, err := execution.NewPumpFunBuilder(signer, execution.PumpFunBuilderConfig{
		SpendLamports:            cfg.Execution.SpendLamports(),
		SlippageBps:              uint64(cfg.Execution.SlippageBps),
		PriorityFeeMicroLamports: uint64(cfg.Execution.PriorityFeeMicroLamp),
	})
	if err != nil {
		return nil, fmt.Errorf("create pump.fun builder: %w", err)
	}

	opts, err := auditSinks(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	if len(cfg.Execution.SubmitEndpoints) > 0 {
		clients := []solana.RPCClient{rpc}
		for _, endpoint := range cfg.Execution.SubmitEndpoints {
			clients = append(clients, solana.NewHTTPClient(endpoint,
				solana.WithTimeout(cfg.RPC.Timeout.Duration),
				solana.WithMaxRetries(cfg.RPC.MaxRetries),
			))
		}
		fanout, err := execution.NewFanoutSubmitter(clients...)
		if err != nil {
			return nil, fmt.Errorf("create fan-out submitter: %w", err)
		}
		logger.Printf("Submitting across %d endpoints", len(clients))
		opts = append(opts, execution.WithSubmitter(fanout))
	}

	if cfg.Notify.TelegramToken != "" {
		senders := []notify.Sender{notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)}
		logger.Printf("Notifying telegram on %s", strings.Join(cfg.Notify.Events, ", "))
		opts = append(opts, execution.WithNotifier(notify.New(senders, cfg.Notify.Events)))
	}

	return execution.New(state, rpc, execution.NewBuilderSet(pumpBuilder), execution.Config{
		Workers:             cfg.Execution.Workers,
		StalenessBound:      cfg.Execution.StalenessBound.Duration,
		RetryBudget:         cfg.Execution.RetryBudget,
		RetryBaseDelay:      cfg.Execution.RetryBaseDelay.Duration,
		OverallDeadline:     cfg.Execution.OverallDeadline.Duration,
		ConfirmDeadline:     cfg.Execution.ConfirmDeadline.Duration,
		ConfirmPollInterval: cfg.Execution.ConfirmPollInterval.Duration,
	}, opts...), nil
}

// auditSinks connects the optional Postgres audit store and ClickHouse
// analytics sink. Both are off when their address is empty.
func auditSinks(ctx context.Context, logger *log.Logger, cfg *config.Config) ([]execution.Option, error) {
	var opts []execution.Option

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgresDSN(cfg.Postgres))
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return nil, fmt.Errorf("run postgres migrations: %w", err)
			}
		}
		logger.Println("Attempt audit store: postgres")
		opts = append(opts, execution.WithAttemptStore(postgres.NewAttemptStore(pool)))
	}

	if cfg.ClickHouse.Addr != "" {
		dsn := clickhouseDSN(cfg.ClickHouse)
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		logger.Println("Attempt analytics sink: clickhouse")
		opts = append(opts, execution.WithAnalyticsSink(clickhouse.NewAttemptAnalyticsStore(conn)))
	}

	return opts, nil
}

// loadSigner loads the wallet keypair. The file path wins when both
// sources are configured.
func loadSigner(cfg config.WalletConfig) (*solana.Keypair, error) {
	if cfg.KeypairPath != "" {
		signer, err := solana.LoadKeypairFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("load keypair file: %w", err)
		}
		return signer, nil
	}
	signer, err := solana.NewKeypairFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return signer, nil
}

// wsConfig maps the RPC section onto the websocket client. Zero values
// fall through to the client defaults.
func wsConfig(cfg *config.Config) *solana.WSClientConfig {
	if cfg.RPC.PingPeriod.Duration == 0 && cfg.RPC.ReconnectIn.Duration == 0 {
		return nil
	}
	return &solana.WSClientConfig{
		PingInterval:   cfg.RPC.PingPeriod.Duration,
		ReconnectDelay: cfg.RPC.ReconnectIn.Duration,
	}
}

// filterConfig maps the flat config section onto the rule engine. The
// SOL floor applies to the WSOL quote, the USD floor to both stables.
func filterConfig(cfg config.FilterConfig) filter.Config {
	fc := filter.DefaultConfig()

	if cfg.MinLiquiditySOL > 0 || cfg.MinLiquidityUSD > 0 {
		tokens := filter.DefaultQuoteTokens()
		for i := range tokens {
			switch tokens[i].Mint {
			case filter.WSOLMint:
				if cfg.MinLiquiditySOL > 0 {
					tokens[i].MinLiquidity = uint64(cfg.MinLiquiditySOL * 1e9)
				}
			default:
				if cfg.MinLiquidityUSD > 0 {
					tokens[i].MinLiquidity = uint64(cfg.MinLiquidityUSD * 1e6)
				}
			}
		}
		fc.QuoteTokens = tokens
	}

	fc.BlacklistedCreators = cfg.BlacklistedCreators
	if cfg.MaxSymbolLen > 0 {
		fc.MaxSymbolLen = cfg.MaxSymbolLen
	}
	if cfg.MaxCreatorShare > 0 {
		fc.MaxCreatorShare = cfg.MaxCreatorShare
	}
	if cfg.LiquidityWeight > 0 || cfg.ReputationWeight > 0 {
		fc.LiquidityWeight = cfg.LiquidityWeight
		fc.ReputationWeight = cfg.ReputationWeight
	}
	return fc
}

// postgresDSN appends the pool size to the configured DSN when set.
func postgresDSN(cfg config.PostgresConfig) string {
	if cfg.PoolMaxConns <= 0 {
		return cfg.DSN
	}
	sep := "?"
	if strings.Contains(cfg.DSN, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spool_max_conns=%d", cfg.DSN, sep, cfg.PoolMaxConns)
}

// clickhouseDSN builds a clickhouse:// DSN from the config section.
func clickhouseDSN(cfg config.ClickHouseConfig) string {
	user := cfg.User
	if user == "" {
		user = "default"
	}
	db := cfg.Database
	if db == "" {
		db = "default"
	}
	if cfg.Password != "" {
		return fmt.Sprintf("clickhouse://%s:%s@%s/%s", user, cfg.Password, cfg.Addr, db)
	}
	return fmt.Sprintf("clickhouse://%s@%s/%s", user, cfg.Addr, db)
}
