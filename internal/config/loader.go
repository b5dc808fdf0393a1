package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SNIPER_* environment variable overrides,
// and returns the final Config. An empty path skips the file and uses
// defaults plus environment. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
// This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.RPC.HTTPURL, "SNIPER_RPC_HTTP_URL")
	setStr(&cfg.RPC.WSURL, "SNIPER_RPC_WS_URL")
	setDuration(&cfg.RPC.Timeout, "SNIPER_RPC_TIMEOUT")
	setInt(&cfg.RPC.MaxRetries, "SNIPER_RPC_MAX_RETRIES")
	setStr(&cfg.RPC.Commitment, "SNIPER_RPC_COMMITMENT")

	setStr(&cfg.Wallet.KeypairPath, "SNIPER_WALLET_KEYPAIR_PATH")
	setStr(&cfg.Wallet.PrivateKey, "SNIPER_WALLET_PRIVATE_KEY")

	setStr(&cfg.State.Path, "SNIPER_STATE_PATH")
	setDuration(&cfg.State.CheckpointInterval, "SNIPER_STATE_CHECKPOINT_INTERVAL")
	setInt(&cfg.State.RetainedAttempts, "SNIPER_STATE_RETAINED_ATTEMPTS")

	setStr(&cfg.Postgres.DSN, "SNIPER_POSTGRES_DSN")
	setInt(&cfg.Postgres.PoolMaxConns, "SNIPER_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SNIPER_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.ClickHouse.Addr, "SNIPER_CLICKHOUSE_ADDR")
	setStr(&cfg.ClickHouse.Database, "SNIPER_CLICKHOUSE_DATABASE")
	setStr(&cfg.ClickHouse.User, "SNIPER_CLICKHOUSE_USER")
	setStr(&cfg.ClickHouse.Password, "SNIPER_CLICKHOUSE_PASSWORD")

	setInt(&cfg.Ingest.BufferSize, "SNIPER_INGEST_BUFFER_SIZE")
	setInt(&cfg.Ingest.CatchUpPageSize, "SNIPER_INGEST_CATCHUP_PAGE_SIZE")
	setInt(&cfg.Ingest.FetchRetries, "SNIPER_INGEST_FETCH_RETRIES")

	setFloat64(&cfg.Filter.MinLiquiditySOL, "SNIPER_FILTER_MIN_LIQUIDITY_SOL")
	setFloat64(&cfg.Filter.MinLiquidityUSD, "SNIPER_FILTER_MIN_LIQUIDITY_USD")
	setStringSlice(&cfg.Filter.BlacklistedCreators, "SNIPER_FILTER_BLACKLISTED_CREATORS")
	setInt(&cfg.Filter.MaxSymbolLen, "SNIPER_FILTER_MAX_SYMBOL_LEN")
	setFloat64(&cfg.Filter.MaxCreatorShare, "SNIPER_FILTER_MAX_CREATOR_SHARE")

	setFloat64(&cfg.Execution.SpendSOL, "SNIPER_EXECUTION_SPEND_SOL")
	setInt(&cfg.Execution.SlippageBps, "SNIPER_EXECUTION_SLIPPAGE_BPS")
	setInt64(&cfg.Execution.PriorityFeeMicroLamp, "SNIPER_EXECUTION_PRIORITY_FEE_MICRO_LAMPORTS")
	setInt(&cfg.Execution.Workers, "SNIPER_EXECUTION_WORKERS")
	setInt(&cfg.Execution.QueueSize, "SNIPER_EXECUTION_QUEUE_SIZE")
	setDuration(&cfg.Execution.StalenessBound, "SNIPER_EXECUTION_STALENESS_BOUND")
	setInt(&cfg.Execution.RetryBudget, "SNIPER_EXECUTION_RETRY_BUDGET")
	setDuration(&cfg.Execution.OverallDeadline, "SNIPER_EXECUTION_OVERALL_DEADLINE")
	setDuration(&cfg.Execution.ConfirmDeadline, "SNIPER_EXECUTION_CONFIRM_DEADLINE")
	setStringSlice(&cfg.Execution.SubmitEndpoints, "SNIPER_EXECUTION_SUBMIT_ENDPOINTS")

	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "SNIPER_NOTIFY_EVENTS")

	setBool(&cfg.Server.Enabled, "SNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SNIPER_SERVER_PORT")

	setStr(&cfg.Mode, "SNIPER_MODE")
}

// Typed env-var helpers. Each only mutates the target when the
// environment variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
