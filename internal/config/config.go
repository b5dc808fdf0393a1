// Package config defines the top-level configuration for the sniper
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by SNIPER_* environment
// variables.
type Config struct {
	RPC        RPCConfig        `toml:"rpc"`
	Wallet     WalletConfig     `toml:"wallet"`
	State      StateConfig      `toml:"state"`
	Postgres   PostgresConfig   `toml:"postgres"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Ingest     IngestConfig     `toml:"ingest"`
	Filter     FilterConfig     `toml:"filter"`
	Execution  ExecutionConfig  `toml:"execution"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
}

// RPCConfig holds Solana node endpoints.
type RPCConfig struct {
	HTTPURL     string   `toml:"http_url"`
	WSURL       string   `toml:"ws_url"`
	Timeout     duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"`
	Commitment  string   `toml:"commitment"`
	PingPeriod  duration `toml:"ping_period"`
	ReconnectIn duration `toml:"reconnect_in"`
}

// WalletConfig holds the signing keypair source. Exactly one of the
// two fields is used; the file path wins when both are set.
type WalletConfig struct {
	KeypairPath string `toml:"keypair_path"`
	PrivateKey  string `toml:"private_key"` // base58, for env injection
}

// StateConfig holds durable state parameters.
type StateConfig struct {
	Path               string   `toml:"path"`
	CheckpointInterval duration `toml:"checkpoint_interval"`
	RetainedAttempts   int      `toml:"retained_attempts"`
}

// PostgresConfig holds the optional attempt audit store. Empty DSN
// disables it.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ClickHouseConfig holds the optional attempt analytics store. Empty
// addr disables it.
type ClickHouseConfig struct {
	Addr     string `toml:"addr"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// IngestConfig holds event ingestion parameters.
type IngestConfig struct {
	BufferSize      int `toml:"buffer_size"`
	CatchUpPageSize int `toml:"catchup_page_size"`
	FetchRetries    int `toml:"fetch_retries"`
}

// FilterConfig holds the rule-set parameters.
type FilterConfig struct {
	MinLiquiditySOL     float64  `toml:"min_liquidity_sol"`
	MinLiquidityUSD     float64  `toml:"min_liquidity_usd"`
	BlacklistedCreators []string `toml:"blacklisted_creators"`
	MaxSymbolLen        int      `toml:"max_symbol_len"`
	MaxCreatorShare     float64  `toml:"max_creator_share"`
	LiquidityWeight     float64  `toml:"liquidity_weight"`
	ReputationWeight    float64  `toml:"reputation_weight"`
}

// ExecutionConfig holds buy execution parameters.
type ExecutionConfig struct {
	SpendSOL             float64  `toml:"spend_sol"`
	SlippageBps          int      `toml:"slippage_bps"`
	PriorityFeeMicroLamp int64    `toml:"priority_fee_micro_lamports"`
	Workers              int      `toml:"workers"`
	QueueSize            int      `toml:"queue_size"`
	StalenessBound       duration `toml:"staleness_bound"`
	RetryBudget          int      `toml:"retry_budget"`
	RetryBaseDelay       duration `toml:"retry_base_delay"`
	OverallDeadline      duration `toml:"overall_deadline"`
	ConfirmDeadline      duration `toml:"confirm_deadline"`
	ConfirmPollInterval  duration `toml:"confirm_poll_interval"`

	// SubmitEndpoints lists extra RPC endpoints for submission fan-out.
	// When non-empty, sends race across the primary endpoint and every
	// endpoint listed here; first acceptance wins.
	SubmitEndpoints []string `toml:"submit_endpoints"`
}

// NotifyConfig holds outbound notification settings. Notifications are
// disabled unless a Telegram token and chat ID are both present.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// ServerConfig holds the metrics/health HTTP endpoint.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		RPC: RPCConfig{
			HTTPURL:     "https://api.mainnet-beta.solana.com",
			WSURL:       "wss://api.mainnet-beta.solana.com",
			Timeout:     duration{30 * time.Second},
			MaxRetries:  3,
			Commitment:  "confirmed",
			PingPeriod:  duration{30 * time.Second},
			ReconnectIn: duration{5 * time.Second},
		},
		State: StateConfig{
			Path:               "indexer_state.json",
			CheckpointInterval: duration{5 * time.Second},
			RetainedAttempts:   10_000,
		},
		Postgres: PostgresConfig{
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		ClickHouse: ClickHouseConfig{
			Database: "sniper",
			User:     "default",
		},
		Ingest: IngestConfig{
			BufferSize:      1024,
			CatchUpPageSize: 1000,
			FetchRetries:    3,
		},
		Filter: FilterConfig{
			MinLiquiditySOL:  5,
			MinLiquidityUSD:  1000,
			MaxSymbolLen:     10,
			MaxCreatorShare:  0.5,
			LiquidityWeight:  0.7,
			ReputationWeight: 0.3,
		},
		Execution: ExecutionConfig{
			SpendSOL:             0.1,
			SlippageBps:          500,
			PriorityFeeMicroLamp: 10_000,
			Workers:              4,
			QueueSize:            256,
			StalenessBound:       duration{3 * time.Second},
			RetryBudget:          3,
			RetryBaseDelay:       duration{200 * time.Millisecond},
			OverallDeadline:      duration{10 * time.Second},
			ConfirmDeadline:      duration{30 * time.Second},
			ConfirmPollInterval:  duration{500 * time.Millisecond},
		},
		Notify: NotifyConfig{
			Events: []string{"FILLED"},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    9090,
		},
		Mode: "live",
	}
}

// validModes enumerates the accepted values for Config.Mode.
// index runs ingest+filter without execution; dry executes against
// in-memory state without persisting.
var validModes = map[string]bool{
	"live":  true,
	"index": true,
	"dry":   true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, index, dry)", c.Mode))
	}

	if c.RPC.HTTPURL == "" {
		errs = append(errs, "rpc: http_url must not be empty")
	}
	if c.RPC.WSURL == "" {
		errs = append(errs, "rpc: ws_url must not be empty")
	}
	if c.RPC.MaxRetries < 0 {
		errs = append(errs, "rpc: max_retries must be >= 0")
	}

	// A signer is only needed when buys are actually sent
	if strings.ToLower(c.Mode) == "live" {
		if c.Wallet.KeypairPath == "" && c.Wallet.PrivateKey == "" {
			errs = append(errs, "wallet: keypair_path or private_key must be set for mode live")
		}
	}

	if c.State.Path == "" {
		errs = append(errs, "state: path must not be empty")
	}
	if c.State.CheckpointInterval.Duration <= 0 {
		errs = append(errs, "state: checkpoint_interval must be positive")
	}

	if c.Filter.MinLiquiditySOL < 0 || c.Filter.MinLiquidityUSD < 0 {
		errs = append(errs, "filter: liquidity floors must be >= 0")
	}
	if c.Filter.MaxCreatorShare < 0 || c.Filter.MaxCreatorShare > 1 {
		errs = append(errs, "filter: max_creator_share must be within [0, 1]")
	}
	if w := c.Filter.LiquidityWeight + c.Filter.ReputationWeight; w <= 0 {
		errs = append(errs, "filter: scoring weights must sum to a positive value")
	}

	if c.Execution.SpendSOL <= 0 {
		errs = append(errs, "execution: spend_sol must be > 0")
	}
	if c.Execution.SlippageBps < 0 || c.Execution.SlippageBps > 10_000 {
		errs = append(errs, "execution: slippage_bps must be within [0, 10000]")
	}
	if c.Execution.Workers < 1 {
		errs = append(errs, "execution: workers must be >= 1")
	}
	if c.Execution.RetryBudget < 0 {
		errs = append(errs, "execution: retry_budget must be >= 0")
	}
	if c.Execution.StalenessBound.Duration <= 0 {
		errs = append(errs, "execution: staleness_bound must be positive")
	}
	if c.Execution.ConfirmDeadline.Duration <= 0 {
		errs = append(errs, "execution: confirm_deadline must be positive")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if c.Postgres.DSN != "" && c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SpendLamports converts the configured SOL budget to lamports.
func (c *ExecutionConfig) SpendLamports() uint64 {
	return uint64(c.SpendSOL * 1e9)
}
