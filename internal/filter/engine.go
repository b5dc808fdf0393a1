package filter

import (
	"time"

	"solana-sniper/internal/domain"
)

// Well-known Solana quote mints.
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// DefaultQuoteTokens returns the stock allowlist: wrapped SOL plus the
// two major stables, with conservative liquidity floors.
func DefaultQuoteTokens() []QuoteToken {
	return []QuoteToken{
		{Mint: WSOLMint, Symbol: "WSOL", Decimals: 9, MinLiquidity: 5_000_000_000},  // 5 SOL
		{Mint: USDCMint, Symbol: "USDC", Decimals: 6, MinLiquidity: 1_000_000_000},  // 1000 USDC
		{Mint: USDTMint, Symbol: "USDT", Decimals: 6, MinLiquidity: 1_000_000_000},  // 1000 USDT
	}
}

// Config parameterizes the engine. The zero value is not usable; use
// DefaultConfig as the base.
type Config struct {
	QuoteTokens         []QuoteToken
	BlacklistedCreators []string
	MaxSymbolLen        int
	MaxCreatorShare     float64

	// LiquidityCeiling is the quote reserve (in raw units of the
	// matched quote token, scaled to 9 decimals) at which the
	// liquidity sub-score saturates at 1.0.
	LiquidityCeiling uint64

	// LiquidityWeight and ReputationWeight blend the sub-scores.
	// They are normalized internally, only the ratio matters.
	LiquidityWeight  float64
	ReputationWeight float64

	// CreatorScores maps creator address to reputation in [0,1].
	// Unknown creators score NeutralReputation.
	CreatorScores     map[string]float64
	NeutralReputation float64
}

// DefaultConfig returns a usable engine configuration.
func DefaultConfig() Config {
	return Config{
		QuoteTokens:       DefaultQuoteTokens(),
		MaxSymbolLen:      10,
		MaxCreatorShare:   0.5,
		LiquidityCeiling:  100_000_000_000, // 100 SOL equivalent
		LiquidityWeight:   0.7,
		ReputationWeight:  0.3,
		NeutralReputation: 0.5,
	}
}

// Engine scores pool events against an ordered rule set. Evaluation is
// deterministic and does no I/O; the coordinator may run several
// instances concurrently.
type Engine struct {
	rules    []Rule
	cfg      Config
	decimals map[string]int
	now      func() time.Time
}

// NewEngine creates a filter engine. Rule order is fixed: allowlist
// first so later rules can assume a known quote token.
func NewEngine(cfg Config) *Engine {
	if cfg.NeutralReputation <= 0 {
		cfg.NeutralReputation = 0.5
	}
	if cfg.LiquidityCeiling == 0 {
		cfg.LiquidityCeiling = 100_000_000_000
	}
	if cfg.LiquidityWeight <= 0 && cfg.ReputationWeight <= 0 {
		cfg.LiquidityWeight, cfg.ReputationWeight = 0.7, 0.3
	}

	decimals := make(map[string]int, len(cfg.QuoteTokens))
	for _, t := range cfg.QuoteTokens {
		decimals[t.Mint] = t.Decimals
	}

	return &Engine{
		rules: []Rule{
			NewQuoteAllowlistRule(cfg.QuoteTokens),
			NewMinLiquidityRule(cfg.QuoteTokens),
			NewCreatorBlacklistRule(cfg.BlacklistedCreators),
			NewSymbolSanityRule(cfg.MaxSymbolLen),
			NewCreatorConcentrationRule(cfg.MaxCreatorShare),
		},
		cfg:      cfg,
		decimals: decimals,
		now:      time.Now,
	}
}

// Rules exposes the ordered rule names for logging and metrics labels.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Evaluate runs the rule chain over one event. The first rejecting
// rule short-circuits with score 0; full passes get a weighted score
// in (0,1].
func (e *Engine) Evaluate(ev *domain.PoolEvent) *domain.Opportunity {
	opp := &domain.Opportunity{
		Event:        ev,
		DiscoveredAt: e.now().UnixMilli(),
	}

	for _, rule := range e.rules {
		if res := rule.Check(ev); !res.Pass {
			opp.Verdict = domain.VerdictReject
			opp.RejectedBy = rule.Name()
			opp.Score = 0
			return opp
		}
	}

	opp.Verdict = domain.VerdictAccept
	opp.Score = e.score(ev)
	return opp
}

// score blends normalized liquidity with creator reputation.
func (e *Engine) score(ev *domain.PoolEvent) float64 {
	liquidity := normalizeLiquidity(ev.QuoteReserve, e.decimals[ev.QuoteMint], e.cfg.LiquidityCeiling)

	reputation := e.cfg.NeutralReputation
	if r, ok := e.cfg.CreatorScores[ev.Creator]; ok {
		reputation = clamp01(r)
	}

	wl, wr := e.cfg.LiquidityWeight, e.cfg.ReputationWeight
	total := wl + wr
	score := (wl*liquidity + wr*reputation) / total

	// An accepted opportunity never scores exactly 0, zero is reserved
	// for rejections.
	if score <= 0 {
		score = 0.01
	}
	return score
}

// normalizeLiquidity rescales a raw quote reserve to 9 decimals and
// maps it linearly onto [0,1] against the ceiling.
func normalizeLiquidity(reserve uint64, decimals int, ceiling uint64) float64 {
	scaled := float64(reserve)
	for d := decimals; d < 9; d++ {
		scaled *= 10
	}
	for d := decimals; d > 9; d-- {
		scaled /= 10
	}
	return clamp01(scaled / float64(ceiling))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
