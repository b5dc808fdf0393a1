package filter

import (
	"fmt"

	"solana-sniper/internal/domain"
)

// Rule is a single accept/reject check over a pool event. Rules are
// pure; the same event always yields the same result.
type Rule interface {
	Name() string
	Check(ev *domain.PoolEvent) RuleResult
}

// RuleResult is the outcome of one rule check.
type RuleResult struct {
	Pass   bool
	Detail string // human-readable actual value for audit logs
}

// QuoteToken describes an accepted quote-side token.
type QuoteToken struct {
	Mint         string
	Symbol       string
	Decimals     int
	MinLiquidity uint64 // minimum initial quote reserve in raw units
}

// quoteAllowlistRule rejects pools whose quote side is not a known
// liquid token. Everything downstream prices against the quote side,
// so an unknown quote makes the pool unpriceable.
type quoteAllowlistRule struct {
	allowed map[string]QuoteToken
}

// NewQuoteAllowlistRule builds the allowlist rule from the accepted
// quote tokens.
func NewQuoteAllowlistRule(tokens []QuoteToken) Rule {
	allowed := make(map[string]QuoteToken, len(tokens))
	for _, t := range tokens {
		allowed[t.Mint] = t
	}
	return &quoteAllowlistRule{allowed: allowed}
}

func (r *quoteAllowlistRule) Name() string { return "quote-allowlist" }

func (r *quoteAllowlistRule) Check(ev *domain.PoolEvent) RuleResult {
	t, ok := r.allowed[ev.QuoteMint]
	if !ok {
		return RuleResult{Pass: false, Detail: fmt.Sprintf("quote mint %s not allowlisted", ev.QuoteMint)}
	}
	return RuleResult{Pass: true, Detail: t.Symbol}
}

// minLiquidityRule rejects pools seeded below the per-quote-token
// liquidity floor.
type minLiquidityRule struct {
	floors map[string]uint64
}

// NewMinLiquidityRule builds the liquidity floor rule. Tokens without
// an explicit floor reject everything, so the allowlist rule must run
// first.
func NewMinLiquidityRule(tokens []QuoteToken) Rule {
	floors := make(map[string]uint64, len(tokens))
	for _, t := range tokens {
		floors[t.Mint] = t.MinLiquidity
	}
	return &minLiquidityRule{floors: floors}
}

func (r *minLiquidityRule) Name() string { return "min-liquidity" }

func (r *minLiquidityRule) Check(ev *domain.PoolEvent) RuleResult {
	floor, ok := r.floors[ev.QuoteMint]
	if !ok {
		return RuleResult{Pass: false, Detail: fmt.Sprintf("no liquidity floor for quote mint %s", ev.QuoteMint)}
	}
	if ev.QuoteReserve < floor {
		return RuleResult{Pass: false, Detail: fmt.Sprintf("quote reserve %d below floor %d", ev.QuoteReserve, floor)}
	}
	return RuleResult{Pass: true, Detail: fmt.Sprintf("quote reserve %d", ev.QuoteReserve)}
}

// creatorBlacklistRule rejects pools created by known-bad addresses.
type creatorBlacklistRule struct {
	blocked map[string]struct{}
}

// NewCreatorBlacklistRule builds the blacklist rule.
func NewCreatorBlacklistRule(creators []string) Rule {
	blocked := make(map[string]struct{}, len(creators))
	for _, c := range creators {
		blocked[c] = struct{}{}
	}
	return &creatorBlacklistRule{blocked: blocked}
}

func (r *creatorBlacklistRule) Name() string { return "creator-blacklist" }

func (r *creatorBlacklistRule) Check(ev *domain.PoolEvent) RuleResult {
	if _, bad := r.blocked[ev.Creator]; bad {
		return RuleResult{Pass: false, Detail: fmt.Sprintf("creator %s blacklisted", ev.Creator)}
	}
	return RuleResult{Pass: true, Detail: ev.Creator}
}

// symbolSanityRule rejects tokens whose logged symbol is garbage. An
// absent symbol passes; many programs do not log one.
type symbolSanityRule struct {
	maxLen int
}

// NewSymbolSanityRule builds the symbol sanity rule.
func NewSymbolSanityRule(maxLen int) Rule {
	if maxLen <= 0 {
		maxLen = 10
	}
	return &symbolSanityRule{maxLen: maxLen}
}

func (r *symbolSanityRule) Name() string { return "symbol-sanity" }

func (r *symbolSanityRule) Check(ev *domain.PoolEvent) RuleResult {
	sym := ev.BaseSymbol
	if sym == "" {
		return RuleResult{Pass: true, Detail: "no symbol logged"}
	}
	if len(sym) > r.maxLen {
		return RuleResult{Pass: false, Detail: fmt.Sprintf("symbol %q exceeds %d chars", sym, r.maxLen)}
	}
	for i := 0; i < len(sym); i++ {
		c := sym[i]
		if c < 0x21 || c > 0x7e {
			return RuleResult{Pass: false, Detail: fmt.Sprintf("symbol %q contains non-printable byte 0x%02x", sym, c)}
		}
	}
	return RuleResult{Pass: true, Detail: sym}
}

// creatorConcentrationRule rejects pools where the creator retains too
// much of the base supply. Unknown concentration passes; only a
// positive signal rejects.
type creatorConcentrationRule struct {
	maxShare float64
}

// NewCreatorConcentrationRule builds the concentration rule.
func NewCreatorConcentrationRule(maxShare float64) Rule {
	if maxShare <= 0 || maxShare > 1 {
		maxShare = 0.5
	}
	return &creatorConcentrationRule{maxShare: maxShare}
}

func (r *creatorConcentrationRule) Name() string { return "creator-concentration" }

func (r *creatorConcentrationRule) Check(ev *domain.PoolEvent) RuleResult {
	if ev.CreatorShare <= 0 {
		return RuleResult{Pass: true, Detail: "creator share unknown"}
	}
	if ev.CreatorShare > r.maxShare {
		return RuleResult{Pass: false, Detail: fmt.Sprintf("creator holds %.1f%% of supply, max %.1f%%", ev.CreatorShare*100, r.maxShare*100)}
	}
	return RuleResult{Pass: true, Detail: fmt.Sprintf("creator holds %.1f%%", ev.CreatorShare*100)}
}
