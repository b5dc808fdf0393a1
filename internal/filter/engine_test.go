package filter

import (
	"testing"

	"solana-sniper/internal/domain"
)

func acceptableEvent() *domain.PoolEvent {
	return &domain.PoolEvent{
		Pool:         "pool111",
		BaseMint:     "base111",
		QuoteMint:    WSOLMint,
		Creator:      "creator111",
		BaseReserve:  1_000_000_000_000,
		QuoteReserve: 10_000_000_000, // 10 SOL
		Program:      "program111",
		TxSignature:  "sig111",
		Slot:         500,
		Timestamp:    1_700_000_000_000,
		BaseSymbol:   "NEW",
	}
}

func TestEngine_Accept(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	opp := engine.Evaluate(acceptableEvent())

	if !opp.Accepted() {
		t.Fatalf("expected accept, rejected by %s", opp.RejectedBy)
	}

	if opp.Score <= 0 || opp.Score > 1 {
		t.Errorf("accepted score must be in (0,1], got %f", opp.Score)
	}

	if opp.RejectedBy != "" {
		t.Errorf("accepted opportunity must not name a rejecting rule, got %s", opp.RejectedBy)
	}

	if opp.DiscoveredAt == 0 {
		t.Error("DiscoveredAt must be set")
	}
}

func TestEngine_Deterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	ev := acceptableEvent()

	first := engine.Evaluate(ev)
	for i := 0; i < 10; i++ {
		again := engine.Evaluate(ev)
		if again.Verdict != first.Verdict || again.Score != first.Score || again.RejectedBy != first.RejectedBy {
			t.Fatalf("evaluation not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestEngine_RejectUnknownQuote(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := acceptableEvent()
	ev.QuoteMint = "unknownmint"
	// Allowlist must fire before the liquidity floor check
	ev.QuoteReserve = 0

	opp := engine.Evaluate(ev)

	if opp.Accepted() {
		t.Fatal("expected reject")
	}
	if opp.RejectedBy != "quote-allowlist" {
		t.Errorf("expected quote-allowlist rejection, got %s", opp.RejectedBy)
	}
	if opp.Score != 0 {
		t.Errorf("rejected score must be 0, got %f", opp.Score)
	}
}

func TestEngine_RejectLowLiquidity(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := acceptableEvent()
	ev.QuoteReserve = 1_000_000_000 // 1 SOL, below the 5 SOL floor

	opp := engine.Evaluate(ev)

	if opp.Accepted() {
		t.Fatal("expected reject")
	}
	if opp.RejectedBy != "min-liquidity" {
		t.Errorf("expected min-liquidity rejection, got %s", opp.RejectedBy)
	}
}

func TestEngine_RejectBlacklistedCreator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlacklistedCreators = []string{"ruggerAddr"}
	engine := NewEngine(cfg)

	ev := acceptableEvent()
	ev.Creator = "ruggerAddr"

	opp := engine.Evaluate(ev)

	if opp.Accepted() {
		t.Fatal("expected reject")
	}
	if opp.RejectedBy != "creator-blacklist" {
		t.Errorf("expected creator-blacklist rejection, got %s", opp.RejectedBy)
	}
}

func TestEngine_RejectGarbageSymbol(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	cases := []struct {
		name   string
		symbol string
	}{
		{"control bytes", "AB\x01C"},
		{"whitespace", "A B"},
		{"too long", "WAYTOOLONGSYMBOL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := acceptableEvent()
			ev.BaseSymbol = tc.symbol

			opp := engine.Evaluate(ev)
			if opp.Accepted() {
				t.Fatal("expected reject")
			}
			if opp.RejectedBy != "symbol-sanity" {
				t.Errorf("expected symbol-sanity rejection, got %s", opp.RejectedBy)
			}
		})
	}
}

func TestEngine_EmptySymbolPasses(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := acceptableEvent()
	ev.BaseSymbol = ""

	if opp := engine.Evaluate(ev); !opp.Accepted() {
		t.Errorf("missing symbol must pass, rejected by %s", opp.RejectedBy)
	}
}

func TestEngine_RejectCreatorConcentration(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := acceptableEvent()
	ev.CreatorShare = 0.8

	opp := engine.Evaluate(ev)

	if opp.Accepted() {
		t.Fatal("expected reject")
	}
	if opp.RejectedBy != "creator-concentration" {
		t.Errorf("expected creator-concentration rejection, got %s", opp.RejectedBy)
	}
}

func TestEngine_UnknownConcentrationPasses(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := acceptableEvent()
	ev.CreatorShare = 0

	if opp := engine.Evaluate(ev); !opp.Accepted() {
		t.Errorf("unknown creator share must pass, rejected by %s", opp.RejectedBy)
	}
}

func TestEngine_ScoreGrowsWithLiquidity(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	low := acceptableEvent()
	low.QuoteReserve = 6_000_000_000

	high := acceptableEvent()
	high.QuoteReserve = 60_000_000_000

	lowOpp := engine.Evaluate(low)
	highOpp := engine.Evaluate(high)

	if !lowOpp.Accepted() || !highOpp.Accepted() {
		t.Fatal("both events should be accepted")
	}

	if highOpp.Score <= lowOpp.Score {
		t.Errorf("score must grow with liquidity: low=%f high=%f", lowOpp.Score, highOpp.Score)
	}
}

func TestEngine_CreatorReputationAffectsScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CreatorScores = map[string]float64{
		"goodCreator": 1.0,
		"poorCreator": 0.0,
	}
	engine := NewEngine(cfg)

	good := acceptableEvent()
	good.Creator = "goodCreator"

	poor := acceptableEvent()
	poor.Creator = "poorCreator"

	goodOpp := engine.Evaluate(good)
	poorOpp := engine.Evaluate(poor)

	if goodOpp.Score <= poorOpp.Score {
		t.Errorf("reputation must affect score: good=%f poor=%f", goodOpp.Score, poorOpp.Score)
	}
}

func TestEngine_StablecoinDecimalsNormalized(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	// 2000 USDC at 6 decimals, above the 1000 USDC floor
	ev := acceptableEvent()
	ev.QuoteMint = USDCMint
	ev.QuoteReserve = 2_000_000_000

	opp := engine.Evaluate(ev)
	if !opp.Accepted() {
		t.Fatalf("expected accept, rejected by %s", opp.RejectedBy)
	}
}

func TestEngine_Rules(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	names := engine.Rules()
	expected := []string{
		"quote-allowlist",
		"min-liquidity",
		"creator-blacklist",
		"symbol-sanity",
		"creator-concentration",
	}

	if len(names) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(names))
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("rule %d: expected %s, got %s", i, want, names[i])
		}
	}
}
