package execution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/solana/stub"
	"solana-sniper/internal/storage/memory"
)

func TestRPCSubmitter_Passthrough(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("stubsig-0", confirmedStatus())
	sub := NewRPCSubmitter(rpc)

	ctx := context.Background()
	signature, err := sub.Submit(ctx, "dGVzdA==", nil)
	if err != nil {
		t.Fatal(err)
	}
	if signature != "stubsig-0" {
		t.Errorf("expected stubsig-0, got %s", signature)
	}

	status, err := sub.PollStatus(ctx, signature)
	if err != nil {
		t.Fatal(err)
	}
	if status == nil || !status.Confirmed() {
		t.Errorf("expected confirmed status, got %+v", status)
	}

	unknown, err := sub.PollStatus(ctx, "nosuchsig")
	if err != nil {
		t.Fatal(err)
	}
	if unknown != nil {
		t.Errorf("expected nil status for unknown signature, got %+v", unknown)
	}
}

func TestFanoutSubmitter_FirstSuccessWins(t *testing.T) {
	failing := stub.NewRPCClient()
	failing.SendErrs = []error{errors.New("node overloaded")}
	healthy := stub.NewRPCClient()

	sub, err := NewFanoutSubmitter(failing, healthy)
	if err != nil {
		t.Fatal(err)
	}

	signature, err := sub.Submit(context.Background(), "dGVzdA==", nil)
	if err != nil {
		t.Fatal(err)
	}
	if signature != "stubsig-0" {
		t.Errorf("expected stubsig-0, got %s", signature)
	}
	if healthy.SentCount() != 1 {
		t.Errorf("expected 1 accepted send on healthy endpoint, got %d", healthy.SentCount())
	}
	if failing.SentCount() != 0 {
		t.Errorf("expected no accepted send on failing endpoint, got %d", failing.SentCount())
	}
}

func TestFanoutSubmitter_AllEndpointsFail(t *testing.T) {
	a := stub.NewRPCClient()
	a.SendErrs = []error{errors.New("node a down")}
	b := stub.NewRPCClient()
	b.SendErrs = []error{errors.New("node b down")}

	sub, err := NewFanoutSubmitter(a, b)
	if err != nil {
		t.Fatal(err)
	}

	_, err = sub.Submit(context.Background(), "dGVzdA==", nil)
	if err == nil {
		t.Fatal("expected error when every endpoint fails")
	}
	if !strings.Contains(err.Error(), "all 2 endpoints failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFanoutSubmitter_PollStatusFallsThrough(t *testing.T) {
	lagging := stub.NewRPCClient()
	synced := stub.NewRPCClient()
	synced.SetStatus("stubsig-0", confirmedStatus())

	sub, err := NewFanoutSubmitter(lagging, synced)
	if err != nil {
		t.Fatal(err)
	}

	status, err := sub.PollStatus(context.Background(), "stubsig-0")
	if err != nil {
		t.Fatal(err)
	}
	if status == nil || !status.Confirmed() {
		t.Errorf("expected confirmed status from the synced endpoint, got %+v", status)
	}
}

func TestFanoutSubmitter_RequiresEndpoint(t *testing.T) {
	if _, err := NewFanoutSubmitter(); err == nil {
		t.Fatal("expected error for empty endpoint list")
	}
}

func TestEngine_FillsThroughFanoutSubmitter(t *testing.T) {
	primary := stub.NewRPCClient()
	primary.SendErrs = []error{errors.New("primary down")}
	secondary := stub.NewRPCClient()
	secondary.SetStatus("stubsig-0", confirmedStatus())

	sub, err := NewFanoutSubmitter(primary, secondary)
	if err != nil {
		t.Fatal(err)
	}

	signer, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	builder, err := NewPumpFunBuilder(signer, PumpFunBuilderConfig{
		SpendLamports: 1_000_000_000,
		SlippageBps:   500,
	})
	if err != nil {
		t.Fatal(err)
	}

	state := memory.NewStateStore()
	engine := New(state, primary, NewBuilderSet(builder), testConfig(), WithSubmitter(sub))

	engine.Execute(context.Background(), acceptedOpportunity(t))

	attempt := singleAttempt(t, state)
	if attempt.Outcome != domain.OutcomeFilled {
		t.Fatalf("expected FILLED via fanout, got %s (%s)", attempt.Outcome, attempt.LastError)
	}
	if attempt.TxSignature != "stubsig-0" {
		t.Errorf("expected winning signature recorded, got %s", attempt.TxSignature)
	}
	if secondary.SentCount() != 1 {
		t.Errorf("expected the surviving endpoint to carry the send, got %d", secondary.SentCount())
	}
}
