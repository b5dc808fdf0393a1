package coordinator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/filter"
	"solana-sniper/internal/ingest"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/solana/stub"
	"solana-sniper/internal/storage/memory"
)

type fakeWSClient struct {
	mu          sync.Mutex
	channels    map[string]chan solana.LogNotification
	reconnected chan struct{}
}

func newFakeWSClient() *fakeWSClient {
	return &fakeWSClient{
		channels:    make(map[string]chan solana.LogNotification),
		reconnected: make(chan struct{}, 1),
	}
}

func (f *fakeWSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan solana.LogNotification, 100)
	f.channels[filter.Mentions[0]] = ch
	return ch, nil
}

func (f *fakeWSClient) Reconnected() <-chan struct{} { return f.reconnected }

func (f *fakeWSClient) Close() error { return nil }

func (f *fakeWSClient) notify(t *testing.T, program string, notif solana.LogNotification) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		ch, ok := f.channels[program]
		f.mu.Unlock()
		if ok {
			ch <- notif
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no subscription for program %s", program)
}

// pumpCreateLogs builds a pump.fun create notification for the given
// mint, curve and creator keys.
func pumpCreateLogs(symbol string, mint, curve, user solana.PublicKey) []string {
	var buf bytes.Buffer
	buf.Write([]byte{27, 114, 169, 77, 222, 235, 99, 118})

	writeStr := func(s string) {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf.Write(lenBuf[:])
		buf.WriteString(s)
	}
	writeStr("Test Token")
	writeStr(symbol)
	writeStr("uri")
	buf.Write(mint[:])
	buf.Write(curve[:])
	buf.Write(user[:])

	data := base64.StdEncoding.EncodeToString(buf.Bytes())
	return []string{
		"Program " + ingest.PumpFun + " invoke [1]",
		"Program log: Instruction: Create",
		"Program data: " + data,
		"Program " + ingest.PumpFun + " success",
	}
}

func testCoordinator(t *testing.T, ws *fakeWSClient, rpc solana.RPCClient, state *memory.StateStore) *Coordinator {
	t.Helper()

	ingestor := ingest.New(ws, rpc, state, ingest.Config{})

	signer, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	builder, err := execution.NewPumpFunBuilder(signer, execution.PumpFunBuilderConfig{
		SpendLamports: 1_000_000_000,
		SlippageBps:   500,
	})
	if err != nil {
		t.Fatal(err)
	}
	execEngine := execution.New(state, rpc, execution.NewBuilderSet(builder), execution.Config{
		Workers:             2,
		RetryBaseDelay:      time.Millisecond,
		ConfirmPollInterval: 5 * time.Millisecond,
	})

	return New(ingestor, filter.NewEngine(filter.DefaultConfig()), execEngine, state, Config{
		CheckpointInterval: 20 * time.Millisecond,
		StatsInterval:      20 * time.Millisecond,
	})
}

func TestCoordinator_EndToEndFill(t *testing.T) {
	ws := newFakeWSClient()
	rpc := stub.NewRPCClient()
	rpc.SetStatus("stubsig-0", &solana.SignatureStatus{ConfirmationStatus: "confirmed"})
	state := memory.NewStateStore()

	coord := testCoordinator(t, ws, rpc, state)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	mint, _ := solana.GenerateKeypair()
	curve, _ := solana.GenerateKeypair()
	user, _ := solana.GenerateKeypair()
	ws.notify(t, ingest.PumpFun, solana.LogNotification{
		Signature: "createsig",
		Slot:      400,
		Logs:      pumpCreateLogs("NEW", mint.PublicKey(), curve.PublicKey(), user.PublicKey()),
	})

	deadline := time.Now().Add(3 * time.Second)
	var attempts []*domain.ExecutionAttempt
	for time.Now().Before(deadline) {
		attempts = state.Attempts()
		if len(attempts) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Outcome != domain.OutcomeFilled {
		t.Fatalf("expected FILLED, got %s (%s)", attempts[0].Outcome, attempts[0].LastError)
	}
	if attempts[0].Pool != curve.PublicKey().String() {
		t.Errorf("expected pool %s, got %s", curve.PublicKey().String(), attempts[0].Pool)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("coordinator did not shut down")
	}

	cursor, err := state.Cursor(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cursor.Signature != "createsig" {
		t.Errorf("expected cursor at createsig, got %s", cursor.Signature)
	}
}

func TestCoordinator_RejectedEventNotExecuted(t *testing.T) {
	ws := newFakeWSClient()
	rpc := stub.NewRPCClient()
	state := memory.NewStateStore()

	coord := testCoordinator(t, ws, rpc, state)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	mint, _ := solana.GenerateKeypair()
	curve, _ := solana.GenerateKeypair()
	user, _ := solana.GenerateKeypair()
	// Symbol with control bytes fails the sanity rule
	ws.notify(t, ingest.PumpFun, solana.LogNotification{
		Signature: "badsig",
		Slot:      401,
		Logs:      pumpCreateLogs("BA\x01D", mint.PublicKey(), curve.PublicKey(), user.PublicKey()),
	})

	// The event must reach the filter and be rejected; the cursor
	// still advances past it
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cursor, err := state.Cursor(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if cursor.Signature == "badsig" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	if n := len(state.Attempts()); n != 0 {
		t.Errorf("expected no attempts for rejected event, got %d", n)
	}
	if rpc.SentCount() != 0 {
		t.Errorf("expected no submissions, got %d", rpc.SentCount())
	}
}

func TestCoordinator_DropOldestWhenExecQueueFull(t *testing.T) {
	state := memory.NewStateStore()
	coord := New(nil, filter.NewEngine(filter.DefaultConfig()), nil, state, Config{ExecQueueSize: 1})

	execCh := make(chan *domain.Opportunity, 1)

	mkEvent := func(pool string) *domain.PoolEvent {
		return &domain.PoolEvent{
			Pool:         pool,
			BaseMint:     "mint",
			QuoteMint:    filter.WSOLMint,
			QuoteReserve: 30_000_000_000,
			BaseReserve:  1_000_000,
			BaseSymbol:   "OK",
			Timestamp:    time.Now().UnixMilli(),
		}
	}

	coord.evaluate(mkEvent("pool-1"), execCh)
	coord.evaluate(mkEvent("pool-2"), execCh)

	select {
	case opp := <-execCh:
		if opp.Event.Pool != "pool-2" {
			t.Errorf("expected the newest opportunity queued, got %s", opp.Event.Pool)
		}
	default:
		t.Fatal("expected one queued opportunity")
	}
}
