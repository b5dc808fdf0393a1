package execution

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/notify"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
)

const (
	defaultWorkers             = 4
	defaultStalenessBound      = 3 * time.Second
	defaultRetryBudget         = 3
	defaultRetryBaseDelay      = 200 * time.Millisecond
	defaultRetryMaxDelay       = 2 * time.Second
	defaultOverallDeadline     = 10 * time.Second
	defaultConfirmDeadline     = 30 * time.Second
	defaultConfirmPollInterval = 500 * time.Millisecond
)

// Config tunes the execution engine.
type Config struct {
	// Workers is the number of concurrent attempt executors.
	Workers int

	// StalenessBound is the maximum event age at pickup. Older
	// opportunities are skipped without touching the network.
	StalenessBound time.Duration

	// RetryBudget is the number of submission retries after the first
	// attempt.
	RetryBudget int

	// RetryBaseDelay and RetryMaxDelay bound the submission backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// OverallDeadline caps one attempt from pickup to accepted
	// submission.
	OverallDeadline time.Duration

	// ConfirmDeadline caps the wait for on-chain confirmation after an
	// accepted submission.
	ConfirmDeadline time.Duration

	// ConfirmPollInterval is the signature status poll period.
	ConfirmPollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.StalenessBound <= 0 {
		c.StalenessBound = defaultStalenessBound
	}
	if c.RetryBudget < 0 {
		c.RetryBudget = defaultRetryBudget
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.OverallDeadline <= 0 {
		c.OverallDeadline = defaultOverallDeadline
	}
	if c.ConfirmDeadline <= 0 {
		c.ConfirmDeadline = defaultConfirmDeadline
	}
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = defaultConfirmPollInterval
	}
}

// Engine executes accepted opportunities: dedup against the seen-set,
// staleness gate, build+sign, bounded-retry submission, confirmation
// polling, terminal record. Every opportunity taken off the queue ends
// in exactly one terminal attempt record.
// AttemptSink receives terminal attempts for analytics. Failures are
// logged, never fatal.
type AttemptSink interface {
	Insert(ctx context.Context, attempt *domain.ExecutionAttempt) error
}

type Engine struct {
	cfg       Config
	state     storage.StateStore
	attempts  storage.AttemptStore // optional audit sink
	analytics AttemptSink          // optional analytics sink
	rpc       solana.RPCClient
	submitter Submitter
	builders  *BuilderSet
	notifier  *notify.Notifier

	// submitMu serializes submissions; the engine signs with one
	// keypair and concurrent sends would race over the same balance.
	submitMu sync.Mutex

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAttemptStore attaches an audit sink for terminal attempts.
// Insert failures are logged, never fatal.
func WithAttemptStore(store storage.AttemptStore) Option {
	return func(e *Engine) { e.attempts = store }
}

// WithAnalyticsSink attaches an additional analytics sink.
func WithAnalyticsSink(sink AttemptSink) Option {
	return func(e *Engine) { e.analytics = sink }
}

// WithSubmitter replaces the default single-RPC submission channel,
// e.g. with a fan-out over several endpoints.
func WithSubmitter(s Submitter) Option {
	return func(e *Engine) { e.submitter = s }
}

// WithNotifier attaches an operator notifier for terminal attempts.
// Delivery failures are logged, never fatal.
func WithNotifier(n *notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New creates an execution engine.
func New(state storage.StateStore, rpc solana.RPCClient, builders *BuilderSet, cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		cfg:       cfg,
		state:     state,
		rpc:       rpc,
		submitter: NewRPCSubmitter(rpc),
		builders:  builders,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run consumes opportunities until the channel closes, then drains.
// After ctx is cancelled, remaining queued opportunities are resolved
// as timed out without network calls so no pickup goes unrecorded.
func (e *Engine) Run(ctx context.Context, in <-chan *domain.Opportunity) error {
	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for opp := range in {
				e.Execute(ctx, opp)
			}
		}()
	}
	wg.Wait()
	return nil
}

// Execute runs one opportunity to a terminal outcome.
func (e *Engine) Execute(ctx context.Context, opp *domain.Opportunity) {
	if !opp.Accepted() {
		return
	}

	observability.TrackInFlight(1)
	defer observability.TrackInFlight(-1)

	started := e.now()
	attempt := &domain.ExecutionAttempt{
		AttemptID: uuid.NewString(),
		Pool:      opp.Event.Pool,
		BaseMint:  opp.Event.BaseMint,
		Score:     opp.Score,
		StartedAt: started.UnixMilli(),
	}

	e.resolve(attempt, e.run(ctx, opp, attempt))
}

// run executes the attempt body and returns its terminal outcome.
func (e *Engine) run(ctx context.Context, opp *domain.Opportunity, attempt *domain.ExecutionAttempt) domain.Outcome {
	if ctx.Err() != nil {
		attempt.LastError = "shutdown before pickup"
		return domain.OutcomeTimedOut
	}

	// At most one attempt per pool, ever
	newlySeen, err := e.state.MarkSeen(ctx, opp.Event.Pool)
	if err != nil {
		attempt.LastError = fmt.Sprintf("mark seen: %v", err)
		return domain.OutcomeFailed
	}
	if !newlySeen {
		return domain.OutcomeSkippedDuplicate
	}

	// Staleness gate, before any network call
	age := e.now().UnixMilli() - opp.Event.Timestamp
	if age > e.cfg.StalenessBound.Milliseconds() {
		attempt.LastError = fmt.Sprintf("event age %dms past bound", age)
		return domain.OutcomeSkippedStale
	}

	builder := e.builders.For(opp.Event.Program)
	if builder == nil {
		attempt.LastError = fmt.Sprintf("%v: %s", ErrNoBuilder, opp.Event.Program)
		return domain.OutcomeFailed
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.OverallDeadline)
	defer cancel()

	blockhash, err := e.rpc.GetLatestBlockhash(attemptCtx)
	if err != nil {
		attempt.LastError = fmt.Sprintf("get blockhash: %v", err)
		return domain.OutcomeFailed
	}

	tx, err := builder.BuildBuy(attemptCtx, opp.Event, blockhash.Blockhash)
	if err != nil {
		attempt.LastError = fmt.Sprintf("build: %v", err)
		return domain.OutcomeFailed
	}

	pickup := e.now()
	signature, err := e.submit(attemptCtx, tx, attempt)
	if err != nil {
		attempt.LastError = err.Error()
		return domain.OutcomeFailed
	}
	attempt.TxSignature = signature
	observability.RecordSubmitLatency(e.now().Sub(pickup).Seconds())

	log.Printf("[exec] submitted %s for pool %s (retries=%d)", signature, opp.Event.Pool, attempt.Retries)

	return e.confirm(ctx, signature, attempt)
}

// submit sends the transaction with bounded retries and exponential
// backoff. The budget and the overall deadline both cap the loop.
func (e *Engine) submit(ctx context.Context, tx *solana.SignedTransaction, attempt *domain.ExecutionAttempt) (string, error) {
	opts := &solana.SendOpts{SkipPreflight: true}

	var lastErr error
	for try := 0; try <= e.cfg.RetryBudget; try++ {
		if try > 0 {
			attempt.Retries++
			observability.RecordSubmitRetry()

			delay := e.cfg.RetryBaseDelay * time.Duration(1<<(try-1))
			if delay > e.cfg.RetryMaxDelay {
				delay = e.cfg.RetryMaxDelay
			}
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", fmt.Errorf("submit: %w (last: %v)", ctx.Err(), lastErr)
			}
		}

		e.submitMu.Lock()
		signature, err := e.submitter.Submit(ctx, tx.Base64(), opts)
		e.submitMu.Unlock()
		if err == nil {
			return signature, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("submit: %w (last: %v)", ctx.Err(), lastErr)
		}
	}

	return "", fmt.Errorf("submit exhausted %d retries: %w", e.cfg.RetryBudget, lastErr)
}

// confirm polls signature status until confirmation, on-chain failure
// or the confirmation deadline.
func (e *Engine) confirm(ctx context.Context, signature string, attempt *domain.ExecutionAttempt) domain.Outcome {
	submitted := e.now()
	deadline := time.NewTimer(e.cfg.ConfirmDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			attempt.LastError = "shutdown while awaiting confirmation"
			return domain.OutcomeTimedOut

		case <-deadline.C:
			attempt.LastError = "no confirmation before deadline"
			return domain.OutcomeTimedOut

		case <-ticker.C:
			status, err := e.submitter.PollStatus(ctx, signature)
			if err != nil {
				// Transient; the deadline bounds how long we keep trying
				continue
			}
			if status == nil {
				continue
			}
			if status.Failed() {
				attempt.LastError = fmt.Sprintf("transaction failed on chain: %v", status.Err)
				return domain.OutcomeFailed
			}
			if status.Confirmed() {
				observability.RecordConfirmLatency(e.now().Sub(submitted).Seconds())
				return domain.OutcomeFilled
			}
		}
	}
}

// resolve finalizes and records the attempt. Recording uses a fresh
// context so shutdown does not lose terminal records.
func (e *Engine) resolve(attempt *domain.ExecutionAttempt, outcome domain.Outcome) {
	attempt.Outcome = outcome
	attempt.FinishedAt = e.now().UnixMilli()

	observability.RecordAttemptOutcome(string(outcome))
	log.Printf("[exec] attempt %s pool=%s outcome=%s retries=%d err=%q",
		attempt.AttemptID, attempt.Pool, outcome, attempt.Retries, attempt.LastError)

	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.state.RecordAttempt(recordCtx, attempt); err != nil {
		log.Printf("[exec] record attempt %s: %v", attempt.AttemptID, err)
	}
	if e.attempts != nil {
		if err := e.attempts.Insert(recordCtx, attempt); err != nil {
			log.Printf("[exec] audit insert %s: %v", attempt.AttemptID, err)
		}
	}
	if e.analytics != nil {
		if err := e.analytics.Insert(recordCtx, attempt); err != nil {
			log.Printf("[exec] analytics insert %s: %v", attempt.AttemptID, err)
		}
	}
	if e.notifier != nil {
		title := fmt.Sprintf("Buy %s", outcome)
		msg := fmt.Sprintf("pool %s\nmint %s\nscore %.2f\nsig %s",
			attempt.Pool, attempt.BaseMint, attempt.Score, attempt.TxSignature)
		if err := e.notifier.Notify(recordCtx, string(outcome), title, msg); err != nil {
			log.Printf("[exec] notify %s: %v", attempt.AttemptID, err)
		}
	}
}
