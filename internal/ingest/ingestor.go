package ingest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
)

const (
	defaultBufferSize      = 1024
	defaultCatchUpPageSize = 1000
	defaultFetchRetries    = 3
	defaultFetchRetryDelay = 500 * time.Millisecond
)

// Config tunes the ingestor.
type Config struct {
	// BufferSize caps the outbound event channel. Sends block when the
	// consumer lags; ingest backpressure is lossless.
	BufferSize int

	// CatchUpPageSize is the getSignaturesForAddress page size.
	CatchUpPageSize int

	// FetchRetries and FetchRetryDelay control transaction fetch
	// retries during parsing.
	FetchRetries    int
	FetchRetryDelay time.Duration
}

// Ingestor turns program log subscriptions into an ordered stream of
// pool creation events. On start and after every reconnect it backfills
// from the persisted cursor before tailing live notifications, so a
// consumer sees each creation at least once and never observes the
// cursor move backwards.
type Ingestor struct {
	ws     solana.WSClient
	rpc    solana.RPCClient
	parser *Parser
	state  storage.StateStore
	cfg    Config

	// progress tracks the newest acknowledged entry per program. The
	// shared cursor only advances to the slowest program's position so
	// a crash cannot skip entries still queued from another
	// subscription.
	progressMu sync.Mutex
	progress   map[string]storage.Cursor

	out chan *domain.PoolEvent
}

// New creates an ingestor for the parser's registered programs.
func New(ws solana.WSClient, rpc solana.RPCClient, state storage.StateStore, cfg Config) *Ingestor {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.CatchUpPageSize <= 0 {
		cfg.CatchUpPageSize = defaultCatchUpPageSize
	}
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = defaultFetchRetries
	}
	if cfg.FetchRetryDelay <= 0 {
		cfg.FetchRetryDelay = defaultFetchRetryDelay
	}

	return &Ingestor{
		ws:       ws,
		rpc:      rpc,
		parser:   NewParser(),
		state:    state,
		cfg:      cfg,
		progress: make(map[string]storage.Cursor),
		out:      make(chan *domain.PoolEvent, cfg.BufferSize),
	}
}

// Events returns the outbound event channel. It is closed when Run
// returns.
func (i *Ingestor) Events() <-chan *domain.PoolEvent {
	return i.out
}

// QueueDepth reports the current outbound channel depth.
func (i *Ingestor) QueueDepth() int {
	return len(i.out)
}

// Run subscribes, backfills from the persisted cursor and then tails
// live notifications until the context is cancelled. The event channel
// is closed on return.
func (i *Ingestor) Run(ctx context.Context) error {
	defer close(i.out)

	programs := i.parser.Programs()

	// Resuming programs all start at the persisted cursor; each one
	// earns forward progress independently from there.
	cursor, err := i.state.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !cursor.IsZero() {
		i.progressMu.Lock()
		for _, program := range programs {
			i.progress[program] = cursor
		}
		i.progressMu.Unlock()
	}

	// Providers commonly allow one mentions address per subscription
	type taggedNotification struct {
		program string
		notif   solana.LogNotification
	}
	merged := make(chan taggedNotification, 1000)
	for _, program := range programs {
		logsCh, err := i.ws.SubscribeLogs(ctx, solana.LogsFilter{
			Mentions: []string{program},
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", program, err)
		}
		log.Printf("[ingest] subscribed to program %s", program)

		go func(program string, logsCh <-chan solana.LogNotification) {
			for notif := range logsCh {
				select {
				case merged <- taggedNotification{program: program, notif: notif}:
				case <-ctx.Done():
					return
				}
			}
		}(program, logsCh)
	}

	// Subscription is live, so anything between the cursor and now is
	// covered by either the backfill or the tail.
	if err := i.catchUp(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("catch up: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-i.ws.Reconnected():
			observability.RecordWSReconnect()
			log.Printf("[ingest] reconnected, backfilling from cursor")
			if err := i.catchUp(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[ingest] backfill failed: %v", err)
			}

		case tagged, ok := <-merged:
			if !ok {
				return nil
			}
			if err := i.processNotification(ctx, tagged.program, tagged.notif); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[ingest] process %s: %v", tagged.notif.Signature, err)
			}
		}
	}
}

// catchUp replays signatures between the persisted cursor and the
// present, oldest first.
func (i *Ingestor) catchUp(ctx context.Context) error {
	cursor, err := i.state.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	if cursor.IsZero() {
		// Cold start: nothing to replay, live tail only
		log.Printf("[ingest] cold start, no cursor to catch up from")
		return nil
	}

	type taggedSignature struct {
		program string
		sig     solana.SignatureInfo
	}
	var backlog []taggedSignature
	for _, program := range i.parser.Programs() {
		sigs, err := i.collectSignatures(ctx, program, cursor)
		if err != nil {
			return fmt.Errorf("collect signatures for %s: %w", program, err)
		}
		for _, sig := range sigs {
			backlog = append(backlog, taggedSignature{program: program, sig: sig})
		}
	}

	if len(backlog) == 0 {
		return nil
	}

	// Replay oldest first; RPC returns newest first
	sort.Slice(backlog, func(a, b int) bool {
		return backlog[a].sig.Slot < backlog[b].sig.Slot
	})

	observability.RecordCatchUpSignatures(len(backlog))
	log.Printf("[ingest] catching up %d signatures from slot %d", len(backlog), cursor.Slot)

	for _, entry := range backlog {
		if entry.sig.Err != nil {
			continue
		}
		if err := i.replaySignature(ctx, entry.program, entry.sig); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Leave the cursor where it is; the next backfill retries
			log.Printf("[ingest] replay %s: %v", entry.sig.Signature, err)
		}
	}

	return nil
}

// collectSignatures pages signatures for one program back to the
// cursor.
func (i *Ingestor) collectSignatures(ctx context.Context, program string, cursor storage.Cursor) ([]solana.SignatureInfo, error) {
	var collected []solana.SignatureInfo
	before := ""

	for {
		page, err := i.rpc.GetSignaturesForAddress(ctx, program, &solana.SignaturesOpts{
			Before: before,
			Until:  cursor.Signature,
			Limit:  i.cfg.CatchUpPageSize,
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, sig := range page {
			// The until bound is signature-based; guard by slot too in
			// case the node no longer knows the cursor signature
			if sig.Slot < cursor.Slot {
				continue
			}
			if sig.Signature == cursor.Signature {
				continue
			}
			collected = append(collected, sig)
		}

		if len(page) < i.cfg.CatchUpPageSize {
			break
		}
		before = page[len(page)-1].Signature
	}

	return collected, nil
}

// replaySignature fetches and processes one historical transaction.
func (i *Ingestor) replaySignature(ctx context.Context, program string, sig solana.SignatureInfo) error {
	tx, err := i.fetchTransaction(ctx, sig.Signature)
	if err != nil {
		return err
	}
	if tx == nil || tx.Meta == nil {
		// Node lost it; acknowledge and move on
		return i.advance(ctx, program, sig.Slot, sig.Signature)
	}
	if tx.Meta.Err != nil {
		return i.advance(ctx, program, sig.Slot, sig.Signature)
	}

	// Unknown block time stays zero; downstream age checks then treat
	// the event as arbitrarily old rather than inventing a time.
	var timestamp int64
	if sig.BlockTime != nil {
		timestamp = *sig.BlockTime * 1000
	} else if tx.BlockTime != 0 {
		timestamp = tx.BlockTime * 1000
	}

	var accountKeys []string
	if tx.Message != nil {
		accountKeys = tx.Message.AccountKeys
	}

	events := i.parser.ParsePoolCreation(tx.Meta.LogMessages, accountKeys, sig.Signature, sig.Slot, timestamp)
	return i.emit(ctx, program, events, sig.Slot, sig.Signature)
}

// processNotification handles one live log notification.
func (i *Ingestor) processNotification(ctx context.Context, program string, notif solana.LogNotification) error {
	observability.UpdateHighestSlot(notif.Slot)

	if notif.Err != nil {
		// Failed transaction; acknowledged, nothing to parse
		return i.advance(ctx, program, notif.Slot, notif.Signature)
	}

	timestamp := time.Now().UnixMilli()

	var accountKeys []string
	if i.parser.NeedsAccountKeys(notif.Logs) {
		tx, err := i.fetchTransaction(ctx, notif.Signature)
		if err != nil || tx == nil {
			// Transient: skip without advancing so the next backfill
			// picks the transaction up again
			observability.RecordMalformedLog("fetch-failed")
			return fmt.Errorf("fetch transaction: %w", err)
		}
		if tx.Message != nil {
			accountKeys = tx.Message.AccountKeys
		}
		if tx.BlockTime != 0 {
			timestamp = tx.BlockTime * 1000
		}
	}

	events := i.parser.ParsePoolCreation(notif.Logs, accountKeys, notif.Signature, notif.Slot, timestamp)
	return i.emit(ctx, program, events, notif.Slot, notif.Signature)
}

// emit pushes events downstream in arrival order, then advances the
// cursor. Zero events is an acknowledged entry (not a pool creation)
// and still advances.
func (i *Ingestor) emit(ctx context.Context, program string, events []*domain.PoolEvent, slot int64, signature string) error {
	for _, ev := range events {
		select {
		case i.out <- ev:
			observability.RecordPoolEventParsed(ev.Program)
			observability.RecordEventTimestamp(ev.Timestamp)
			log.Printf("[ingest] pool %s base=%s quote=%s program=%s slot=%d", ev.Pool, ev.BaseMint, ev.QuoteMint, ev.Program, ev.Slot)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return i.advance(ctx, program, slot, signature)
}

// advance records per-program progress and moves the shared cursor to
// the position of the slowest program that has acknowledged anything.
// Programs with no entries since start do not hold the cursor back.
func (i *Ingestor) advance(ctx context.Context, program string, slot int64, signature string) error {
	next := storage.Cursor{Slot: slot, Signature: signature}

	i.progressMu.Lock()
	if cur, ok := i.progress[program]; !ok || cur.Before(next) {
		i.progress[program] = next
	}
	trailing := i.progress[program]
	for _, cur := range i.progress {
		if cur.Before(trailing) {
			trailing = cur
		}
	}
	i.progressMu.Unlock()

	return i.state.Advance(ctx, trailing)
}

// fetchTransaction fetches a transaction with exponential backoff
// retry.
func (i *Ingestor) fetchTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < i.cfg.FetchRetries; attempt++ {
		tx, err := i.rpc.GetTransaction(ctx, signature)
		if err == nil {
			return tx, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := i.cfg.FetchRetryDelay * time.Duration(1<<attempt)
		log.Printf("[ingest] retry %d/%d for GetTransaction %s after %v: %v", attempt+1, i.cfg.FetchRetries, signature, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
