package coordinator

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/filter"
	"solana-sniper/internal/ingest"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
)

const (
	defaultExecQueueSize      = 256
	defaultCheckpointInterval = 5 * time.Second
	defaultStatsInterval      = time.Second
)

// Config tunes the pipeline coordinator.
type Config struct {
	// ExecQueueSize caps the filter to execution queue. A full queue
	// drops the oldest opportunity; fresh candidates beat stale ones.
	ExecQueueSize int

	// CheckpointInterval is the periodic state checkpoint cadence.
	CheckpointInterval time.Duration

	// StatsInterval is the queue depth gauge refresh cadence.
	StatsInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ExecQueueSize <= 0 {
		c.ExecQueueSize = defaultExecQueueSize
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = defaultCheckpointInterval
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}
}

// Coordinator wires ingestor, filter and execution engine into one
// pipeline and owns the channels between them. The ingest side is
// lossless and blocking; the execution side is bounded and sheds the
// oldest queued opportunity under pressure.
type Coordinator struct {
	ingestor *ingest.Ingestor
	filter   *filter.Engine
	exec     *execution.Engine
	state    storage.StateStore
	cfg      Config
}

// New creates a coordinator over the three pipeline stages.
func New(ingestor *ingest.Ingestor, filterEngine *filter.Engine, execEngine *execution.Engine, state storage.StateStore, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		ingestor: ingestor,
		filter:   filterEngine,
		exec:     execEngine,
		state:    state,
		cfg:      cfg,
	}
}

// Run drives the pipeline until ctx is cancelled, then drains: the
// ingestor closes its stream, the filter stage flushes, the execution
// engine resolves everything still queued, and a final checkpoint
// persists the cursor and seen-set.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	execCh := make(chan *domain.Opportunity, c.cfg.ExecQueueSize)

	g.Go(func() error {
		return c.ingestor.Run(gctx)
	})

	g.Go(func() error {
		defer close(execCh)
		for ev := range c.ingestor.Events() {
			c.evaluate(ev, execCh)
		}
		return nil
	})

	g.Go(func() error {
		if c.exec == nil {
			// Index-only runs have no execution stage; accepted
			// opportunities are evaluated, counted and discarded
			for range execCh {
			}
			return nil
		}
		return c.exec.Run(gctx, execCh)
	})

	g.Go(func() error {
		return c.checkpointLoop(gctx)
	})

	g.Go(func() error {
		c.statsLoop(gctx, execCh)
		return nil
	})

	err := g.Wait()

	// Final checkpoint after the drain; nothing mutates state anymore
	c.checkpoint()

	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// evaluate runs the filter and dispatches accepted opportunities.
func (c *Coordinator) evaluate(ev *domain.PoolEvent, execCh chan *domain.Opportunity) {
	opp := c.filter.Evaluate(ev)
	observability.RecordVerdict(opp.Accepted(), opp.RejectedBy, opp.Score)

	if !opp.Accepted() {
		log.Printf("[coord] rejected pool %s by %s", ev.Pool, opp.RejectedBy)
		return
	}
	log.Printf("[coord] accepted pool %s score=%.3f", ev.Pool, opp.Score)

	select {
	case execCh <- opp:
		return
	default:
	}

	// Queue full: evict the oldest queued opportunity, it is the most
	// stale and the least likely to still be worth executing
	select {
	case dropped := <-execCh:
		observability.RecordDroppedOpportunity()
		log.Printf("[coord] dropped queued pool %s for %s", dropped.Event.Pool, ev.Pool)
	default:
	}

	select {
	case execCh <- opp:
	default:
		observability.RecordDroppedOpportunity()
		log.Printf("[coord] dropped pool %s, execution queue full", ev.Pool)
	}
}

func (c *Coordinator) checkpointLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.checkpoint()
		}
	}
}

func (c *Coordinator) checkpoint() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := c.state.Checkpoint(ctx)
	observability.RecordCheckpoint(time.Since(start).Seconds(), err)
	if err != nil {
		log.Printf("[coord] checkpoint failed: %v", err)
	}
}

func (c *Coordinator) statsLoop(ctx context.Context, execCh chan *domain.Opportunity) {
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.UpdateQueueDepths(c.ingestor.QueueDepth(), len(execCh))
			observability.AddUptime(c.cfg.StatsInterval.Seconds())
		}
	}
}
