package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satyamsundaram01/confsync/internal/descriptor"
	"github.com/satyamsundaram01/confsync/internal/logger"
	"github.com/satyamsundaram01/confsync/internal/manifest"
	"github.com/satyamsundaram01/confsync/internal/metadata"
	"github.com/satyamsundaram01/confsync/internal/state"
	redisstore "github.com/satyamsundaram01/confsync/internal/store/redis"
)

// MetadataFetcher resolves the host's identity and tags.
type MetadataFetcher interface {
	Fetch(ctx context.Context) (*metadata.Result, error)
}

// TickerFactory produces the tick channel driving the sync loop. The
// default wraps time.Ticker; tests inject their own channel to run cycles
// deterministically.
type TickerFactory func(interval time.Duration) (<-chan time.Time, func())

func defaultTicker(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// CycleSummary is the observable outcome of one sync cycle, kept for the
// status endpoint and logs. It carries no control-flow meaning.
type CycleSummary struct {
	StartedAt      time.Time `json:"started_at"`
	Duration       string    `json:"duration"`
	MetadataSource string    `json:"metadata_source,omitempty"`
	Business       string    `json:"business,omitempty"`
	FabTag         string    `json:"fab_tag,omitempty"`
	ResolvedKeys   int       `json:"resolved_keys"`
	Materialized   int       `json:"materialized"`
	Skipped        int       `json:"skipped"`
	Invalid        int       `json:"invalid"`
	Pruned         int       `json:"pruned"`
	Forced         bool      `json:"forced,omitempty"`
	SyncError      string    `json:"sync_error,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// SyncRunner drives the periodic sync cycle: prune, store sync, metadata,
// resolution, materialization. Cycles run one at a time to completion; an
// overrunning cycle simply delays the next tick. Step failures are scoped
// to the cycle, never to the loop.
type SyncRunner struct {
	fetcher  MetadataFetcher
	loader   *manifest.Loader
	writer   *descriptor.Writer
	pruner   *Pruner
	syncer   StoreSyncer
	store    *redisstore.Store
	index    *state.Index
	logger   logger.Logger
	interval time.Duration

	snapshotPath string
	newTicker    TickerFactory

	stopCh         chan struct{}
	syncTrigger    chan struct{}
	refreshTrigger chan struct{}

	mu   sync.RWMutex
	last *CycleSummary
}

// SyncRunnerOptions wires the runner's collaborators.
type SyncRunnerOptions struct {
	Fetcher        MetadataFetcher
	Loader         *manifest.Loader
	Writer         *descriptor.Writer
	Pruner         *Pruner
	Syncer         StoreSyncer
	Store          *redisstore.Store // nil = record persistence disabled
	Index          *state.Index
	Interval       time.Duration
	SnapshotPath   string
	Ticker         TickerFactory // nil = wall-clock time.Ticker
	SyncTrigger    chan struct{}
	RefreshTrigger chan struct{}
}

// NewSyncRunner creates the periodic sync runner
func NewSyncRunner(opts SyncRunnerOptions, log logger.Logger) *SyncRunner {
	ticker := opts.Ticker
	if ticker == nil {
		ticker = defaultTicker
	}
	return &SyncRunner{
		fetcher:        opts.Fetcher,
		loader:         opts.Loader,
		writer:         opts.Writer,
		pruner:         opts.Pruner,
		syncer:         opts.Syncer,
		store:          opts.Store,
		index:          opts.Index,
		logger:         log,
		interval:       opts.Interval,
		snapshotPath:   opts.SnapshotPath,
		newTicker:      ticker,
		stopCh:         make(chan struct{}),
		syncTrigger:    opts.SyncTrigger,
		refreshTrigger: opts.RefreshTrigger,
	}
}

// Start runs one cycle immediately, then keeps cycling on every tick or
// manual trigger until Stop or ctx cancellation.
func (sr *SyncRunner) Start(ctx context.Context) error {
	sr.cycle(ctx, false)

	tick, stop := sr.newTicker(sr.interval)
	go func() {
		defer stop()
		for {
			select {
			case <-tick:
				sr.cycle(ctx, false)
			case <-sr.syncTrigger:
				sr.logger.Info("manual sync cycle triggered")
				sr.cycle(ctx, false)
			case <-sr.refreshTrigger:
				sr.logger.Info("forced refresh triggered, descriptors will be rewritten")
				sr.cycle(ctx, true)
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the runner
func (sr *SyncRunner) Stop() {
	close(sr.stopCh)
}

// LastCycle returns the summary of the most recent cycle, nil if none ran.
func (sr *SyncRunner) LastCycle() *CycleSummary {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if sr.last == nil {
		return nil
	}
	cp := *sr.last
	return &cp
}

func (sr *SyncRunner) cycle(ctx context.Context, force bool) {
	summary, err := sr.RunCycle(ctx, force)
	if err != nil {
		sr.logger.Error("sync cycle aborted", logger.Error(err))
		return
	}
	sr.logger.Info("sync cycle completed",
		logger.String("business", summary.Business),
		logger.String("fab_tag", summary.FabTag),
		logger.Int("resolved", summary.ResolvedKeys),
		logger.Int("materialized", summary.Materialized),
		logger.Int("skipped", summary.Skipped),
		logger.Int("invalid", summary.Invalid),
		logger.Int("pruned", summary.Pruned))
}

// RunCycle executes one full sync cycle. The returned summary is recorded
// even when the cycle aborts, so the status endpoint reflects failures.
func (sr *SyncRunner) RunCycle(ctx context.Context, force bool) (*CycleSummary, error) {
	start := time.Now()
	summary := &CycleSummary{StartedAt: start, Forced: force}
	defer func() {
		summary.Duration = time.Since(start).String()
		sr.mu.Lock()
		sr.last = summary
		sr.mu.Unlock()
	}()

	// 1. Remove empty descriptors left by keys without upstream values.
	pruned, err := sr.pruner.Prune(ctx)
	if err != nil {
		sr.logger.Warn("descriptor pruning failed", logger.Error(err))
	}
	summary.Pruned = pruned

	// 2. One-shot store sync. Abnormal exit is informational only; the
	// cycle proceeds with whatever local data exists.
	if err := sr.syncer.SyncOnce(ctx); err != nil {
		summary.SyncError = err.Error()
		sr.logger.Warn("store sync failed, continuing with local data",
			logger.Error(err))
	} else {
		sr.logger.Info("store sync completed")
	}

	if force {
		sr.index.Reset()
		if sr.store != nil {
			if err := sr.store.FlushRecords(ctx); err != nil {
				sr.logger.Warn("failed to flush records from redis",
					logger.Error(err))
			}
		}
	}

	// 3. Host metadata. No metadata means no resolution this cycle; the
	// next tick retries from scratch.
	res, err := sr.fetcher.Fetch(ctx)
	if err != nil {
		summary.Error = err.Error()
		return summary, fmt.Errorf("metadata fetch failed: %w", err)
	}
	summary.MetadataSource = res.Source.String()
	summary.Business = res.Meta.Business()
	summary.FabTag = res.Meta.FabTag()

	if err := metadata.WriteSnapshot(sr.snapshotPath, res.Meta); err != nil {
		sr.logger.Warn("failed to write tags snapshot", logger.Error(err))
	}

	if err := sr.writer.EnsureTemplate(); err != nil {
		sr.logger.Warn("failed to ensure generic template", logger.Error(err))
	}

	// 4. Resolution and materialization.
	m, err := sr.loader.Load()
	if err != nil {
		summary.Error = err.Error()
		return summary, fmt.Errorf("manifest unreadable: %w", err)
	}

	keys := manifest.Resolve(m, summary.Business, summary.FabTag)
	summary.ResolvedKeys = len(keys)

	for _, key := range keys {
		rec, wrote, err := sr.writer.Materialize(key, force)
		switch {
		case errors.Is(err, descriptor.ErrInvalidKeyPath):
			summary.Invalid++
			sr.logger.Warn("invalid key path, skipping", logger.Error(err))
		case err != nil:
			summary.Invalid++
			sr.logger.Error("failed to materialize descriptor",
				logger.String("key", key),
				logger.Error(err))
		case rec == nil:
			// Blank key, nothing to do.
		case wrote:
			summary.Materialized++
		default:
			summary.Skipped++
		}
	}

	// 5. Persist records (best effort).
	if sr.store != nil {
		if err := sr.store.SaveRecordsMany(ctx, sr.index.All()); err != nil {
			sr.logger.Warn("failed to save records to redis", logger.Error(err))
		}
	}

	sr.index.MarkCycle(time.Now())
	return summary, nil
}
