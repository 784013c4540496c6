// Package scheduler runs the periodic background tasks: fetch cycles,
// stale-row cleanup and enrichment reprocessing.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pumpwatch/internal/fetcher"
	"pumpwatch/internal/observability"
	"pumpwatch/internal/storage"
)

// Task names reported by Status and used in log fields.
const (
	TaskFetch     = "fetch"
	TaskCleanup   = "cleanup"
	TaskReprocess = "reprocess"
	TaskDiscover  = "discover"
)

// ErrAlreadyRunning is returned by the trigger methods while the same task
// is still in flight.
var ErrAlreadyRunning = errors.New("task already running")

// Defaults for the loop intervals.
const (
	DefaultRefreshInterval   = 10 * time.Minute
	DefaultCleanupInterval   = 24 * time.Hour
	DefaultReprocessInterval = 30 * time.Minute
	defaultReprocessLimit    = 20
)

// Pipeline is the ingestion surface the scheduler drives.
type Pipeline interface {
	RunCycle(ctx context.Context) (*fetcher.CycleStats, error)
	Discover(ctx context.Context) (*fetcher.CycleStats, error)
	Reprocess(ctx context.Context, limit int) (int, error)
}

// Options configures a Scheduler.
type Options struct {
	Pipeline Pipeline
	Store    storage.TokenStore
	Cutoffs  storage.StaleCutoffs // zero value means DefaultStaleCutoffs

	RefreshInterval   time.Duration // default 10m
	CleanupInterval   time.Duration // default 24h
	ReprocessInterval time.Duration // default 30m
	ReprocessLimit    int           // default 20
}

// Scheduler owns the three background loops. The loops are mutually
// uncoordinated: a cleanup pass may overlap a fetch pass, which is fine
// because deletes target stale rows while fetches write fresh ones, and the
// same address resolves last-write-wins.
type Scheduler struct {
	pipeline Pipeline
	store    storage.TokenStore
	cutoffs  storage.StaleCutoffs

	refreshInterval   time.Duration
	cleanupInterval   time.Duration
	reprocessInterval time.Duration
	reprocessLimit    int

	states map[string]*taskState

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler with defaults applied.
func New(opts Options) *Scheduler {
	refreshInterval := opts.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	cleanupInterval := opts.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	reprocessInterval := opts.ReprocessInterval
	if reprocessInterval <= 0 {
		reprocessInterval = DefaultReprocessInterval
	}
	reprocessLimit := opts.ReprocessLimit
	if reprocessLimit <= 0 {
		reprocessLimit = defaultReprocessLimit
	}
	cutoffs := opts.Cutoffs
	if cutoffs == (storage.StaleCutoffs{}) {
		cutoffs = storage.DefaultStaleCutoffs()
	}

	return &Scheduler{
		pipeline:          opts.Pipeline,
		store:             opts.Store,
		cutoffs:           cutoffs,
		refreshInterval:   refreshInterval,
		cleanupInterval:   cleanupInterval,
		reprocessInterval: reprocessInterval,
		reprocessLimit:    reprocessLimit,
		states: map[string]*taskState{
			TaskFetch:     {},
			TaskCleanup:   {},
			TaskReprocess: {},
			TaskDiscover:  {},
		},
	}
}

// Start launches the background loops. The fetch loop runs once immediately,
// cleanup and reprocess wait for their first tick. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(3)
	go s.loop(ctx, TaskFetch, s.refreshInterval, true, s.runFetch)
	go s.loop(ctx, TaskCleanup, s.cleanupInterval, false, s.runCleanup)
	go s.loop(ctx, TaskReprocess, s.reprocessInterval, false, s.runReprocess)

	log.Info().
		Dur("refresh_interval", s.refreshInterval).
		Dur("cleanup_interval", s.cleanupInterval).
		Dur("reprocess_interval", s.reprocessInterval).
		Msg("scheduler started")
}

// Stop halts the loops and waits for in-flight runs to finish. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

// TriggerFetch runs one fetch cycle synchronously.
func (s *Scheduler) TriggerFetch(ctx context.Context) (*fetcher.CycleStats, error) {
	state := s.states[TaskFetch]
	if !state.begin() {
		return nil, ErrAlreadyRunning
	}
	defer func() { state.end(time.Now()) }()

	stats, err := s.pipeline.RunCycle(ctx)
	s.updateTokenGauge(ctx)
	return stats, err
}

// TriggerDiscover runs one supplementary discovery pass synchronously.
func (s *Scheduler) TriggerDiscover(ctx context.Context) (*fetcher.CycleStats, error) {
	state := s.states[TaskDiscover]
	if !state.begin() {
		return nil, ErrAlreadyRunning
	}
	defer func() { state.end(time.Now()) }()

	stats, err := s.pipeline.Discover(ctx)
	s.updateTokenGauge(ctx)
	return stats, err
}

// TriggerCleanup runs one stale-row cleanup synchronously.
func (s *Scheduler) TriggerCleanup(ctx context.Context) (*storage.CleanupStats, error) {
	state := s.states[TaskCleanup]
	if !state.begin() {
		return nil, ErrAlreadyRunning
	}
	defer func() { state.end(time.Now()) }()

	return s.cleanup(ctx)
}

// TaskStatus is one background task's view for the status endpoint.
type TaskStatus struct {
	Running bool
	LastRun time.Time // zero until the first completed run
}

// Status reports per-task running state and last completion time.
func (s *Scheduler) Status() map[string]TaskStatus {
	out := make(map[string]TaskStatus, len(s.states))
	for name, state := range s.states {
		running, lastRun := state.snapshot()
		out[name] = TaskStatus{Running: running, LastRun: lastRun}
	}
	return out
}

// loop drives one task on a fixed interval until the context is cancelled.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, immediate bool, run func(context.Context)) {
	defer s.wg.Done()

	if immediate {
		s.runGuarded(ctx, name, run)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runGuarded(ctx, name, run)
		}
	}
}

// runGuarded skips the tick while the previous run is still in flight.
func (s *Scheduler) runGuarded(ctx context.Context, name string, run func(context.Context)) {
	state := s.states[name]
	if !state.begin() {
		log.Warn().Str("task", name).Msg("previous run still in flight, skipping tick")
		return
	}
	defer func() { state.end(time.Now()) }()

	run(ctx)
}

func (s *Scheduler) runFetch(ctx context.Context) {
	if _, err := s.pipeline.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("fetch cycle failed")
	}
	s.updateTokenGauge(ctx)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if _, err := s.cleanup(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("cleanup failed")
	}
}

func (s *Scheduler) runReprocess(ctx context.Context) {
	if _, err := s.pipeline.Reprocess(ctx, s.reprocessLimit); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("reprocessing failed")
	}
}

// cleanup deletes stale rows and records the outcome.
func (s *Scheduler) cleanup(ctx context.Context) (*storage.CleanupStats, error) {
	stats, err := s.store.DeleteStale(ctx, s.cutoffs)
	if err != nil {
		return nil, err
	}

	observability.RecordDeleted("aged_out", stats.AgedOut)
	observability.RecordDeleted("unenriched", stats.Unenriched)
	observability.RecordDeleted("no_market", stats.NoMarket)
	observability.MarkCleanupSuccess(time.Now().Unix())

	log.Info().
		Int64("aged_out", stats.AgedOut).
		Int64("unenriched", stats.Unenriched).
		Int64("no_market", stats.NoMarket).
		Msg("cleanup complete")

	s.updateTokenGauge(ctx)
	return stats, nil
}

func (s *Scheduler) updateTokenGauge(ctx context.Context) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("token count refresh failed")
		return
	}
	observability.UpdateTokenCount(stats.TokenCount)
}

// taskState tracks one task's running flag and last completion time.
type taskState struct {
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

func (s *taskState) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *taskState) end(at time.Time) {
	s.mu.Lock()
	s.running = false
	s.lastRun = at
	s.mu.Unlock()
}

func (s *taskState) snapshot() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.lastRun
}
