// Package scheduler triggers sync work: one drain plus one pull at
// process start and on every connectivity-restored event, and an
// optional periodic pull. There is no automatic retry/backoff for
// ERROR records; re-queueing them is an explicit lifecycle call.
package scheduler

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
	syncpkg "github.com/jhamf/actasync/internal/sync"
	"github.com/jhamf/actasync/internal/sync/connectivity"
)

// Drainer drains the pending queue.
type Drainer interface {
	Drain(ctx context.Context) (*syncpkg.DrainResult, error)
}

// Reconciler pulls and merges remote records.
type Reconciler interface {
	Pull(ctx context.Context, limit int) (*syncpkg.MergeResult, error)
}

// Config holds scheduler configuration.
type Config struct {
	// PullInterval drives the periodic reconciliation pull. Zero
	// disables it; event-driven cycles still run.
	PullInterval time.Duration
	PullLimit    int
	// CycleTimeout bounds one drain+pull cycle.
	CycleTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		PullInterval: 15 * time.Minute,
		PullLimit:    50,
		CycleTimeout: 5 * time.Minute,
	}
}

// Scheduler owns the background sync triggers.
type Scheduler struct {
	engine     Drainer
	reconciler Reconciler
	events     <-chan connectivity.Event
	cfg        *Config

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu              sync.RWMutex
	isRunning       bool
	cycleInProgress bool
	lastCycle       time.Time
}

// New creates a new Scheduler. events may be nil if no connectivity
// watcher is wired; start-up and periodic triggers still work.
func New(engine Drainer, reconciler Reconciler, events <-chan connectivity.Event, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		engine:     engine,
		reconciler: reconciler,
		events:     events,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the trigger loop and runs an initial cycle.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	// One cycle at process start: records left queued by a previous
	// run must not wait for an event.
	s.spawnCycle(ctx)

	logging.Info("Sync scheduler started", nil)
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// TriggerCycle runs a drain+pull cycle now. Returns false if a cycle
// is already in progress.
func (s *Scheduler) TriggerCycle(ctx context.Context) bool {
	s.mu.RLock()
	busy := s.cycleInProgress
	s.mu.RUnlock()
	if busy {
		return false
	}
	s.spawnCycle(ctx)
	return true
}

// spawnCycle runs a cycle on its own goroutine, tracked by the wait
// group so Stop blocks until an in-flight cycle finishes. The store
// is closed right after Stop returns; a cycle still draining would
// otherwise race it.
func (s *Scheduler) spawnCycle(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(ctx)
	}()
}

func (s *Scheduler) spawnPull(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPull(ctx)
	}()
}

// LastCycle returns the completion time of the last cycle.
func (s *Scheduler) LastCycle() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle.IsZero() {
		return nil
	}
	t := s.lastCycle
	return &t
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	var tickCh <-chan time.Time
	if s.cfg.PullInterval > 0 {
		ticker := time.NewTicker(s.cfg.PullInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			if ev.Online {
				logging.Info("Connectivity restored, starting sync cycle", nil)
				s.spawnCycle(ctx)
			}
		case <-tickCh:
			s.spawnPull(ctx)
		}
	}
}

// runCycle drains the pending queue, then pulls remote records.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.cycleInProgress {
		s.mu.Unlock()
		return
	}
	s.cycleInProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycleInProgress = false
		s.lastCycle = time.Now()
		s.mu.Unlock()
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	result, err := s.engine.Drain(cycleCtx)
	switch {
	case apperrors.Is(err, apperrors.ErrSyncInProgress):
		logging.Debug("Drain already in progress, skipping", nil)
	case err != nil:
		logging.Error("Drain failed", err, nil)
	case result.Offline:
		// No point pulling either.
		return
	default:
		logging.Info("Drain completed", map[string]interface{}{
			"synced": result.Synced,
			"failed": result.Failed,
		})
	}

	s.pull(cycleCtx)
}

// runPull runs the periodic pull without a drain.
func (s *Scheduler) runPull(ctx context.Context) {
	pullCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()
	s.pull(pullCtx)
}

func (s *Scheduler) pull(ctx context.Context) {
	if s.reconciler == nil {
		return
	}
	result, err := s.reconciler.Pull(ctx, s.cfg.PullLimit)
	if err != nil {
		logging.Error("Reconciliation pull failed", err, nil)
		return
	}
	if result.Inserted > 0 || result.Updated > 0 {
		logging.Info("Reconciliation pull completed", map[string]interface{}{
			"inserted": result.Inserted,
			"updated":  result.Updated,
		})
	}
}
