package hotlabel

import (
	"context"
	"sync"
	"time"
)

// SchedulerConfig sets the cadence of the background jobs. Zero values fall
// back to the defaults below.
type SchedulerConfig struct {
	// SweepInterval is how often expired leases are reclaimed.
	SweepInterval time.Duration
	// RebalanceInterval is how often queue priorities are recomputed.
	RebalanceInterval time.Duration
	// RollupInterval is how often worker quality scores are re-averaged.
	RollupInterval time.Duration
	// CleanupInterval is how often old records are purged.
	CleanupInterval time.Duration
	// Logger receives job outcomes; defaults to a no-op logger.
	Logger Logger
}

// DefaultSchedulerConfig returns the reference cadence: sweep every 5
// minutes, rebalance hourly, roll up daily, purge weekly.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepInterval:     5 * time.Minute,
		RebalanceInterval: time.Hour,
		RollupInterval:    24 * time.Hour,
		CleanupInterval:   7 * 24 * time.Hour,
	}
}

// Scheduler drives the engine's periodic jobs. Start and Stop are idempotent
// and safe for concurrent use.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig
	log    Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler wires a scheduler over the engine.
func NewScheduler(engine *Engine, cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.RebalanceInterval == 0 {
		cfg.RebalanceInterval = def.RebalanceInterval
	}
	if cfg.RollupInterval == 0 {
		cfg.RollupInterval = def.RollupInterval
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Scheduler{engine: engine, cfg: cfg, log: cfg.Logger}
}

// Start launches the job loops. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.spawn(ctx, s.cfg.SweepInterval, s.runSweep)
	s.spawn(ctx, s.cfg.RebalanceInterval, s.runRebalance)
	s.spawn(ctx, s.cfg.RollupInterval, s.runRollup)
	s.spawn(ctx, s.cfg.CleanupInterval, s.runCleanup)
	s.log.Infof("scheduler started")
}

// Stop cancels the job loops and waits for in-flight runs to finish. Calling
// Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
	s.log.Infof("scheduler stopped")
}

// spawn runs fn on every tick until the context is cancelled. Job errors are
// the job's to report; the loop never exits on one.
func (s *Scheduler) spawn(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (s *Scheduler) runSweep(ctx context.Context) {
	n, err := s.engine.SweepExpired(ctx)
	if err != nil {
		s.log.Warnf("sweep failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("sweep reclaimed %d expired tasks", n)
	}
}

func (s *Scheduler) runRebalance(ctx context.Context) {
	analyzed, adjusted, err := s.engine.Rebalance(ctx)
	if err != nil {
		s.log.Warnf("rebalance failed: %v", err)
		return
	}
	s.log.Infof("rebalance analyzed %d tasks, adjusted %d", analyzed, adjusted)
}

func (s *Scheduler) runRollup(ctx context.Context) {
	n, err := s.engine.RollupWorkerQuality(ctx)
	if err != nil {
		s.log.Warnf("quality rollup failed: %v", err)
		return
	}
	s.log.Infof("quality rollup updated %d profiles", n)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	n, err := s.engine.PurgeOldRecords(ctx)
	if err != nil {
		s.log.Warnf("cleanup failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("cleanup purged %d records", n)
	}
}
