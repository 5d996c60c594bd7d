// Package scheduler provides cron-based scheduling for automated index
// rebuilds.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// BuildFunc is the callback invoked when a scheduled rebuild should run.
// It should perform an incremental build of the search indexes.
type BuildFunc func(ctx context.Context) error

// Status reports the scheduler's current state.
type Status struct {
	Running   bool      `json:"running"`
	Schedule  string    `json:"schedule"`
	LastRun   time.Time `json:"last_run,omitzero"`
	NextRun   time.Time `json:"next_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler runs index rebuilds on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	buildFunc BuildFunc
	logger    *slog.Logger

	mu       sync.RWMutex
	entryID  cron.EntryID
	schedule string
	running  bool
	lastRun  time.Time
	lastErr  error
	stopped  bool

	ctx    context.Context    // cancelled on Stop
	cancel context.CancelFunc // cancels ctx
	wg     sync.WaitGroup     // tracks running build goroutines
}

// New creates a Scheduler with the given build callback.
func New(buildFunc BuildFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		buildFunc: buildFunc,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// Schedule registers the rebuild job with the given cron expression,
// replacing any existing schedule.
func (s *Scheduler) Schedule(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule != "" {
		s.cron.Remove(s.entryID)
		s.schedule = ""
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running {
			s.mu.Unlock()
			return
		}
		s.running = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runBuild()
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.entryID = entryID
	s.schedule = cronExpr
	s.logger.Info("scheduled index rebuild",
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)
	return nil
}

// Start begins executing the scheduled job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop gracefully stops the scheduler, cancels a running build, and
// returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// TriggerNow runs the rebuild immediately, outside the schedule.
// Fails when a build is already running or the scheduler is stopped.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.running {
		return fmt.Errorf("rebuild already running")
	}

	s.running = true
	s.wg.Add(1)
	go s.runBuild()
	return nil
}

// runBuild executes one rebuild. The caller must have already called
// wg.Add(1) and set running to true.
func (s *Scheduler) runBuild() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled rebuild")
	start := time.Now()

	err := s.buildFunc(s.ctx)

	s.mu.Lock()
	if err != nil {
		s.lastErr = err
		s.logger.Error("scheduled rebuild failed",
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun = time.Now()
		s.lastErr = nil
		s.logger.Info("scheduled rebuild completed",
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// Status returns the scheduler's current status.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running:  s.running,
		Schedule: s.schedule,
		LastRun:  s.lastRun,
	}
	if s.schedule != "" {
		st.NextRun = s.cron.Entry(s.entryID).Next
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
