// Package scheduler runs the pipeline flows on cron cadences inside a
// long-running process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultRunTimeout bounds a single scheduled run.
const DefaultRunTimeout = 30 * time.Minute

// ErrBusy is returned by RunNow when another job is running.
var ErrBusy = errors.New("another job is running")

// Job is a named flow on a cron cadence.
type Job struct {
	Name string
	// Spec is a cron expression with a seconds field, or a descriptor
	// such as "@daily". An empty Spec disables the job.
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs one at a time. A tick that arrives while any job is
// still running is skipped, not queued.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	loc     *time.Location
	jobs    map[string]Job
	running sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRunTimeout overrides DefaultRunTimeout.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithLocation runs cadences in loc instead of the local zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// New creates a Scheduler.
func New(parser cron.ScheduleParser, opts ...Option) *Scheduler {
	s := &Scheduler{
		timeout: DefaultRunTimeout,
		loc:     time.Local,
		jobs:    make(map[string]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	return s
}

// Add registers a job. Jobs with an empty Spec are recorded for RunNow but
// never scheduled.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no Run func", job.Name)
	}
	s.jobs[job.Name] = job
	if job.Spec == "" {
		log.Info().Str("job", job.Name).Msg("Job has no schedule, disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.tick(job) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	log.Info().Str("job", job.Name).Str("schedule", job.Spec).Msg("Job scheduled")
	return nil
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		log.Debug().Time("next", e.Next).Msg("Next scheduled run")
	}
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops scheduling and waits until a running job has finished or ctx
// is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Warn().Msg("Scheduler stopped while a job was still running")
	}
	log.Info().Msg("Scheduler stopped")
}

// RunNow executes the named job immediately, unless another job is running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if !s.running.TryLock() {
		return ErrBusy
	}
	defer s.running.Unlock()
	return s.execute(ctx, job)
}

func (s *Scheduler) tick(job Job) {
	if !s.running.TryLock() {
		log.Warn().Str("job", job.Name).Msg("Previous run still in progress, skipping tick")
		return
	}
	defer s.running.Unlock()
	if err := s.execute(context.Background(), job); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("Scheduled run failed")
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	log.Info().Str("job", job.Name).Msg("Starting scheduled run")
	err := job.Run(ctx)
	log.Info().Str("job", job.Name).Dur("duration", time.Since(start)).Bool("ok", err == nil).Msg("Scheduled run completed")
	return err
}

// cronLogger routes cron's internal logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
