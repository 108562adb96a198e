// Package pipeline wires the catalog, selector, caption service, approval
// store, publisher and publish log into the three scheduled flows:
// preparing product posts, preparing the recipe of the week, and
// publishing approved posts.
//
// Failures scoped to one item are recorded as "failed: <message>" and the
// run moves on. Failures of the catalog, log, store or lock abort the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/caption"
	"github.com/fpang/catalog-post-automation/internal/catalog"
	"github.com/fpang/catalog-post-automation/internal/events"
	"github.com/fpang/catalog-post-automation/internal/metrics"
	"github.com/fpang/catalog-post-automation/internal/publisher"
	"github.com/fpang/catalog-post-automation/internal/publishlog"
	"github.com/fpang/catalog-post-automation/internal/selector"
)

// Catalog supplies the item snapshots of a run.
type Catalog interface {
	Products(ctx context.Context) ([]catalog.Item, error)
	Recipes(ctx context.Context) ([]catalog.Item, error)
}

// Staging is the approval store as seen by the runner.
type Staging interface {
	Stage(ctx context.Context, records ...approval.Record) error
	Known(ctx context.Context) (map[string]bool, error)
	ListApproved(ctx context.Context) ([]approval.Record, error)
	MarkPublished(ctx context.Context, id string) error
}

var _ Staging = (*approval.Store)(nil)

// Poster publishes a single post.
type Poster interface {
	Publish(ctx context.Context, post publisher.Post) (*publisher.Result, error)
}

var _ Poster = (*publisher.Publisher)(nil)

// Deps are the collaborators of a Runner. Notifier may be nil.
type Deps struct {
	Catalog  Catalog
	Log      publishlog.Log
	Staging  Staging
	Captions caption.Generator
	Poster   Poster
	Notifier events.Notifier
}

// Options tune a Runner.
type Options struct {
	// MaxPublishes caps successful publishes per publish run.
	MaxPublishes int
	// HighRes swaps /normal/ image paths for /gross/ at publish time.
	HighRes bool
	// RecipeIDs is the rotation of recipe numbers, with or without the R prefix.
	RecipeIDs []string
	// LockFile, when set, is locked for the duration of every flow.
	LockFile string
	// SelectorOptions are passed to every selector the runner creates.
	SelectorOptions []selector.Option
	Now             func() time.Time
}

// Runner executes pipeline flows. One Runner may execute many runs, but
// never concurrently.
type Runner struct {
	deps Deps
	opts Options
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	if opts.MaxPublishes <= 0 {
		opts.MaxPublishes = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{deps: deps, opts: opts}
}

// Report summarises one run.
type Report struct {
	RunID     string
	Flow      string
	Prepared  int
	Published int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Record adds the report's counters to an EMF recorder.
func (r *Report) Record(m *metrics.Recorder) {
	m.Dimension("Flow", r.Flow).
		Add("Prepared", float64(r.Prepared)).
		Add("Published", float64(r.Published)).
		Add("Failed", float64(r.Failed)).
		Add("Skipped", float64(r.Skipped)).
		Metric("RunDurationMs", float64(r.Duration.Milliseconds()), metrics.UnitMilliseconds).
		Property("runId", r.RunID)
	if r.Failed > 0 {
		m.Count("RunsWithFailures")
	}
}

// run wraps a flow with the lock, log initialisation and the run report.
func (r *Runner) run(ctx context.Context, flow string, fn func(context.Context, zerolog.Logger, *Report) error) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Flow: flow}
	logger := log.With().Str("runId", report.RunID).Str("flow", flow).Logger()
	start := time.Now()

	if r.opts.LockFile != "" {
		unlock, err := Lock(r.opts.LockFile)
		if err != nil {
			return report, err
		}
		defer unlock()
	}

	if err := r.deps.Log.EnsureExists(ctx); err != nil {
		return report, fmt.Errorf("initialise publish log: %w", err)
	}

	logger.Info().Msg("Run started")
	err := fn(ctx, logger, report)
	report.Duration = time.Since(start)

	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
	}
	ev.Int("prepared", report.Prepared).
		Int("published", report.Published).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("Run finished")
	return report, err
}

// recordFailure logs a per-item failure and stores it in the publish log.
// Only a failing log write is returned; it is fatal to the run.
func (r *Runner) recordFailure(ctx context.Context, logger zerolog.Logger, report *Report, id string, cause error) error {
	report.Failed++
	logger.Warn().Err(cause).Str("productId", id).Msg("Item failed")
	if err := r.deps.Log.RecordOutcome(ctx, id, publishlog.Failed(cause.Error())); err != nil {
		return fmt.Errorf("record failure for %s: %w", id, err)
	}
	return nil
}

func (r *Runner) publishedSet(ctx context.Context) (func(string) bool, error) {
	ids, err := publishlog.PublishedIDs(ctx, r.deps.Log)
	if err != nil {
		return nil, fmt.Errorf("read publish log: %w", err)
	}
	return func(id string) bool { return ids[id] }, nil
}

// stagedSet matches ids the staging store has seen: pending, rejected,
// published or archived. A rejected item is never offered again.
func (r *Runner) stagedSet(ctx context.Context) (func(string) bool, error) {
	ids, err := r.deps.Staging.Known(ctx)
	if err != nil {
		return nil, fmt.Errorf("read approvals: %w", err)
	}
	return func(id string) bool { return ids[id] }, nil
}
