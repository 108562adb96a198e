package lambdaboot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/caption"
	"github.com/fpang/catalog-post-automation/internal/config"
	"github.com/fpang/catalog-post-automation/internal/events"
	"github.com/fpang/catalog-post-automation/internal/instagram"
	"github.com/fpang/catalog-post-automation/internal/logging"
	"github.com/fpang/catalog-post-automation/internal/metrics"
	"github.com/fpang/catalog-post-automation/internal/pipeline"
	"github.com/fpang/catalog-post-automation/internal/publisher"
	"github.com/fpang/catalog-post-automation/internal/publishlog"
	"github.com/fpang/catalog-post-automation/internal/s3util"
)

// App holds the assembled components of one process.
type App struct {
	Config    *config.Config
	Runner    *pipeline.Runner
	Store     *approval.Store
	Log       publishlog.Log
	Instagram *instagram.Client

	ssm        ParamAPI
	metricsOut io.Writer
}

// Option adjusts Boot.
type Option func(*bootOptions)

type bootOptions struct {
	aws        *aws.Config
	ssm        ParamAPI
	metricsOut io.Writer
	version    string
}

// WithAWSConfig skips loading the default AWS config.
func WithAWSConfig(cfg aws.Config) Option {
	return func(o *bootOptions) { o.aws = &cfg }
}

// WithParamAPI replaces the SSM client.
func WithParamAPI(p ParamAPI) Option {
	return func(o *bootOptions) { o.ssm = p }
}

// WithMetricsWriter redirects EMF documents, stdout by default.
func WithMetricsWriter(w io.Writer) Option {
	return func(o *bootOptions) { o.metricsOut = w }
}

// WithVersion records the build version in the configuration event.
func WithVersion(v string) Option {
	return func(o *bootOptions) { o.version = v }
}

// needsAWS reports whether any configured component talks to AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.Log.Backend == "dynamodb" ||
		cfg.Approvals.S3URI != "" ||
		cfg.Events.BusName != "" ||
		secretsFromSSM(cfg)
}

// secretsFromSSM reports whether missing secrets should be read from SSM:
// inside Lambda, or when a parameter path is configured.
func secretsFromSSM(cfg *config.Config) bool {
	missing := cfg.Instagram.AccessToken == "" || cfg.Instagram.UserID == "" ||
		(cfg.Caption.Backend == "gemini" && cfg.Caption.APIKey == "")
	return missing && (os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" ||
		cfg.Instagram.SSMTokenParam != "" || cfg.Instagram.SSMUserIDParam != "")
}

// Boot resolves secrets and builds every component named by cfg. AWS is
// only contacted when a configured component needs it.
func Boot(ctx context.Context, name string, cfg *config.Config, opts ...Option) (*App, error) {
	start := time.Now()
	o := bootOptions{metricsOut: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	rl := logging.NewRunLogger(name).Version(o.version)

	if o.aws == nil && needsAWS(cfg) {
		awsCfg, err := LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		o.aws = &awsCfg
	}
	if o.ssm == nil && o.aws != nil {
		o.ssm = ssm.NewFromConfig(*o.aws)
	}

	app := &App{Config: cfg, ssm: o.ssm, metricsOut: o.metricsOut}

	if o.ssm != nil && secretsFromSSM(cfg) {
		ResolveInstagramCreds(ctx, o.ssm, &cfg.Instagram)
		if cfg.Instagram.SSMTokenParam != "" {
			rl.SSMParam("instagramToken", cfg.Instagram.SSMTokenParam)
		}
		if cfg.Caption.Backend == "gemini" {
			if err := LoadGeminiKey(ctx, o.ssm, &cfg.Caption); err != nil {
				return nil, err
			}
		}
	}

	switch cfg.Log.Backend {
	case "dynamodb":
		app.Log = publishlog.NewDynamoLog(dynamodb.NewFromConfig(*o.aws), cfg.Log.Table)
		rl.DynamoTable("publishLog", cfg.Log.Table)
	default:
		app.Log = publishlog.NewFileLog(cfg.Log.Path)
		rl.File("publishLog", cfg.Log.Path)
	}
	rl.Backend("publishLog", cfg.Log.Backend)

	storeOpts := []approval.Option{}
	if cfg.Approvals.ArchivePath != "" {
		storeOpts = append(storeOpts, approval.WithArchive(cfg.Approvals.ArchivePath))
	}
	if cfg.Approvals.S3URI != "" {
		mirror, err := s3util.NewMirror(s3.NewFromConfig(*o.aws), cfg.Approvals.S3URI)
		if err != nil {
			return nil, fmt.Errorf("approvals mirror: %w", err)
		}
		archiveMirror, err := s3util.NewMirror(s3.NewFromConfig(*o.aws), s3util.ArchiveURI(cfg.Approvals.S3URI))
		if err != nil {
			return nil, fmt.Errorf("approvals archive mirror: %w", err)
		}
		storeOpts = append(storeOpts, approval.WithMirror(mirror), approval.WithArchiveMirror(archiveMirror))
		rl.S3Object("approvals", mirror.URI()).S3Object("approvalsArchive", archiveMirror.URI())
	}
	app.Store = approval.NewStore(cfg.Approvals.Path, storeOpts...)
	rl.File("approvals", cfg.Approvals.Path)

	captions, err := newCaptions(ctx, cfg.Caption)
	if err != nil {
		return nil, err
	}
	rl.Backend("caption", cfg.Caption.Backend)

	var notifier events.Notifier = events.Nop{}
	if cfg.Events.BusName != "" {
		notifier = events.NewBus(eventbridge.NewFromConfig(*o.aws), cfg.Events.BusName)
	}
	rl.Feature("events", cfg.Events.BusName != "")

	if cfg.Instagram.AccessToken != "" && cfg.Instagram.UserID != "" {
		app.Instagram = instagram.NewClient(cfg.Instagram.AccessToken, cfg.Instagram.UserID,
			instagram.WithBaseURL(cfg.Instagram.BaseURL))
	}
	rl.Feature("instagram", app.Instagram != nil).Feature("highRes", cfg.Instagram.HighRes)

	var poster pipeline.Poster = unconfiguredPoster{}
	if app.Instagram != nil {
		poster = publisher.New(app.Instagram,
			publisher.WithPollPolicy(publisher.PollPolicy{
				Interval:    cfg.Instagram.PollInterval,
				MaxAttempts: cfg.Instagram.PollMaxAttempts,
			}),
			publisher.WithChildPause(cfg.Instagram.ChildPause))
	}

	app.Runner = pipeline.NewRunner(pipeline.Deps{
		Catalog: &pipeline.FeedCatalog{
			ProductsPath: cfg.Feed.ProductsPath,
			Options:      cfg.FeedOptions(),
			Recipe:       cfg.RecipeSources(),
		},
		Log:      app.Log,
		Staging:  app.Store,
		Captions: captions,
		Poster:   poster,
		Notifier: notifier,
	}, pipeline.Options{
		MaxPublishes: cfg.Publish.MaxPerRun,
		HighRes:      cfg.Instagram.HighRes,
		RecipeIDs:    cfg.Feed.Recipes.IDs,
		LockFile:     cfg.LockFile,
	})
	rl.File("products", cfg.Feed.ProductsPath).
		File("lock", cfg.LockFile).
		Feature("metrics", cfg.Metrics.Enabled).
		InitDuration(time.Since(start)).
		Log()
	return app, nil
}

func newCaptions(ctx context.Context, c config.CaptionConfig) (caption.Generator, error) {
	if c.Backend == "gemini" {
		if c.APIKey == "" {
			return nil, fmt.Errorf("gemini caption backend needs %s", config.EnvGeminiAPIKey)
		}
		return caption.NewGeminiGenerator(ctx, c.APIKey, c.Model, c.Timeout, c.Website)
	}
	return &caption.OllamaGenerator{
		Command: c.Command,
		Model:   c.Model,
		Timeout: c.Timeout,
		Website: c.Website,
	}, nil
}

// unconfiguredPoster fails every publish when no credentials were found.
type unconfiguredPoster struct{}

func (unconfiguredPoster) Publish(context.Context, publisher.Post) (*publisher.Result, error) {
	return nil, ErrNoInstagramCredentials
}

// RequireInstagram returns ErrNoInstagramCredentials when no Graph client
// could be built.
func (a *App) RequireInstagram() error {
	if a.Instagram == nil {
		return ErrNoInstagramCredentials
	}
	return nil
}

// Finish writes the run's EMF document and the approvals export, when
// configured. Neither failure changes the run outcome.
func (a *App) Finish(ctx context.Context, report *pipeline.Report) {
	if a.Config.Metrics.Enabled && report != nil {
		m := metrics.New(metrics.Namespace).WithWriter(a.metricsOut)
		report.Record(m)
		m.Flush()
	}
	if a.Config.Approvals.ExportPath != "" {
		if err := a.Store.ExportTo(ctx, a.Config.Approvals.ExportPath); err != nil {
			log.Warn().Err(err).Str("path", a.Config.Approvals.ExportPath).Msg("Approvals export failed")
		}
	}
}

// RefreshToken exchanges the Instagram token for a fresh long-lived one
// and, when SSM is available, stores it back to the token parameter.
func (a *App) RefreshToken(ctx context.Context) (*instagram.LongLivedTokenResult, error) {
	if err := a.RequireInstagram(); err != nil {
		return nil, err
	}
	res, err := a.Instagram.RefreshLongLivedToken(ctx)
	if err != nil {
		return nil, err
	}
	if a.ssm == nil || a.Config.Instagram.SSMTokenParam == "" {
		log.Warn().Msg("No SSM token parameter configured, refreshed token not persisted")
		return res, nil
	}
	if err := StoreToken(ctx, a.ssm, a.Config.Instagram.SSMTokenParam, res.AccessToken); err != nil {
		return res, err
	}
	return res, nil
}

// Flow names accepted by RunFlow.
const (
	FlowPublish       = "publish"
	FlowPrepareDaily  = "prepare-daily"
	FlowPrepareWeekly = "prepare-weekly"
	FlowRecipe        = "recipe"
	FlowTokenRefresh  = "token-refresh"
)

// Flows lists every flow name in scheduling order.
var Flows = []string{FlowPublish, FlowPrepareDaily, FlowPrepareWeekly, FlowRecipe, FlowTokenRefresh}

// RunFlow executes one named flow and finishes it. Token refresh has no
// run report.
func (a *App) RunFlow(ctx context.Context, flow string) (*pipeline.Report, error) {
	var (
		report *pipeline.Report
		err    error
	)
	switch flow {
	case FlowPublish:
		if err := a.RequireInstagram(); err != nil {
			return nil, err
		}
		report, err = a.Runner.PublishApproved(ctx)
		if err == nil {
			a.archiveClosed(ctx)
		}
	case FlowPrepareDaily, FlowPrepareWeekly:
		profile, perr := a.Config.Profile(strings.TrimPrefix(flow, "prepare-"))
		if perr != nil {
			return nil, perr
		}
		report, err = a.Runner.PrepareProducts(ctx, profile)
	case FlowRecipe:
		report, err = a.Runner.PrepareRecipe(ctx)
	case FlowTokenRefresh:
		res, err := a.RefreshToken(ctx)
		if err != nil {
			return nil, err
		}
		log.Info().Int64("expiresIn", res.ExpiresIn).Msg("Instagram token refreshed")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown flow %q (want one of %s)", flow, strings.Join(Flows, ", "))
	}
	a.Finish(ctx, report)
	return report, err
}

// LogEntries returns the publish log, only the entries of id when id is
// set. A log that does not exist yet is created first.
func (a *App) LogEntries(ctx context.Context, id string) ([]publishlog.Entry, error) {
	if err := a.Log.EnsureExists(ctx); err != nil {
		return nil, fmt.Errorf("initialise publish log: %w", err)
	}
	entries, err := a.Log.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return entries, nil
	}
	var out []publishlog.Entry
	for _, e := range entries {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// WithLock runs fn while holding the run lock. Every change to the staging
// file outside a flow goes through here.
func (a *App) WithLock(fn func() error) error {
	if a.Config.LockFile == "" {
		return fn()
	}
	unlock, err := pipeline.Lock(a.Config.LockFile)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (a *App) archiveClosed(ctx context.Context) {
	var n int
	err := a.WithLock(func() error {
		var err error
		n, err = a.Store.Archive(ctx)
		return err
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Archiving closed approvals failed")
	case n > 0:
		log.Info().Int("archived", n).Msg("Closed approvals archived")
	}
}

// Schedule returns the configured cron expression of a flow.
func (a *App) Schedule(flow string) string {
	s := a.Config.Schedules
	switch flow {
	case FlowPublish:
		return s.Publish
	case FlowPrepareDaily:
		return s.PrepareDaily
	case FlowPrepareWeekly:
		return s.PrepareWeekly
	case FlowRecipe:
		return s.Recipe
	case FlowTokenRefresh:
		return s.TokenRefresh
	}
	return ""
}
