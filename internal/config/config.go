// Package config loads the automation settings from a YAML file, applies
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/fpang/catalog-post-automation/internal/catalog"
	"github.com/fpang/catalog-post-automation/internal/pipeline"
	"github.com/fpang/catalog-post-automation/internal/selector"
)

// Environment variables read by Load.
const (
	EnvConfigPath      = "CATALOG_CONFIG"
	EnvDataDir         = "CATALOG_DATA_DIR"
	EnvLogBackend      = "CATALOG_LOG_BACKEND"
	EnvLogTable        = "CATALOG_LOG_TABLE"
	EnvApprovalsPath   = "CATALOG_APPROVALS_PATH"
	EnvApprovalsS3URI  = "CATALOG_APPROVALS_S3_URI"
	EnvCaptionBackend  = "CATALOG_CAPTION_BACKEND"
	EnvEventBus        = "CATALOG_EVENT_BUS"
	EnvInstagramToken  = "INSTAGRAM_ACCESS_TOKEN"
	EnvInstagramUserID = "INSTAGRAM_USER_ID"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// Config is the complete automation configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" validate:"required"`
	LockFile  string          `yaml:"lock_file"`
	Feed      FeedConfig      `yaml:"feed"`
	Log       LogConfig       `yaml:"log"`
	Approvals ApprovalsConfig `yaml:"approvals"`
	Prepare   PrepareConfig   `yaml:"prepare"`
	Seasons   []SeasonConfig  `yaml:"seasons" validate:"dive"`
	Caption   CaptionConfig   `yaml:"caption"`
	Instagram InstagramConfig `yaml:"instagram"`
	Publish   PublishConfig   `yaml:"publish"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Schedules SchedulesConfig `yaml:"schedules"`
}

// FeedConfig locates the shop exports.
type FeedConfig struct {
	ProductsPath string        `yaml:"products_path" validate:"required"`
	Delimiter    string        `yaml:"delimiter" validate:"max=2"`
	Encoding     string        `yaml:"encoding"`
	Recipes      RecipesConfig `yaml:"recipes"`
}

// RecipesConfig locates the recipe tables and the rotation.
type RecipesConfig struct {
	TextsPath     string   `yaml:"texts_path"`
	MarketingPath string   `yaml:"marketing_path"`
	Encoding      string   `yaml:"encoding"`
	Delimiter     string   `yaml:"delimiter" validate:"max=2"`
	IDs           []string `yaml:"ids"`
	ImageBaseURL  string   `yaml:"image_base_url" validate:"required_with=TextsPath MarketingPath,omitempty,url"`
}

// LogConfig selects the publish log backend.
type LogConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file dynamodb"`
	Path    string `yaml:"path"`
	Table   string `yaml:"table" validate:"required_if=Backend dynamodb"`
}

// ApprovalsConfig locates the approval file and its copies.
type ApprovalsConfig struct {
	Path        string `yaml:"path"`
	ArchivePath string `yaml:"archive_path"`
	ExportPath  string `yaml:"export_path"`
	S3URI       string `yaml:"s3_uri" validate:"omitempty,startswith=s3://"`
}

// PrepareConfig holds the two preparation profiles.
type PrepareConfig struct {
	Daily  ProfileConfig `yaml:"daily"`
	Weekly ProfileConfig `yaml:"weekly"`
}

// ProfileConfig is one preparation policy.
type ProfileConfig struct {
	MinStock         int    `yaml:"min_stock" validate:"min=0"`
	Limit            int    `yaml:"limit" validate:"min=1"`
	Shuffle          bool   `yaml:"shuffle"`
	ExcludeIDPattern string `yaml:"exclude_id_pattern" validate:"omitempty,regexp"`
}

// SeasonConfig is one themed period of the seasonal gate.
type SeasonConfig struct {
	Name     string   `yaml:"name" validate:"required"`
	Months   []int    `yaml:"months" validate:"required,dive,min=1,max=12"`
	Keywords []string `yaml:"keywords" validate:"required,dive,required"`
}

// CaptionConfig selects the caption backend.
type CaptionConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=ollama gemini"`
	Model   string        `yaml:"model"`
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	Website string        `yaml:"website" validate:"required"`
	APIKey  string        `yaml:"-"`
}

// InstagramConfig holds the Graph API account and polling policy.
type InstagramConfig struct {
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	AccessToken     string        `yaml:"access_token"`
	UserID          string        `yaml:"user_id"`
	SSMTokenParam   string        `yaml:"ssm_token_param"`
	SSMUserIDParam  string        `yaml:"ssm_user_id_param"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gt=0"`
	PollMaxAttempts int           `yaml:"poll_max_attempts" validate:"min=1"`
	ChildPause      time.Duration `yaml:"child_pause" validate:"min=0"`
	HighRes         bool          `yaml:"high_res"`
}

// PublishConfig bounds a publish run.
type PublishConfig struct {
	MaxPerRun int `yaml:"max_per_run" validate:"min=1"`
}

// EventsConfig names the EventBridge bus. Empty disables events.
type EventsConfig struct {
	BusName string `yaml:"bus_name"`
}

// MetricsConfig toggles the EMF document written after each run.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SchedulesConfig holds the cron expressions used by serve. The format
// includes a seconds field. An empty expression disables the flow.
type SchedulesConfig struct {
	Publish       string `yaml:"publish" validate:"omitempty,cron"`
	PrepareDaily  string `yaml:"prepare_daily" validate:"omitempty,cron"`
	PrepareWeekly string `yaml:"prepare_weekly" validate:"omitempty,cron"`
	Recipe        string `yaml:"recipe" validate:"omitempty,cron"`
	TokenRefresh  string `yaml:"token_refresh" validate:"omitempty,cron"`
}

// CronParser parses schedule expressions with a leading seconds field.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir: "data",
		Feed: FeedConfig{
			Delimiter: ";",
			Encoding:  "latin-1",
			Recipes:   RecipesConfig{Delimiter: ";", Encoding: "cp850"},
		},
		Log: LogConfig{Backend: "file"},
		Prepare: PrepareConfig{
			Daily:  ProfileConfig{MinStock: 3, Limit: 1, Shuffle: true},
			Weekly: ProfileConfig{MinStock: 10, Limit: 7, Shuffle: true, ExcludeIDPattern: `^\d+H[A-Z]\d+`},
		},
		Seasons: seasonConfigs(selector.DefaultSeasons),
		Caption: CaptionConfig{
			Backend: "ollama",
			Command: "ollama",
			Timeout: 5 * time.Minute,
			Website: "www.hagengrote.de",
		},
		Instagram: InstagramConfig{
			BaseURL:         "https://graph.facebook.com/v22.0",
			PollInterval:    2 * time.Second,
			PollMaxAttempts: 10,
			ChildPause:      time.Second,
			HighRes:         true,
		},
		Publish: PublishConfig{MaxPerRun: 1},
		Schedules: SchedulesConfig{
			Publish:       "0 0 10 * * *",
			PrepareDaily:  "0 0 7 * * *",
			PrepareWeekly: "0 0 6 * * MON",
			Recipe:        "0 30 6 * * MON",
			TokenRefresh:  "0 0 3 1,15 * *",
		},
	}
}

// Load reads the file at path (or $CATALOG_CONFIG when path is empty) over
// the defaults, applies environment overrides, resolves relative paths
// against data_dir and validates the result. A missing path is not an
// error; the defaults and environment are used alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvDataDir, &c.DataDir},
		{EnvLogBackend, &c.Log.Backend},
		{EnvLogTable, &c.Log.Table},
		{EnvApprovalsPath, &c.Approvals.Path},
		{EnvApprovalsS3URI, &c.Approvals.S3URI},
		{EnvCaptionBackend, &c.Caption.Backend},
		{EnvEventBus, &c.Events.BusName},
		{EnvInstagramToken, &c.Instagram.AccessToken},
		{EnvInstagramUserID, &c.Instagram.UserID},
		{EnvGeminiAPIKey, &c.Caption.APIKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) resolvePaths() {
	inData := func(p *string, def string) {
		if *p == "" {
			*p = def
		}
		if !filepath.IsAbs(*p) && !strings.Contains(*p, "://") {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
	inData(&c.Feed.ProductsPath, "products.csv")
	inData(&c.LockFile, ".run.lock")
	inData(&c.Log.Path, "posted_log.csv")
	inData(&c.Approvals.Path, "pending_approvals.csv")
	for _, p := range []*string{&c.Approvals.ArchivePath, &c.Approvals.ExportPath, &c.Feed.Recipes.TextsPath, &c.Feed.Recipes.MarketingPath} {
		if *p != "" {
			inData(p, "")
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := CronParser.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the configuration and returns a *ValidationError listing
// every invalid field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		verr.Fields = append(verr.Fields, FieldError{Field: fe.Namespace(), Message: fieldMessage(fe)})
	}
	return verr
}

// FieldError is one invalid configuration field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists the invalid fields of a configuration.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "required_with":
		return "is required when " + fe.Param() + " is set"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a URL"
	case "startswith":
		return "must start with " + fe.Param()
	case "regexp":
		return "is not a valid regular expression"
	case "cron":
		return "is not a valid cron expression"
	default:
		return "is invalid"
	}
}

// FeedOptions returns the product export encoding.
func (c *Config) FeedOptions() catalog.FeedOptions {
	return catalog.FeedOptions{Delimiter: c.Feed.Delimiter, Encoding: c.Feed.Encoding}
}

// RecipeSources returns the recipe table locations.
func (c *Config) RecipeSources() catalog.RecipeSources {
	r := c.Feed.Recipes
	return catalog.RecipeSources{
		TextsPath:     r.TextsPath,
		MarketingPath: r.MarketingPath,
		ImageBaseURL:  r.ImageBaseURL,
		Options:       catalog.FeedOptions{Delimiter: r.Delimiter, Encoding: r.Encoding},
	}
}

// SelectorSeasons converts the configured seasons.
func (c *Config) SelectorSeasons() []selector.Season {
	out := make([]selector.Season, 0, len(c.Seasons))
	for _, s := range c.Seasons {
		season := selector.Season{Name: s.Name, Keywords: s.Keywords}
		for _, m := range s.Months {
			season.Months = append(season.Months, time.Month(m))
		}
		out = append(out, season)
	}
	return out
}

// Profile returns the named preparation profile ("daily" or "weekly").
func (c *Config) Profile(name string) (pipeline.Profile, error) {
	var pc ProfileConfig
	switch name {
	case "daily":
		pc = c.Prepare.Daily
	case "weekly":
		pc = c.Prepare.Weekly
	default:
		return pipeline.Profile{}, fmt.Errorf("unknown profile %q (want daily or weekly)", name)
	}

	criteria := selector.Criteria{
		MinStock: pc.MinStock,
		Shuffle:  pc.Shuffle,
		Seasons:  c.SelectorSeasons(),
	}
	if pc.ExcludeIDPattern != "" {
		re, err := regexp.Compile(pc.ExcludeIDPattern)
		if err != nil {
			return pipeline.Profile{}, fmt.Errorf("profile %s: %w", name, err)
		}
		criteria.ExcludeIDPattern = re
	}
	return pipeline.Profile{Name: name, Criteria: criteria, Limit: pc.Limit}, nil
}

func seasonConfigs(seasons []selector.Season) []SeasonConfig {
	out := make([]SeasonConfig, 0, len(seasons))
	for _, s := range seasons {
		sc := SeasonConfig{Name: s.Name, Keywords: s.Keywords}
		for _, m := range s.Months {
			sc.Months = append(sc.Months, int(m))
		}
		out = append(out, sc)
	}
	return out
}
