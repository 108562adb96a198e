// Command catalog-publisher prepares Instagram posts from the shop catalog,
// manages their approval and publishes approved posts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/catalog-post-automation/internal/config"
	"github.com/fpang/catalog-post-automation/internal/lambdaboot"
	"github.com/fpang/catalog-post-automation/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFlag string

// rootCmd is the main Cobra command for the catalog-publisher CLI.
var rootCmd = &cobra.Command{
	Use:   "catalog-publisher",
	Short: "Catalog-driven Instagram post automation",
	Long: `Catalog Publisher selects products and recipes from the shop exports,
writes captions with a language model, stages them for human approval and
publishes approved posts to Instagram.

Examples:
  catalog-publisher prepare --profile weekly
  catalog-publisher pending
  catalog-publisher approve --gui
  catalog-publisher publish
  catalog-publisher serve`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default $"+config.EnvConfigPath+")")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// mustBoot loads the configuration and assembles the app, or exits.
func mustBoot(ctx context.Context) *lambdaboot.App {
	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app, err := lambdaboot.Boot(ctx, "catalog-publisher", cfg, lambdaboot.WithVersion(version))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	return app
}
