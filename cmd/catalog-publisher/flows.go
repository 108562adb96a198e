package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/catalog-post-automation/internal/cli"
	"github.com/fpang/catalog-post-automation/internal/lambdaboot"
)

var profileFlag string

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Select products, write captions and stage them for approval",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runFlow(cmd, "prepare-"+profileFlag)
	},
}

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Stage the next recipe of the rotation for approval",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runFlow(cmd, lambdaboot.FlowRecipe)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish approved posts to Instagram",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runFlow(cmd, lambdaboot.FlowPublish)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the Instagram access token",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the long-lived token for a fresh one",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runFlow(cmd, lambdaboot.FlowTokenRefresh)
	},
}

func init() {
	prepareCmd.Flags().StringVarP(&profileFlag, "profile", "p", "daily", "Preparation profile: daily or weekly")
	tokenCmd.AddCommand(tokenRefreshCmd)
	rootCmd.AddCommand(prepareCmd, recipeCmd, publishCmd, tokenCmd)
}

func runFlow(cmd *cobra.Command, flow string) {
	ctx, cancel := signalContext()
	defer cancel()

	app := mustBoot(ctx)
	report, err := app.RunFlow(ctx, flow)
	if err != nil {
		log.Fatal().Err(err).Str("flow", flow).Msg("Run failed")
	}
	if report == nil {
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s finished in %s: %d prepared, %d published, %d failed, %d skipped\n",
		report.Flow, cli.FormatDurationShort(report.Duration),
		report.Prepared, report.Published, report.Failed, report.Skipped)
}
