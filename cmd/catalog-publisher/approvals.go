package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/catalog-post-automation/internal/approval"
	"github.com/fpang/catalog-post-automation/internal/cli"
)

var (
	guiFlag bool
	yesFlag bool
	idFlag  string
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List staged posts awaiting approval or publication",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		app := mustBoot(ctx)
		pending, err := app.Store.Pending(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read approvals")
		}
		cli.PrintRecords(cmd.OutOrStdout(), pending)
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve [product-id...]",
	Short: "Approve staged posts for publication",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		app := mustBoot(ctx)
		ids := args
		if guiFlag {
			pending, err := app.Store.Pending(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read approvals")
			}
			var undecided []approval.Record
			for _, r := range pending {
				if !r.Approved {
					undecided = append(undecided, r)
				}
			}
			ids, err = cli.SelectForApproval(undecided)
			if err != nil {
				log.Fatal().Err(err).Msg("Approval dialog failed")
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing approved.")
			return
		}
		if err := app.WithLock(func() error { return app.Store.Approve(ctx, ids...) }); err != nil {
			log.Fatal().Err(err).Msg("Failed to approve")
		}
		app.Finish(ctx, nil)
		fmt.Fprintf(cmd.OutOrStdout(), "Approved %d post(s).\n", len(ids))
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <product-id>...",
	Short: "Reject staged posts",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		if !yesFlag && !cli.Confirm(os.Stdin, cmd.OutOrStdout(), fmt.Sprintf("Reject %d post(s)?", len(args))) {
			return
		}
		app := mustBoot(ctx)
		if err := app.WithLock(func() error { return app.Store.MarkRejected(ctx, args...) }); err != nil {
			log.Fatal().Err(err).Msg("Failed to reject")
		}
		app.Finish(ctx, nil)
		fmt.Fprintf(cmd.OutOrStdout(), "Rejected %d post(s).\n", len(args))
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move published and rejected records to the gzip archive",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		app := mustBoot(ctx)
		var n int
		err := app.WithLock(func() error {
			var err error
			n, err = app.Store.Archive(ctx)
			return err
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to archive")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d record(s).\n", n)
	},
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the publish log",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		app := mustBoot(ctx)
		entries, err := app.LogEntries(ctx, idFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read publish log")
		}
		cli.PrintEntries(cmd.OutOrStdout(), entries)
	},
}

func init() {
	approveCmd.Flags().BoolVar(&guiFlag, "gui", false, "Choose posts in a desktop checklist dialog")
	rejectCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Do not ask for confirmation")
	logCmd.Flags().StringVar(&idFlag, "id", "", "Only show entries for this product id")
	rootCmd.AddCommand(pendingCmd, approveCmd, rejectCmd, archiveCmd, logCmd)
}
