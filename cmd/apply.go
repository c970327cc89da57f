package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply <job-url>",
	Short: "Apply to a single job URL (debugging aid).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if u, err := url.Parse(args[0]); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid job URL %q", args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sink, closeSink, err := newFailureSink(ctx, appConfig)
		if err != nil {
			return err
		}
		defer closeSink()

		orchestrator, err := newOrchestrator(ctx, appConfig, sink)
		if err != nil {
			return err
		}
		outcome, err := orchestrator.ApplyOne(ctx, args[0])
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(outcome, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
