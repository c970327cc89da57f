package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	runMax       int
	runFilterURL string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover jobs and apply to them (the scheduled trigger).",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("max") {
			appConfig.Run.MaxApplications = runMax
		}
		if runFilterURL != "" {
			appConfig.Discovery.FilterURL = runFilterURL
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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
		// The first interrupt stops after the current job. Releasing the
		// signal lets a second one terminate the process.
		go func() {
			<-ctx.Done()
			orchestrator.Stop()
			stop()
		}()

		result, runErr := orchestrator.Run(context.WithoutCancel(ctx))
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return runErr
	},
}

func init() {
	runCmd.Flags().IntVar(&runMax, "max", 0, "maximum applications this run (0 = unlimited)")
	runCmd.Flags().StringVar(&runFilterURL, "filter-url", "", "job search URL to discover from")
}
