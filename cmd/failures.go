package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List the failed applications stored in the failure sink.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sink, closeSink, err := newFailureSink(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer closeSink()

		failures, err := sink.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tKIND\tTITLE\tURL\tREASON\tSCREENSHOT")
		for _, f := range failures {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Timestamp.Local().Format(time.DateTime), f.Kind, f.Title, f.URL, f.Reason, f.Screenshot)
		}
		return w.Flush()
	},
}
