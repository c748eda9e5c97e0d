package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/email-analyzer/internal/resilience"
)

var (
	dlqErrorType string
	dlqLimit     int
	dlqJSON      bool
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry messages whose model calls failed",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, "dlq")
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Store.ListDLQ(ctx, resilience.DLQFilter{ErrorType: dlqErrorType, Limit: dlqLimit})
		if err != nil {
			return eris.Wrap(err, "list dlq")
		}

		out := cmd.OutOrStdout()
		if dlqJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(entries), "write dlq entries")
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MESSAGE\tPHASE\tTYPE\tRETRIES\tNEXT RETRY\tERROR")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				e.Message.ID, e.FailedPhase, e.ErrorType, e.RetryCount, e.MaxRetries,
				e.NextRetryAt.Format(time.RFC3339), truncateErr(e.Error, 60))
		}
		return tw.Flush()
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-run analysis for due dead letter entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, "dlq")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Pipeline.RetryDLQ(ctx, resilience.DLQFilter{ErrorType: dlqErrorType, Limit: dlqLimit})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d recovered=%d failed=%d\n", sum.Attempted, sum.Recovered, sum.Failed)
		return nil
	},
}

func truncateErr(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	dlqCmd.PersistentFlags().StringVar(&dlqErrorType, "type", "", "filter by error type (transient or permanent)")
	dlqCmd.PersistentFlags().IntVar(&dlqLimit, "limit", 100, "maximum entries")
	dlqListCmd.Flags().BoolVar(&dlqJSON, "json", false, "print entries as JSON")
	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}
