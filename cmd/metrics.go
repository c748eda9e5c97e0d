package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/email-analyzer/internal/monitoring"
)

var (
	metricsLookback int
	metricsAlert    bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print quality, fallback and cost metrics for a lookback window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, "metrics")
		if err != nil {
			return err
		}
		defer env.Close()

		hours := metricsLookback
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackHours
		}

		out := struct {
			*monitoring.MetricsSnapshot
			Alerts []monitoring.Alert `json:"alerts,omitempty"`
		}{}

		out.MetricsSnapshot, err = env.Collector().Collect(ctx, hours)
		if err != nil {
			return err
		}
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		out.Alerts = alerter.Evaluate(out.MetricsSnapshot)
		if metricsAlert && len(out.Alerts) > 0 {
			alerter.SendAlerts(ctx, out.Alerts)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(out), "write metrics")
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsLookback, "lookback", 0, "lookback window in hours (default from config)")
	metricsCmd.Flags().BoolVar(&metricsAlert, "alert", false, "send triggered alerts to the webhook")
	rootCmd.AddCommand(metricsCmd)
}
