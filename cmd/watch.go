package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/monitoring"
	"github.com/sells-group/email-analyzer/internal/pipeline"
	"github.com/sells-group/email-analyzer/internal/source"
)

var (
	watchDebounce time.Duration
	watchMonitor  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Analyze message files as they land in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "watch")
		if err != nil {
			return err
		}
		defer env.Close()

		if watchMonitor {
			checker := monitoring.NewChecker(env.Collector(), monitoring.NewAlerter(cfg.Monitoring), snapshotPublisher(env), cfg.Monitoring)
			go checker.Run(ctx)
		}

		w := source.NewWatcher(args[0], watchDebounce, batchHandler(env.Pipeline))
		zap.L().Info("watching for messages", zap.String("dir", args[0]))
		return w.Run(ctx)
	},
}

// batchHandler analyzes each delivered file as one batch. Failures are
// logged so one bad file does not stop the watcher.
func batchHandler(p *pipeline.Pipeline) source.Handler {
	return func(ctx context.Context, path string, msgs []model.Message) {
		if len(msgs) == 0 {
			return
		}
		results, err := p.AnalyzeBatch(ctx, msgs)
		if err != nil {
			zap.L().Error("watch: analyze file failed", zap.String("path", path), zap.Error(err))
			return
		}
		s := summarize(len(msgs), results, p.CostTracker().Total())
		zap.L().Info("watch: file analyzed",
			zap.String("path", path),
			zap.Int("messages", s.Messages),
			zap.Int("degraded", s.Degraded),
			zap.Any("by_phase", s.ByPhase),
		)
	}
}

// snapshotPublisher returns the Kafka publisher as a snapshot sink, or nil
// when Kafka is off.
func snapshotPublisher(env *appEnv) monitoring.SnapshotPublisher {
	if env.Publisher == nil {
		return nil
	}
	return env.Publisher
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", source.DefaultDebounce, "quiet period before a changed file is read")
	watchCmd.Flags().BoolVar(&watchMonitor, "monitor", true, "run periodic quality checks and alerts")
	rootCmd.AddCommand(watchCmd)
}
