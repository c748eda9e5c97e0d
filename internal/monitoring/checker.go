package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/config"
)

// SnapshotPublisher receives every collected snapshot, e.g. a message
// broker feeding an external dashboard.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap *MetricsSnapshot) error
}

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	publisher SnapshotPublisher
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker. publisher may be nil.
func NewChecker(collector *Collector, alerter *Alerter, publisher SnapshotPublisher, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one collect, publish and alert cycle and returns the alerts
// that fired.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	if c.publisher != nil {
		if err := c.publisher.PublishSnapshot(ctx, snap); err != nil {
			log.Warn("monitoring: failed to publish snapshot", zap.Error(err))
		}
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil
	}
	for _, a := range alerts {
		if a.Type == AlertModelUnreachable {
			log.Error("monitoring: model endpoint unreachable", zap.Strings("endpoints", snap.OpenCircuits))
		}
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
