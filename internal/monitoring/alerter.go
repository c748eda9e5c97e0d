package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFallbackRate      AlertType = "fallback_rate"
	AlertExtractionFailure AlertType = "extraction_failure_rate"
	AlertModelUnreachable  AlertType = "model_unreachable"
	AlertCostOverrun       AlertType = "cost_overrun"
)

// minModelCalls is the sample size below which rate alerts stay quiet.
const minModelCalls = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// An open circuit means every call to that endpoint degrades.
	if len(snap.OpenCircuits) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertModelUnreachable,
			Severity: "critical",
			Message: fmt.Sprintf(
				"Model endpoint circuit open: %s; all affected phases are falling back to hybrid results",
				strings.Join(snap.OpenCircuits, ", "),
			),
			Details: map[string]any{
				"endpoints": snap.OpenCircuits,
				"dlq_depth": snap.DLQDepth,
			},
			Timestamp: now,
		})
	}

	if snap.ModelCalls >= minModelCalls && a.cfg.FallbackRateThreshold > 0 &&
		snap.FallbackRate > a.cfg.FallbackRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFallbackRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Hybrid fallback rate %.1f%% exceeds threshold %.1f%% (%d of %d model calls in last %dh)",
				snap.FallbackRate*100, a.cfg.FallbackRateThreshold*100,
				snap.FallbackCount, snap.ModelCalls, snap.LookbackHours,
			),
			Details: map[string]any{
				"fallback_rate":    snap.FallbackRate,
				"threshold":        a.cfg.FallbackRateThreshold,
				"fallbacks":        snap.FallbackCount,
				"model_calls":      snap.ModelCalls,
				"transport_errors": snap.TransportErrors,
			},
			Timestamp: now,
		})
	}

	if snap.ModelCalls >= minModelCalls && a.cfg.ExtractionFailureThreshold > 0 &&
		snap.ExtractionFailureRate > a.cfg.ExtractionFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertExtractionFailure,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Structured data extraction failed for %.1f%% of model responses (threshold %.1f%%, last %dh)",
				snap.ExtractionFailureRate*100, a.cfg.ExtractionFailureThreshold*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"extraction_failure_rate": snap.ExtractionFailureRate,
				"threshold":               a.cfg.ExtractionFailureThreshold,
				"extraction_failed":       snap.ExtractionFailed,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Model cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":       snap.CostUSD,
				"threshold_usd":  a.cfg.CostThresholdUSD,
				"analyses_total": snap.AnalysesTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
