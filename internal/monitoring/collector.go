// Package monitoring collects pipeline health metrics, evaluates them
// against alert thresholds and delivers alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/quality"
	"github.com/sells-group/email-analyzer/internal/store"
)

// collectLimit bounds the rows read per window.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Analyses saved within the lookback window.
	AnalysesTotal    int     `json:"analyses_total"`
	AnalysesDegraded int     `json:"analyses_degraded"`
	TriageOnly       int     `json:"triage_only"`
	Enhanced         int     `json:"enhanced"`
	Insight          int     `json:"insight"`
	CostUSD          float64 `json:"cost_usd"`

	// Model calls within the lookback window.
	ModelCalls            int     `json:"model_calls"`
	FallbackCount         int     `json:"fallback_count"`
	FallbackRate          float64 `json:"fallback_rate"`
	ExtractionFailed      int     `json:"extraction_failed"`
	ExtractionFailureRate float64 `json:"extraction_failure_rate"`
	TransportErrors       int     `json:"transport_errors"`
	AvgQualityScore       float64 `json:"avg_quality_score"`

	// Process-lifetime counters, when an aggregator is attached.
	Process *quality.Snapshot `json:"process,omitempty"`

	// OpenCircuits lists model endpoints whose breaker is open.
	OpenCircuits []string `json:"open_circuits"`

	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// QualitySource exposes process-lifetime quality counters.
type QualitySource interface {
	Snapshot() quality.Snapshot
}

// CircuitSource reports open model endpoint circuits.
type CircuitSource interface {
	Open() []string
}

// Collector gathers metrics from the store, the quality aggregator and the
// circuit breakers.
type Collector struct {
	store    store.Store
	quality  QualitySource
	circuits CircuitSource
	now      func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithQuality attaches the process quality aggregator.
func WithQuality(q QualitySource) CollectorOption {
	return func(c *Collector) { c.quality = q }
}

// WithCircuits attaches the model endpoint breakers.
func WithCircuits(cs CircuitSource) CollectorOption {
	return func(c *Collector) { c.circuits = cs }
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store, opts ...CollectorOption) *Collector {
	c := &Collector{store: st, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect gathers a snapshot of pipeline metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		OpenCircuits:  []string{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	analyses, err := c.store.ListAnalyses(ctx, store.AnalysisFilter{Since: cutoff, Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list analyses")
	}
	snap.AnalysesTotal = len(analyses)
	for i := range analyses {
		a := &analyses[i]
		if a.Degraded {
			snap.AnalysesDegraded++
		}
		switch a.FinalPhase() {
		case model.PhaseInsight:
			snap.Insight++
		case model.PhaseEnhance:
			snap.Enhanced++
		default:
			snap.TriageOnly++
		}
		snap.CostUSD += a.CostUSD
	}

	recs, err := c.store.ListQualityRecords(ctx, store.QualityFilter{Since: cutoff, Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list quality records")
	}
	snap.ModelCalls = len(recs)
	var totalScore float64
	for _, r := range recs {
		totalScore += r.Score
		if r.UsedFallback {
			snap.FallbackCount++
		}
		if r.ExtractionFailed {
			snap.ExtractionFailed++
		}
		if r.TransportError != "" {
			snap.TransportErrors++
		}
	}
	if n := float64(snap.ModelCalls); n > 0 {
		snap.FallbackRate = float64(snap.FallbackCount) / n
		snap.ExtractionFailureRate = float64(snap.ExtractionFailed) / n
		snap.AvgQualityScore = totalScore / n
	}

	if c.quality != nil {
		q := c.quality.Snapshot()
		snap.Process = &q
	}
	if c.circuits != nil {
		snap.OpenCircuits = append(snap.OpenCircuits, c.circuits.Open()...)
	}

	dlqCount, err := c.store.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
