// Package quality keeps running counters over every model call the
// pipeline makes.
package quality

import (
	"math"
	"sync/atomic"

	"github.com/sells-group/email-analyzer/internal/model"
)

// DefaultHighQualityThreshold is the score at or above which a response
// counts as high quality.
const DefaultHighQualityThreshold = 8.0

// Recorder accepts per-call quality records. Phase components depend on
// this rather than on the concrete Aggregator.
type Recorder interface {
	Record(rec model.QualityRecord)
}

// Aggregator is the process-wide quality counter set. Counters only grow;
// they reset when the process restarts. Safe for concurrent use.
type Aggregator struct {
	highThreshold float64

	total            atomic.Int64
	scoreMilli       atomic.Int64
	highQuality      atomic.Int64
	fallbacks        atomic.Int64
	extractionFailed atomic.Int64
	transportErrors  atomic.Int64
	repaired         atomic.Int64
	responseBytes    atomic.Int64
}

// NewAggregator creates an Aggregator. A non-positive threshold uses the
// default.
func NewAggregator(highThreshold float64) *Aggregator {
	if highThreshold <= 0 {
		highThreshold = DefaultHighQualityThreshold
	}
	return &Aggregator{highThreshold: highThreshold}
}

// Record adds one model call.
func (a *Aggregator) Record(rec model.QualityRecord) {
	a.total.Add(1)
	a.scoreMilli.Add(int64(math.Round(rec.Score * 1000)))
	a.responseBytes.Add(int64(rec.ResponseLength))
	if rec.Score >= a.highThreshold {
		a.highQuality.Add(1)
	}
	if rec.UsedFallback {
		a.fallbacks.Add(1)
	}
	if rec.ExtractionFailed {
		a.extractionFailed.Add(1)
	}
	if rec.TransportError != "" {
		a.transportErrors.Add(1)
	}
	if rec.Provenance == model.ProvenanceRepaired {
		a.repaired.Add(1)
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalResponses    int64   `json:"total_responses"`
	AverageScore      float64 `json:"average_score"`
	HighQualityCount  int64   `json:"high_quality_count"`
	HighQualityRate   float64 `json:"high_quality_rate"`
	FallbackCount     int64   `json:"fallback_count"`
	FallbackRate      float64 `json:"fallback_rate"`
	ExtractionFailed  int64   `json:"extraction_failed"`
	ExtractionRate    float64 `json:"extraction_failure_rate"`
	TransportErrors   int64   `json:"transport_errors"`
	RepairedCount     int64   `json:"repaired_count"`
	AvgResponseLength float64 `json:"avg_response_length"`
}

// Snapshot returns the current counters. Each counter is read atomically;
// the set as a whole is not a single transaction.
func (a *Aggregator) Snapshot() Snapshot {
	total := a.total.Load()
	s := Snapshot{
		TotalResponses:   total,
		HighQualityCount: a.highQuality.Load(),
		FallbackCount:    a.fallbacks.Load(),
		ExtractionFailed: a.extractionFailed.Load(),
		TransportErrors:  a.transportErrors.Load(),
		RepairedCount:    a.repaired.Load(),
	}
	if total == 0 {
		return s
	}
	n := float64(total)
	s.AverageScore = float64(a.scoreMilli.Load()) / 1000 / n
	s.HighQualityRate = float64(s.HighQualityCount) / n
	s.FallbackRate = float64(s.FallbackCount) / n
	s.ExtractionRate = float64(s.ExtractionFailed) / n
	s.AvgResponseLength = float64(a.responseBytes.Load()) / n
	return s
}
