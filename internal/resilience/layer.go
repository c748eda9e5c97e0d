package resilience

import (
	"github.com/sells-group/email-analyzer/internal/model"
)

// DefaultQualityThreshold is the minimum score a parsed response needs to be
// used as-is.
const DefaultQualityThreshold = 6.0

// Rejection reasons reported in Evaluation.Reason.
const (
	ReasonTransport   = "transport failure"
	ReasonNoData      = "no structured data"
	ReasonLowQuality  = "quality below threshold"
	ReasonEmptyOutput = "empty response"
)

// Layer turns model text into accepted structured data or a fallback
// decision.
type Layer struct {
	QualityThreshold float64
}

// NewLayer creates a Layer. A non-positive threshold uses the default.
func NewLayer(threshold float64) *Layer {
	if threshold <= 0 {
		threshold = DefaultQualityThreshold
	}
	return &Layer{QualityThreshold: threshold}
}

// Evaluation is the outcome of reading one model response. When Accepted is
// false the caller must build a hybrid result; Parsed.Data may still hold
// low-quality data for salvage.
type Evaluation struct {
	Parsed
	Score            float64
	Accepted         bool
	Reason           string
	ExtractionFailed bool
}

// Provenance returns the provenance the caller's result will carry.
func (e Evaluation) Provenance() model.Provenance {
	if !e.Accepted {
		return model.ProvenanceHybrid
	}
	return e.Parsed.Provenance
}

// Evaluate parses raw and gates it on spec. It never fails.
func (l *Layer) Evaluate(raw string, spec QualitySpec) Evaluation {
	if raw == "" {
		return Evaluation{Parsed: Parsed{Err: ErrNoStructuredData}, Reason: ReasonEmptyOutput, ExtractionFailed: true}
	}
	p := Parse(raw)
	if !p.OK() {
		return Evaluation{Parsed: p, Reason: ReasonNoData, ExtractionFailed: true}
	}
	score := ScoreQuality(p.Data, spec)
	ev := Evaluation{Parsed: p, Score: score, Accepted: score >= l.QualityThreshold}
	if !ev.Accepted {
		ev.Reason = ReasonLowQuality
	}
	return ev
}

// TransportFailure is the Evaluation for a call that returned no text.
// It is not an extraction failure; the model never answered.
func TransportFailure(err error) Evaluation {
	return Evaluation{Parsed: Parsed{Err: err}, Reason: ReasonTransport}
}
