// Package store persists analyses, per-call quality records and the dead
// letter queue. SQLite is the embedded default; Postgres serves shared
// deployments; the memory store backs tests and dry runs.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps list queries that set no limit.
const DefaultListLimit = 100

// AnalysisFilter specifies criteria for listing analyses.
type AnalysisFilter struct {
	Priority     model.Priority `json:"priority,omitempty"`
	FinalPhase   model.Phase    `json:"final_phase,omitempty"`
	DegradedOnly bool           `json:"degraded_only,omitempty"`
	Since        time.Time      `json:"since,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// QualityFilter specifies criteria for listing quality records.
type QualityFilter struct {
	MessageID string      `json:"message_id,omitempty"`
	Phase     model.Phase `json:"phase,omitempty"`
	Since     time.Time   `json:"since,omitempty"`
	Limit     int         `json:"limit,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Analyses are keyed by message id; saving again replaces the record.
	SaveAnalysis(ctx context.Context, a *model.Analysis) error
	SaveAnalyses(ctx context.Context, as []*model.Analysis) error
	GetAnalysis(ctx context.Context, messageID string) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]model.Analysis, error)

	// Quality records
	SaveQualityRecords(ctx context.Context, recs []model.QualityRecord) error
	ListQualityRecords(ctx context.Context, filter QualityFilter) ([]model.QualityRecord, error)

	// Dead letter queue. Entries are unique per message id.
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// analysisRow is the column projection shared by the SQL stores. The full
// analysis is kept as JSON; the other columns exist for filtering.
type analysisRow struct {
	id          string
	messageID   string
	finalPhase  int
	priority    string
	degraded    bool
	decision    string
	costUSD     float64
	result      []byte
	createdAt   time.Time
	completedAt time.Time
}

func toRow(a *model.Analysis) (analysisRow, error) {
	result, err := json.Marshal(a)
	if err != nil {
		return analysisRow{}, eris.Wrapf(err, "store: marshal analysis %s", a.MessageID)
	}
	return analysisRow{
		id:          a.ID,
		messageID:   a.MessageID,
		finalPhase:  int(a.FinalPhase()),
		priority:    string(a.Priority()),
		degraded:    a.Degraded,
		decision:    a.Decision.String(),
		costUSD:     a.CostUSD,
		result:      result,
		createdAt:   a.CreatedAt.UTC(),
		completedAt: a.CompletedAt.UTC(),
	}, nil
}

func decodeAnalysis(data []byte) (*model.Analysis, error) {
	var a model.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal analysis")
	}
	return &a, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}
