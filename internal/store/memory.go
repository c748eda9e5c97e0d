package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

// MemoryStore implements Store in process memory. Analyses are stored as
// JSON so callers never share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses map[string][]byte
	quality  []model.QualityRecord
	dlq      map[string]resilience.DLQEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		analyses: make(map[string][]byte),
		dlq:      make(map[string]resilience.DLQEntry),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveAnalysis(ctx context.Context, a *model.Analysis) error {
	return s.SaveAnalyses(ctx, []*model.Analysis{a})
}

func (s *MemoryStore) SaveAnalyses(_ context.Context, as []*model.Analysis) error {
	rows := make([]analysisRow, 0, len(as))
	for _, a := range as {
		row, err := toRow(a)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.analyses[row.messageID] = row.result
	}
	return nil
}

func (s *MemoryStore) GetAnalysis(_ context.Context, messageID string) (*model.Analysis, error) {
	s.mu.RLock()
	data, ok := s.analyses[messageID]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: analysis %s", messageID)
	}
	return decodeAnalysis(data)
}

func (s *MemoryStore) ListAnalyses(_ context.Context, filter AnalysisFilter) ([]model.Analysis, error) {
	s.mu.RLock()
	all := make([]*model.Analysis, 0, len(s.analyses))
	for _, data := range s.analyses {
		a, err := decodeAnalysis(data)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		all = append(all, a)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].MessageID < all[j].MessageID
	})

	out := []model.Analysis{}
	skipped := 0
	for _, a := range all {
		if !matchAnalysis(a, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, *a)
		if len(out) == listLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}

func matchAnalysis(a *model.Analysis, f AnalysisFilter) bool {
	switch {
	case f.Priority != "" && a.Priority() != f.Priority:
		return false
	case f.FinalPhase != 0 && a.FinalPhase() != f.FinalPhase:
		return false
	case f.DegradedOnly && !a.Degraded:
		return false
	case !f.Since.IsZero() && a.CreatedAt.Before(f.Since):
		return false
	}
	return true
}

func (s *MemoryStore) SaveQualityRecords(_ context.Context, recs []model.QualityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		s.quality = append(s.quality, r)
	}
	return nil
}

func (s *MemoryStore) ListQualityRecords(_ context.Context, filter QualityFilter) ([]model.QualityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.QualityRecord{}
	for i := len(s.quality) - 1; i >= 0; i-- {
		r := s.quality[i]
		if filter.MessageID != "" && r.MessageID != filter.MessageID {
			continue
		}
		if filter.Phase != 0 && r.Phase != filter.Phase {
			continue
		}
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, r)
		if len(out) == listLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) EnqueueDLQ(_ context.Context, entry resilience.DLQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.dlq {
		if existing.Message.ID == entry.Message.ID {
			existing.Error = entry.Error
			existing.ErrorType = entry.ErrorType
			existing.FailedPhase = entry.FailedPhase
			existing.NextRetryAt = entry.NextRetryAt
			existing.LastFailedAt = entry.LastFailedAt
			s.dlq[id] = existing
			return nil
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	s.dlq[entry.ID] = entry
	return nil
}

func (s *MemoryStore) ListDLQ(_ context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	s.mu.RLock()
	out := []resilience.DLQEntry{}
	for _, e := range s.dlq {
		if filter.ErrorType != "" && e.ErrorType != filter.ErrorType {
			continue
		}
		if !filter.DueBefore.IsZero() && (e.NextRetryAt.After(filter.DueBefore) || !e.CanRetry()) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRetryAt.Equal(out[j].NextRetryAt) {
			return out[i].NextRetryAt.Before(out[j].NextRetryAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit := listLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) IncrementDLQRetry(_ context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.dlq[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "memory: dlq entry %s", id)
	}
	e.RetryCount++
	e.NextRetryAt = nextRetryAt
	e.Error = lastErr
	e.LastFailedAt = time.Now().UTC()
	s.dlq[id] = e
	return nil
}

func (s *MemoryStore) RemoveDLQ(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dlq, id)
	return nil
}

func (s *MemoryStore) CountDLQ(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dlq), nil
}
