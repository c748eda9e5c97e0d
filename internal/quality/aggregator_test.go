package quality

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/email-analyzer/internal/model"
)

func TestAggregator_Empty(t *testing.T) {
	t.Parallel()

	s := NewAggregator(0).Snapshot()
	assert.Zero(t, s.TotalResponses)
	assert.Zero(t, s.AverageScore)
	assert.Zero(t, s.FallbackRate)
}

func TestAggregator_Snapshot(t *testing.T) {
	t.Parallel()

	a := NewAggregator(0)
	a.Record(model.QualityRecord{Score: 10, Provenance: model.ProvenanceModel, ResponseLength: 400})
	a.Record(model.QualityRecord{Score: 8, Provenance: model.ProvenanceRepaired, ResponseLength: 200})
	a.Record(model.QualityRecord{Score: 3, Provenance: model.ProvenanceHybrid, UsedFallback: true, ResponseLength: 90})
	a.Record(model.QualityRecord{Provenance: model.ProvenanceHybrid, UsedFallback: true, ExtractionFailed: true, TransportError: "timeout"})

	s := a.Snapshot()
	assert.Equal(t, int64(4), s.TotalResponses)
	assert.InDelta(t, 5.25, s.AverageScore, 0.0001)
	assert.Equal(t, int64(2), s.HighQualityCount)
	assert.InDelta(t, 0.5, s.HighQualityRate, 0.0001)
	assert.Equal(t, int64(2), s.FallbackCount)
	assert.InDelta(t, 0.5, s.FallbackRate, 0.0001)
	assert.Equal(t, int64(1), s.ExtractionFailed)
	assert.InDelta(t, 0.25, s.ExtractionRate, 0.0001)
	assert.Equal(t, int64(1), s.TransportErrors)
	assert.Equal(t, int64(1), s.RepairedCount)
	assert.InDelta(t, 172.5, s.AvgResponseLength, 0.0001)
}

func TestAggregator_CustomThreshold(t *testing.T) {
	t.Parallel()

	a := NewAggregator(9.5)
	a.Record(model.QualityRecord{Score: 9})
	a.Record(model.QualityRecord{Score: 9.5})
	assert.Equal(t, int64(1), a.Snapshot().HighQualityCount)
}

func TestAggregator_Concurrent(t *testing.T) {
	t.Parallel()

	a := NewAggregator(0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Record(model.QualityRecord{Score: 8, UsedFallback: i%4 == 0})
		}(i)
	}
	wg.Wait()

	s := a.Snapshot()
	assert.Equal(t, int64(100), s.TotalResponses)
	assert.Equal(t, int64(25), s.FallbackCount)
	assert.InDelta(t, 8.0, s.AverageScore, 0.0001)
	assert.InDelta(t, 1.0, s.HighQualityRate, 0.0001)
}

func TestAggregator_Monotonic(t *testing.T) {
	t.Parallel()

	a := NewAggregator(0)
	var prev Snapshot
	for i := 0; i < 10; i++ {
		a.Record(model.QualityRecord{Score: float64(i), UsedFallback: i%2 == 0, ExtractionFailed: i%3 == 0})
		s := a.Snapshot()
		assert.GreaterOrEqual(t, s.TotalResponses, prev.TotalResponses)
		assert.GreaterOrEqual(t, s.FallbackCount, prev.FallbackCount)
		assert.GreaterOrEqual(t, s.ExtractionFailed, prev.ExtractionFailed)
		assert.GreaterOrEqual(t, s.HighQualityCount, prev.HighQualityCount)
		prev = s
	}
}
