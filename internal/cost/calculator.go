// Package cost prices model token usage and tracks spend per run.
package cost

import (
	"sort"
	"sync"
)

// Rates holds per-model pricing keyed by model identifier. Models without
// a rate (local servers) cost nothing.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for model usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Model computes the cost of one call. Unknown models cost 0.
func (c *Calculator) Model(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + cwCost + crCost
}

// Known reports whether model has a configured rate.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// DefaultRates returns the default pricing for hosted models.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"gpt-4o-mini": {
				Input: 0.15, Output: 0.60, CacheReadMul: 0.5,
			},
			"gpt-4o": {
				Input: 2.50, Output: 10.00, CacheReadMul: 0.5,
			},
		},
	}
}

// Tracker accumulates spend across concurrent calls.
type Tracker struct {
	mu      sync.Mutex
	total   float64
	byModel map[string]float64
	calls   int
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byModel: make(map[string]float64)}
}

// Add records usd spent on model.
func (t *Tracker) Add(model string, usd float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total += usd
	t.byModel[model] += usd
	t.calls++
}

// Total returns the accumulated spend.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ModelSpend is the spend attributed to one model.
type ModelSpend struct {
	Model string  `json:"model"`
	USD   float64 `json:"usd"`
}

// ByModel returns spend per model, highest first.
func (t *Tracker) ByModel() []ModelSpend {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ModelSpend, 0, len(t.byModel))
	for m, usd := range t.byModel {
		out = append(out, ModelSpend{Model: m, USD: usd})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].USD != out[j].USD {
			return out[i].USD > out[j].USD
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Calls returns the number of recorded calls.
func (t *Tracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
