package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sells-group/email-analyzer/internal/llm"
	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/pipeline"
	"github.com/sells-group/email-analyzer/internal/quality"
	"github.com/sells-group/email-analyzer/internal/store"
)

// offlineGenerator fails every call, so model phases take the fallback path.
type offlineGenerator struct {
	calls atomic.Int32
}

func (g *offlineGenerator) Provider() string { return "offline" }

func (g *offlineGenerator) Generate(context.Context, string, llm.Options) (*llm.Response, error) {
	g.calls.Add(1)
	return nil, errors.New("model offline")
}

var (
	newsletter = model.Message{
		ID:         "msg-news",
		Subject:    "FYI: weekly newsletter",
		Body:       "This week in the industry: trade show recap and new product spotlights.",
		Sender:     "news@vendor-updates.com",
		ReceivedAt: time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC),
	}
	deliveryQuestion = model.Message{
		ID:         "msg-delivery",
		Subject:    "Delivery schedule question",
		Body:       "Hi team, could you confirm the delivery date for our replacement parts order of $1,200? Thanks, Dana",
		Sender:     "dana@smallshop.com",
		ReceivedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
)

// newTestEnv builds an appEnv over a memory store and gen.
func newTestEnv(t *testing.T, gen llm.Generator) *appEnv {
	t.Helper()
	c := testConfig()
	st := store.NewMemory()
	env := &appEnv{
		Store:   st,
		Guard:   newGuard(gen, c),
		Quality: quality.NewAggregator(c.Quality.HighQualityThreshold),
	}
	env.Pipeline = pipeline.New(pipelineConfig(c), env.Guard,
		pipeline.WithStore(st),
		pipeline.WithRecorder(env.Quality),
	)
	t.Cleanup(env.Close)
	return env
}
