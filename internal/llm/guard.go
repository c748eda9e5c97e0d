package llm

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/email-analyzer/internal/resilience"
)

// Guard decorates a Generator with the transport protections every model
// call goes through: request pacing, a per-endpoint circuit breaker, the
// retry policy and a per-attempt timeout.
type Guard struct {
	next     Generator
	breakers *resilience.Breakers
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithBreakers shares a breaker registry, so open circuits are visible to
// monitoring.
func WithBreakers(b *resilience.Breakers) GuardOption {
	return func(g *Guard) { g.breakers = b }
}

// WithRateLimit paces calls to rps requests per second. Zero disables
// pacing.
func WithRateLimit(rps float64, burst int) GuardOption {
	return func(g *Guard) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the attempt policy.
func WithRetry(cfg resilience.RetryConfig) GuardOption {
	return func(g *Guard) { g.retry = cfg }
}

// NewGuard wraps next.
func NewGuard(next Generator, opts ...GuardOption) *Guard {
	g := &Guard{
		next:     next,
		breakers: resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Provider implements Generator.
func (g *Guard) Provider() string { return g.next.Provider() }

// Endpoint returns the breaker key for model.
func (g *Guard) Endpoint(model string) string {
	return g.next.Provider() + "/" + model
}

// Breakers returns the breaker registry.
func (g *Guard) Breakers() *resilience.Breakers { return g.breakers }

// Generate implements Generator. An answer with no text is reported as
// ErrEmptyResponse; it does not count against the circuit.
func (g *Guard) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	endpoint := g.Endpoint(opts.Model)
	cb := g.breakers.Get(endpoint)

	retry := g.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(endpoint, opts.Phase)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Response, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*Response, error) {
			callCtx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}

			start := time.Now()
			resp, err := g.next.Generate(callCtx, prompt, opts)
			if err != nil {
				if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return nil, resilience.NewTransientError(context.DeadlineExceeded, 0)
				}
				return nil, err
			}
			if strings.TrimSpace(resp.Text) == "" {
				return nil, ErrEmptyResponse
			}
			if resp.Elapsed == 0 {
				resp.Elapsed = time.Since(start)
			}
			return resp, nil
		})
	})
}
