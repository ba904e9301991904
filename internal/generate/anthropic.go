package generate

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/legal-analyzer/internal/resilience"
	"github.com/sells-group/legal-analyzer/pkg/anthropic"
)

// AnthropicOptions configures an Anthropic-backed generator.
type AnthropicOptions struct {
	// Name distinguishes the primary from the secondary instance.
	Name  string
	Model string

	// Timeout bounds one Generate call including retries. Default: 120s.
	Timeout time.Duration

	// RequestsPerMinute throttles calls to the provider. 0 disables.
	RequestsPerMinute int

	Retry   resilience.RetryConfig
	Breaker *resilience.CircuitBreaker

	// CacheSystem marks the system block with a cache breakpoint so
	// repeated stages over the same document hit the prompt cache.
	CacheSystem bool
}

// AnthropicGenerator is a Generator backed by one Anthropic model.
type AnthropicGenerator struct {
	client  anthropic.Client
	opts    AnthropicOptions
	limiter *rate.Limiter
}

// NewAnthropic wraps an Anthropic client as a Generator.
func NewAnthropic(client anthropic.Client, opts AnthropicOptions) *AnthropicGenerator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	g := &AnthropicGenerator{client: client, opts: opts}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.RequestsPerMinute)
	}
	return g
}

func (g *AnthropicGenerator) Name() string {
	return g.opts.Name
}

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &GenerationError{Provider: g.opts.Name, Err: err}
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	mreq := anthropic.MessageRequest{
		Model:       g.opts.Model,
		MaxTokens:   int64(maxTokens),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.System != "" {
		if g.opts.CacheSystem {
			mreq.System = anthropic.BuildCachedSystemBlocks(req.System)
		} else {
			mreq.System = []anthropic.SystemBlock{{Text: req.System}}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	retryCfg := g.opts.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(g.opts.Name, "create_message")
	}

	resp, err := resilience.DoVal(callCtx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if g.opts.Breaker != nil {
			return resilience.ExecuteVal(ctx, g.opts.Breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
				return g.client.CreateMessage(ctx, mreq)
			})
		}
		return g.client.CreateMessage(ctx, mreq)
	})
	if err != nil {
		return nil, &GenerationError{Provider: g.opts.Name, Err: err}
	}

	resp.Usage.LogCost(resp.Model, req.Stage)
	return &Result{Text: resp.Text(), Model: resp.Model}, nil
}
