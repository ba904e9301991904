package generate

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/legal-analyzer/internal/resilience"
	"github.com/sells-group/legal-analyzer/pkg/openaigen"
)

// OpenAIOptions configures the OpenAI-backed fallback generator.
type OpenAIOptions struct {
	Name    string
	Model   string
	Timeout time.Duration

	RequestsPerMinute int

	Retry   resilience.RetryConfig
	Breaker *resilience.CircuitBreaker
}

// OpenAIGenerator is a Generator backed by an OpenAI chat model. It serves
// as the stage-1 fallback when both Anthropic instances are unavailable.
type OpenAIGenerator struct {
	client  openaigen.Client
	opts    OpenAIOptions
	limiter *rate.Limiter
}

// NewOpenAI wraps an OpenAI client as a Generator.
func NewOpenAI(client openaigen.Client, opts OpenAIOptions) *OpenAIGenerator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	g := &OpenAIGenerator{client: client, opts: opts}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.RequestsPerMinute)
	}
	return g
}

func (g *OpenAIGenerator) Name() string {
	return g.opts.Name
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &GenerationError{Provider: g.opts.Name, Err: err}
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	creq := openaigen.ChatRequest{
		Model:     g.opts.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []openaigen.Message{{Role: "user", Content: req.Prompt}},
		JSONMode:  true,
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		creq.Temperature = &temp
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	retryCfg := g.opts.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(g.opts.Name, "chat_completion")
	}

	resp, err := resilience.DoVal(callCtx, retryCfg, func(ctx context.Context) (*openaigen.ChatResponse, error) {
		if g.opts.Breaker != nil {
			return resilience.ExecuteVal(ctx, g.opts.Breaker, func(ctx context.Context) (*openaigen.ChatResponse, error) {
				return g.client.CreateChatCompletion(ctx, creq)
			})
		}
		return g.client.CreateChatCompletion(ctx, creq)
	})
	if err != nil {
		return nil, &GenerationError{Provider: g.opts.Name, Err: err}
	}

	return &Result{Text: resp.Text, Model: resp.Model}, nil
}
