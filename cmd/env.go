package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legal-analyzer/internal/config"
	"github.com/sells-group/legal-analyzer/internal/generate"
	"github.com/sells-group/legal-analyzer/internal/pipeline"
	"github.com/sells-group/legal-analyzer/internal/progress"
	"github.com/sells-group/legal-analyzer/internal/resilience"
	"github.com/sells-group/legal-analyzer/internal/store"
	anthropicpkg "github.com/sells-group/legal-analyzer/pkg/anthropic"
	"github.com/sells-group/legal-analyzer/pkg/openaigen"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "legal-analyzer.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// providerBreakers builds the per-provider circuit breaker registry from
// config, falling back to the resilience defaults for unset values.
func providerBreakers(c *config.Config) *resilience.ProviderBreakers {
	return resilience.NewProviderBreakers(resilience.WithBreakerConfig(
		c.Breaker.FailureThreshold,
		time.Duration(c.Breaker.ResetTimeoutSecs)*time.Second,
	))
}

// buildGenerators wires the two Anthropic instances and the optional OpenAI
// fallback from config. Each provider gets its own circuit breaker so an
// outage on one model does not block the other.
func buildGenerators(c *config.Config) (primary, secondary, fallback generate.Generator) {
	retry := resilience.WithConfig(
		c.Retry.MaxAttempts,
		time.Duration(c.Retry.InitialBackoffMS)*time.Millisecond,
		time.Duration(c.Retry.MaxBackoffMS)*time.Millisecond,
	)
	breakers := providerBreakers(c)

	anthropicClient := anthropicpkg.NewClient(c.Anthropic.Key)

	primary = generate.NewAnthropic(anthropicClient, generate.AnthropicOptions{
		Name:              "anthropic-primary",
		Model:             c.Anthropic.PrimaryModel,
		Timeout:           c.Pipeline.StageTimeout(),
		RequestsPerMinute: c.Anthropic.RequestsPerMinute,
		Retry:             retry,
		Breaker:           breakers.Get("anthropic-primary"),
		CacheSystem:       c.Anthropic.CacheDocument,
	})

	secondary = generate.NewAnthropic(anthropicClient, generate.AnthropicOptions{
		Name:              "anthropic-secondary",
		Model:             c.Anthropic.SecondaryModel,
		Timeout:           c.Pipeline.StageTimeout(),
		RequestsPerMinute: c.Anthropic.RequestsPerMinute,
		Retry:             retry,
		Breaker:           breakers.Get("anthropic-secondary"),
		CacheSystem:       c.Anthropic.CacheDocument,
	})

	if c.OpenAI.Key != "" {
		var openaiClient openaigen.Client
		if c.OpenAI.BaseURL != "" {
			openaiClient = openaigen.NewClientWithBaseURL(c.OpenAI.Key, c.OpenAI.BaseURL)
		} else {
			openaiClient = openaigen.NewClient(c.OpenAI.Key)
		}
		fallback = generate.NewOpenAI(openaiClient, generate.OpenAIOptions{
			Name:    "openai-fallback",
			Model:   c.OpenAI.Model,
			Timeout: c.Pipeline.StageTimeout(),
			Retry:   retry,
			Breaker: breakers.Get("openai-fallback"),
		})
	}

	return primary, secondary, fallback
}

// env bundles everything a long-running command needs.
type env struct {
	Store    store.Store
	Registry *progress.Registry
	Service  *pipeline.Service
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	primary, secondary, fallback := buildGenerators(cfg)
	registry := progress.NewRegistry()
	p := pipeline.New(primary, secondary, fallback, registry)
	svc := pipeline.NewService(p, registry, st, cfg.Pipeline.MaxConcurrentAnalyses)

	return &env{Store: st, Registry: registry, Service: svc}, nil
}

func (e *env) Close() {
	e.Service.Wait()
	e.Store.Close()
}
