package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/boq-extractor/internal/ai"
	"github.com/sells-group/boq-extractor/internal/config"
	"github.com/sells-group/boq-extractor/internal/document"
	"github.com/sells-group/boq-extractor/internal/pipeline"
	"github.com/sells-group/boq-extractor/internal/resilience"
	"github.com/sells-group/boq-extractor/internal/store"
	anthropicpkg "github.com/sells-group/boq-extractor/pkg/anthropic"
)

// pipelineEnv holds the store, the optional AI service and the pipeline.
type pipelineEnv struct {
	Store    store.Store
	AI       *ai.Service // may be nil
	Breakers *resilience.ServiceBreakers // nil when AI is off
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.AI != nil {
		if err := pe.AI.Close(); err != nil {
			zap.L().Warn("close ai providers", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store and
// builds the pipeline. AI providers are only opened outside admin mode.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &pipelineEnv{Store: st}
	if mode != "admin" && cfg.AI.Enabled {
		env.Breakers = resilience.NewServiceBreakers(func(name string) resilience.CircuitBreakerConfig {
			return resilience.ProviderBreakerConfig(name, cfg.AI.BreakerThreshold, cfg.AI.BreakerResetSecs)
		})
		svc, err := initAI(ctx, cfg, env.Breakers)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.AI = svc
	}

	env.Pipeline = pipeline.New(cfg, st, initParser(cfg), env.AI)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool: &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
}

func initParser(c *config.Config) *document.Parser {
	var opts []document.Option
	if c.PDF.UsePdfToTextFallback && c.PDF.PdfToTextPath != "" {
		opts = append(opts, document.WithPDFFallback(document.NewPdfToText(c.PDF.PdfToTextPath)))
	}
	return document.NewParser(opts...)
}

// initAI builds every provider. Providers without a key are created
// unavailable so an explicit preference still falls through to the rest.
func initAI(ctx context.Context, c *config.Config, breakers *resilience.ServiceBreakers) (*ai.Service, error) {
	guard := ai.GuardOptions{
		RequestsPerMinute: c.AI.RequestsPerMinute,
		Breakers:          breakers,
	}

	anth := ai.NewAnthropic(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic.Key, c.Anthropic.Model, c.AI.MaxTokens, guard)
	oai := ai.NewOpenAI(c.OpenAI.Key, c.OpenAI.Model, c.OpenAI.BaseURL, c.AI.MaxTokens, guard)
	gem, err := ai.NewGemini(ctx, c.Gemini.Key, c.Gemini.Model, c.AI.MaxTokens, guard)
	if err != nil {
		return nil, err
	}

	svc := ai.NewService(ai.Options{
		Preferred:         c.AI.Provider,
		Timeout:           time.Duration(c.AI.TimeoutSecs) * time.Second,
		MaxChars:          c.AI.MaxChars,
		DescriptionMaxLen: c.Extraction.DescriptionMaxLen,
		SpecRawTextMaxLen: c.Extraction.SpecRawTextMaxLen,
	}, anth, oai, gem)

	zap.L().Debug("ai providers initialized",
		zap.Bool("anthropic", anth.Available()),
		zap.Bool("openai", oai.Available()),
		zap.Bool("gemini", gem.Available()),
	)
	return svc, nil
}
