package app

import (
	"context"
	"fmt"

	"github.com/ent0n29/cfdbot/internal/chat"
	"github.com/ent0n29/cfdbot/internal/completion"
	"github.com/ent0n29/cfdbot/internal/config"
	"github.com/ent0n29/cfdbot/internal/conversation"
	"github.com/ent0n29/cfdbot/internal/httpapi"
	"github.com/ent0n29/cfdbot/internal/observability"
	"github.com/ent0n29/cfdbot/internal/pressure"
	"github.com/ent0n29/cfdbot/internal/readiness"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Relay    *chat.Relay
	Analyzer *pressure.Analyzer
	Metrics  *observability.Metrics
	Provider string

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	return build(ctx, cfg, observability.NewMetrics(cfg.MetricsNamespace))
}

func build(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (*BuildResult, error) {
	adapter, err := completion.NewAdapter(completion.Config{
		Mode:               cfg.CompletionProvider,
		OpenAIAPIKey:       cfg.OpenAIAPIKey,
		OpenAIBaseURL:      cfg.OpenAIBaseURL,
		OpenAIModel:        cfg.OpenAIModel,
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
		AnthropicModel:     cfg.AnthropicModel,
		AnthropicMaxTokens: cfg.AnthropicMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("completion adapter init failed: %w", err)
	}

	analyzer, err := pressure.NewAnalyzer(pressure.Config{
		SampleStride:      cfg.Analysis.SampleStride,
		PressureThreshold: cfg.Analysis.PressureThreshold,
		ModerateThreshold: cfg.Analysis.ModerateThreshold,
		HighThreshold:     cfg.Analysis.HighThreshold,
		GridRows:          cfg.Analysis.GridRows,
		GridCols:          cfg.Analysis.GridCols,
		CanvasWidth:       cfg.Analysis.CanvasWidth,
		CanvasHeight:      cfg.Analysis.CanvasHeight,
		MaxPixels:         cfg.Analysis.MaxPixels,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer init failed: %w", err)
	}

	ready, err := readiness.NewChecker(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("readiness init failed: %w", err)
	}

	transcript := conversation.NewTranscript(cfg.SystemPrompt)
	relay := chat.NewRelay(transcript, adapter, chat.Options{
		Timeout: cfg.CompletionTimeout,
		Metrics: metrics,
	})

	api := httpapi.New(cfg, relay, analyzer, metrics, ready)

	cleanup := func() error {
		ready.Close()
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Relay:    relay,
		Analyzer: analyzer,
		Metrics:  metrics,
		Provider: adapter.Name(),
		Cleanup:  cleanup,
	}, nil
}
