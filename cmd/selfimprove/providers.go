package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/selfimprove/pkg/config"
	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/nstogner/selfimprove/pkg/models/gemini"
	"github.com/nstogner/selfimprove/pkg/models/openai"
)

var (
	openAIPrefixes = []string{"gpt-", "o1", "o3", "o4"}
	geminiPrefixes = []string{"gemini"}
)

// newRouter registers a provider for every API key present.
func newRouter(ctx context.Context, cfg config.ModelConfig) (*models.Router, func(), error) {
	router := models.NewRouter()
	cleanup := func() {}

	if cfg.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing gemini: %w", err)
		}
		router.Handle(g, geminiPrefixes...)
		cleanup = g.Close
	}
	if cfg.OpenAIAPIKey != "" {
		router.Handle(openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), openAIPrefixes...)
	}

	for _, m := range []string{cfg.Name, cfg.DiagnosisModel} {
		if _, err := router.Resolve(m); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%w (set %s or %s)", err, config.EnvGeminiAPIKey, config.EnvOpenAIAPIKey)
		}
	}
	slog.Debug("Model router ready", "model", cfg.Name, "diagnosisModel", cfg.DiagnosisModel)
	return router, cleanup, nil
}
