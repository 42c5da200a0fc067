package app

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"golang.org/x/time/rate"

	"github.com/juniperkb/juniper/internal/agent"
	"github.com/juniperkb/juniper/internal/config"
	"github.com/juniperkb/juniper/internal/extract"
	"github.com/juniperkb/juniper/internal/log"
	"github.com/juniperkb/juniper/internal/observability"
	"github.com/juniperkb/juniper/internal/provider"
	"github.com/juniperkb/juniper/internal/rag"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// Tracing goes first so every later component observes the global
	// tracer provider.
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.TraceEndpoint,
		ServiceName: "juniper",
	}, logger)
	if err != nil {
		return nil, err
	}
	a.otelShutdown = shutdown

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	limiter := provideLimiter(cfg)
	retry := provider.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	emb := provider.NewEmbedder(embedder, provider.EmbedderConfig{
		Retry:   retry,
		Timeout: cfg.EmbedTimeout,
		Limiter: limiter,
	}, logger)
	gen := provider.NewGenerator(g, provider.GeneratorConfig{
		Model:   providerModelName(cfg),
		Retry:   retry,
		Timeout: cfg.GenerateTimeout,
		Limiter: limiter,
	}, logger)

	registry, err := agent.OpenRegistry(cfg.DataDir, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	a.Engine = rag.New(emb, gen, rag.Config{
		MaxChunkChars: cfg.MaxChunkChars,
		OverlapChars:  cfg.OverlapChars,
	}, logger)

	a.Extract = extract.New(httpClient(), logger)

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider and
// returns the registered embedder. Ollama requires explicit model and
// embedder registration; Gemini models are discovered by name.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		plugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder := ollama.Embedder(g, cfg.OllamaHost)
		if embedder == nil {
			return nil, nil, errors.New("ollama embedder not registered")
		}
		logger.Info("initialized genkit",
			"provider", cfg.Provider, "model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, embedder, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, nil, errors.New("gemini embedder not found: " + cfg.EmbedderModel)
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
		return g, embedder, nil
	}
}

// providerModelName qualifies the model for genkit.Generate lookups.
func providerModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}

func provideLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RequestsPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
}
