// Package app assembles the application: tracing, Genkit with the
// configured AI provider, the provider adapters, the agent registry and
// the RAG engine. Commands and the MCP server consume a ready App and
// never wire components themselves.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/juniperkb/juniper/internal/agent"
	"github.com/juniperkb/juniper/internal/config"
	"github.com/juniperkb/juniper/internal/extract"
	"github.com/juniperkb/juniper/internal/knowledge"
	"github.com/juniperkb/juniper/internal/log"
	"github.com/juniperkb/juniper/internal/rag"
)

// App is the application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Genkit   *genkit.Genkit
	Registry *agent.Registry
	Engine   *rag.Engine
	Extract  *extract.Extractor

	otelShutdown func(context.Context) error
}

// Close flushes tracing and releases resources. Safe to call once.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Debug("shutting down")
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return a.otelShutdown(ctx)
	}
	return nil
}

// AgentStore resolves an agent reference (id or name) and returns the
// agent together with its knowledge store.
func (a *App) AgentStore(ref string) (agent.Agent, *knowledge.Store, error) {
	ag, err := a.Registry.Resolve(ref)
	if err != nil {
		return agent.Agent{}, nil, err
	}
	store, err := a.Registry.Store(ag.ID)
	if err != nil {
		return agent.Agent{}, nil, err
	}
	return ag, store, nil
}

// httpClient is shared by the extraction paths.
func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
