// Package mcp exposes the agent and knowledge operations as a Model
// Context Protocol server over stdio. The tool surface is a closed
// enumeration registered at startup; there is no dynamic dispatch.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/juniperkb/juniper/internal/agent"
	"github.com/juniperkb/juniper/internal/extract"
	"github.com/juniperkb/juniper/internal/log"
	"github.com/juniperkb/juniper/internal/rag"
)

// Server wraps the MCP SDK server around the agent registry and the RAG
// engine.
type Server struct {
	mcpServer *mcp.Server
	registry  *agent.Registry
	engine    *rag.Engine
	extractor *extract.Extractor
	askOpts   rag.AskOptions
	logger    log.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string

	Registry  *agent.Registry
	Engine    *rag.Engine
	Extractor *extract.Extractor

	// AskDefaults apply when a tool call leaves retrieval knobs unset.
	AskDefaults rag.AskOptions
}

// NewServer creates the server and registers every tool.
func NewServer(cfg Config, logger log.Logger) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Registry == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("registry and engine are required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		registry:  cfg.Registry,
		engine:    cfg.Engine,
		extractor: cfg.Extractor,
		askOpts:   cfg.AskDefaults,
		logger:    logger.With("component", "mcp"),
	}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP over the given transport until ctx is canceled. This is
// a blocking call.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	return s.mcpServer.Run(ctx, transport)
}

// RunStdio serves the MCP protocol over stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}
