package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/juniperkb/juniper/internal/agent"
	"github.com/juniperkb/juniper/internal/knowledge"
)

// Tool input types. Field docs become the schema the client sees.

type AgentCreateInput struct {
	Name string `json:"name" jsonschema:"Unique name for the new agent"`
}

type AgentDeleteInput struct {
	Agent string `json:"agent" jsonschema:"Agent id or name"`
}

type AgentListInput struct{}

type IngestTextInput struct {
	Agent  string `json:"agent" jsonschema:"Agent id or name"`
	Source string `json:"source" jsonschema:"Source identifier the text is filed under"`
	Text   string `json:"text" jsonschema:"Raw text to index"`
}

type IngestURLInput struct {
	Agent string `json:"agent" jsonschema:"Agent id or name"`
	URL   string `json:"url" jsonschema:"Page to fetch, clean and index"`
}

type AskInput struct {
	Agent    string  `json:"agent" jsonschema:"Agent id or name"`
	Question string  `json:"question" jsonschema:"Question to answer from the agent's knowledge"`
	TopK     int     `json:"top_k,omitempty" jsonschema:"How many chunks to retrieve (default 4)"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"Minimum cosine similarity for a chunk to qualify"`
}

type SourcesInput struct {
	Agent string `json:"agent" jsonschema:"Agent id or name"`
}

type RemoveSourceInput struct {
	Agent  string `json:"agent" jsonschema:"Agent id or name"`
	Source string `json:"source" jsonschema:"Source identifier to remove"`
}

// Tool output types, also returned as structured content.

type AgentInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type IngestOutput struct {
	Agent  string `json:"agent"`
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

type AskOutput struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations,omitempty"`
}

type SourcesOutput struct {
	Sources []string `json:"sources"`
}

func (s *Server) registerTools() error {
	if err := registerTool(s, "agent_create",
		"Create a new agent with an empty knowledge store.", s.agentCreate); err != nil {
		return err
	}
	if err := registerTool(s, "agent_list",
		"List all registered agents.", s.agentList); err != nil {
		return err
	}
	if err := registerTool(s, "agent_delete",
		"Delete an agent and all of its knowledge.", s.agentDelete); err != nil {
		return err
	}
	if err := registerTool(s, "knowledge_ingest_text",
		"Index raw text into an agent's knowledge store under a source id. Re-ingesting a source replaces it.", s.ingestText); err != nil {
		return err
	}
	if err := registerTool(s, "knowledge_ingest_url",
		"Fetch a web page, extract its readable text and index it with the URL as source id.", s.ingestURL); err != nil {
		return err
	}
	if err := registerTool(s, "knowledge_ask",
		"Answer a question from an agent's knowledge with citations. Says so when the knowledge holds nothing relevant.", s.ask); err != nil {
		return err
	}
	if err := registerTool(s, "knowledge_sources",
		"List the sources ingested into an agent's knowledge store.", s.sources); err != nil {
		return err
	}
	if err := registerTool(s, "knowledge_remove_source",
		"Remove every chunk an agent holds for a source.", s.removeSource); err != nil {
		return err
	}
	return nil
}

// registerTool infers the input schema from In and registers the handler.
func registerTool[In, Out any](s *Server, name, desc string, h func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", name, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: schema,
	}, h)
	return nil
}

// textResult builds the human-readable half of a tool response from the
// structured output.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%+v", v))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func (s *Server) agentCreate(ctx context.Context, _ *mcp.CallToolRequest, in AgentCreateInput) (*mcp.CallToolResult, AgentInfo, error) {
	a, err := s.registry.Create(in.Name)
	if err != nil {
		return errResult(err), AgentInfo{}, nil
	}
	out := AgentInfo{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt}
	return textResult(out), out, nil
}

func (s *Server) agentList(ctx context.Context, _ *mcp.CallToolRequest, _ AgentListInput) (*mcp.CallToolResult, []AgentInfo, error) {
	agents := s.registry.List()
	out := make([]AgentInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, AgentInfo{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt})
	}
	return textResult(out), out, nil
}

func (s *Server) agentDelete(ctx context.Context, _ *mcp.CallToolRequest, in AgentDeleteInput) (*mcp.CallToolResult, any, error) {
	a, err := s.registry.Resolve(in.Agent)
	if err != nil {
		return errResult(err), nil, nil
	}
	if err := s.registry.Delete(a.ID); err != nil {
		return errResult(err), nil, nil
	}
	return textResult(map[string]string{"deleted": a.ID}), nil, nil
}

func (s *Server) ingestText(ctx context.Context, _ *mcp.CallToolRequest, in IngestTextInput) (*mcp.CallToolResult, IngestOutput, error) {
	if strings.TrimSpace(in.Source) == "" {
		return errResult(fmt.Errorf("source is required")), IngestOutput{}, nil
	}
	a, store, err := s.agentStore(in.Agent)
	if err != nil {
		return errResult(err), IngestOutput{}, nil
	}
	n, err := s.engine.Ingest(ctx, store, in.Source, in.Text)
	if err != nil {
		return errResult(err), IngestOutput{}, nil
	}
	out := IngestOutput{Agent: a.Name, Source: in.Source, Chunks: n}
	return textResult(out), out, nil
}

func (s *Server) ingestURL(ctx context.Context, _ *mcp.CallToolRequest, in IngestURLInput) (*mcp.CallToolResult, IngestOutput, error) {
	if s.extractor == nil {
		return errResult(fmt.Errorf("url ingestion is not configured")), IngestOutput{}, nil
	}
	a, store, err := s.agentStore(in.Agent)
	if err != nil {
		return errResult(err), IngestOutput{}, nil
	}
	text, err := s.extractor.FromURL(ctx, in.URL)
	if err != nil {
		return errResult(err), IngestOutput{}, nil
	}
	n, err := s.engine.Ingest(ctx, store, in.URL, text)
	if err != nil {
		return errResult(err), IngestOutput{}, nil
	}
	out := IngestOutput{Agent: a.Name, Source: in.URL, Chunks: n}
	return textResult(out), out, nil
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
	_, store, err := s.agentStore(in.Agent)
	if err != nil {
		return errResult(err), AskOutput{}, nil
	}

	opts := s.askOpts
	if in.TopK > 0 {
		opts.TopK = in.TopK
	}
	if in.MinScore != 0 {
		opts.MinScore = in.MinScore
	}

	// MCP responses are unary; fragments are not forwarded.
	ans, err := s.engine.Ask(ctx, store, in.Question, opts, nil)
	if err != nil {
		return errResult(err), AskOutput{}, nil
	}
	out := AskOutput{Answer: ans.Text, Citations: ans.Citations}
	return textResult(out), out, nil
}

func (s *Server) sources(ctx context.Context, _ *mcp.CallToolRequest, in SourcesInput) (*mcp.CallToolResult, SourcesOutput, error) {
	_, store, err := s.agentStore(in.Agent)
	if err != nil {
		return errResult(err), SourcesOutput{}, nil
	}
	out := SourcesOutput{Sources: store.Sources()}
	return textResult(out), out, nil
}

func (s *Server) removeSource(ctx context.Context, _ *mcp.CallToolRequest, in RemoveSourceInput) (*mcp.CallToolResult, any, error) {
	_, store, err := s.agentStore(in.Agent)
	if err != nil {
		return errResult(err), nil, nil
	}
	if err := s.engine.RemoveSource(ctx, store, in.Source); err != nil {
		return errResult(err), nil, nil
	}
	return textResult(map[string]string{"removed": in.Source}), nil, nil
}

func (s *Server) agentStore(ref string) (agent.Agent, *knowledge.Store, error) {
	ag, err := s.registry.Resolve(ref)
	if err != nil {
		return agent.Agent{}, nil, err
	}
	store, err := s.registry.Store(ag.ID)
	if err != nil {
		return agent.Agent{}, nil, err
	}
	return ag, store, nil
}
