package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/juniperkb/juniper/internal/knowledge"
	"github.com/juniperkb/juniper/internal/log"
	"github.com/juniperkb/juniper/internal/provider"
)

// Stage identifies the pipeline phase in which a failure occurred.
type Stage string

const (
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageComposing  Stage = "composing"
	StageGenerating Stage = "generating"
)

// StageError wraps a pipeline failure with the stage that produced it, so
// callers can match the underlying sentinel with errors.Is while still
// reporting where the pipeline stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("rag %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

const (
	// DefaultTopK is the number of chunks retrieved when the caller does
	// not say otherwise.
	DefaultTopK = 4

	// maxHistoryExchanges caps how much conversation history is folded
	// into the prompt; older exchanges are dropped silently.
	maxHistoryExchanges = 8
)

// Exchange is one prior question/answer pair carried into the prompt.
type Exchange struct {
	Question string
	Answer   string
}

// AskOptions tune a single Ask call. The zero value retrieves DefaultTopK
// chunks with no score floor and no history.
type AskOptions struct {
	TopK            int
	MinScore        float64
	MaxPromptChunks int // 0 means no cap beyond TopK
	History         []Exchange
}

// Answer is the completed result of an Ask call. Citations lists the ids
// of the chunks that were placed in the prompt, in retrieval order; it is
// empty when the store had nothing relevant.
type Answer struct {
	Text      string
	Citations []string
}

// Config sets the chunking parameters the engine applies during Ingest.
// A non-positive MaxChunkChars and a negative OverlapChars fall back to
// the knowledge package defaults; zero overlap is honored.
type Config struct {
	MaxChunkChars int
	OverlapChars  int
}

// Engine drives the retrieve-augment-generate pipeline against a
// per-agent knowledge store. It is safe for concurrent use; per-call state
// lives on the stack.
type Engine struct {
	embedder  provider.Embedder
	generator provider.Generator
	cfg       Config
	logger    log.Logger
	tracer    trace.Tracer
}

// New builds an Engine. logger may be nil.
func New(embedder provider.Embedder, generator provider.Generator, cfg Config, logger log.Logger) *Engine {
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = knowledge.DefaultMaxChunkChars
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = knowledge.DefaultOverlapChars
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
		logger:    logger.With("component", "rag"),
		tracer:    otel.Tracer("juniper/rag"),
	}
}

// Ask answers query from the given store. Streaming fragments are
// forwarded to onFragment as they arrive; onFragment may be nil. Fragments
// already delivered are never retracted, even when Ask returns an error.
func (e *Engine) Ask(ctx context.Context, store *knowledge.Store, query string, opts AskOptions, onFragment provider.StreamCallback) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &StageError{Stage: StageComposing, Err: fmt.Errorf("empty query")}
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	ctx, span := e.tracer.Start(ctx, "rag.ask",
		trace.WithAttributes(attribute.Int("rag.top_k", opts.TopK)))
	defer span.End()

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &StageError{Stage: StageEmbedding, Err: err}
	}

	results, err := store.Search(vec, opts.TopK, opts.MinScore)
	if err != nil {
		return nil, &StageError{Stage: StageRetrieving, Err: err}
	}
	if opts.MaxPromptChunks > 0 && len(results) > opts.MaxPromptChunks {
		results = results[:opts.MaxPromptChunks]
	}
	span.SetAttributes(attribute.Int("rag.retrieved", len(results)))

	prompt := composePrompt(query, results, opts.History)

	text, err := e.generator.Generate(ctx, prompt, onFragment)
	if err != nil {
		return nil, &StageError{Stage: StageGenerating, Err: err}
	}

	citations := make([]string, 0, len(results))
	for _, r := range results {
		citations = append(citations, r.Chunk.ID)
	}
	e.logger.DebugContext(ctx, "ask completed",
		"retrieved", len(results), "answer_chars", len(text))
	return &Answer{Text: text, Citations: citations}, nil
}

// Ingest splits rawText, embeds every chunk and replaces whatever the
// store previously held for source in a single atomic mutation.
// Re-ingesting identical text is a no-op for readers beyond a revision
// bump. It returns the number of chunks indexed.
func (e *Engine) Ingest(ctx context.Context, store *knowledge.Store, source, rawText string) (int, error) {
	ctx, span := e.tracer.Start(ctx, "rag.ingest",
		trace.WithAttributes(attribute.String("rag.source", source)))
	defer span.End()

	chunks := knowledge.SplitText(rawText, source, e.cfg.MaxChunkChars, e.cfg.OverlapChars)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("ingest %q: no indexable text", source)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, &StageError{Stage: StageEmbedding, Err: err}
	}

	now := time.Now().UTC()
	entries := make([]knowledge.Entry, len(chunks))
	for i, c := range chunks {
		c.CreatedAt = now
		entries[i] = knowledge.Entry{Chunk: c, Vector: vectors[i]}
	}
	if err := store.ReplaceSource(source, entries); err != nil {
		return 0, fmt.Errorf("ingest %q: %w", source, err)
	}
	e.logger.InfoContext(ctx, "source ingested",
		"source", source, "chunks", len(entries), "revision", store.Revision())
	return len(entries), nil
}

// RemoveSource drops every chunk ingested under source. Removing a source
// the store has never seen is a no-op.
func (e *Engine) RemoveSource(ctx context.Context, store *knowledge.Store, source string) error {
	if err := store.DeleteBySource(source); err != nil {
		return fmt.Errorf("remove %q: %w", source, err)
	}
	e.logger.InfoContext(ctx, "source removed", "source", source)
	return nil
}

// composePrompt lays out the grounding contract: answer strictly from the
// supplied context, admit ignorance when it is missing, never invent
// sources. An empty retrieval gets an explicit statement instead of an
// empty section so the model does not hallucinate one.
func composePrompt(query string, results []knowledge.Result, history []Exchange) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant. Answer the question using only the context below.\n")
	b.WriteString("If the context does not contain the answer, say that you don't know.\n")
	b.WriteString("Never invent information and never cite sources that are not in the context.\n\n")

	b.WriteString("Context:\n")
	if len(results) == 0 {
		b.WriteString("No relevant context was found for this question.\n")
	} else {
		for _, r := range results {
			fmt.Fprintf(&b, "[source: %s | chunk: %s]\n%s\n\n", r.Chunk.Source, r.Chunk.ID, r.Chunk.Text)
		}
	}

	if len(history) > maxHistoryExchanges {
		history = history[len(history)-maxHistoryExchanges:]
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, ex := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.Question, ex.Answer)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", query)
	return b.String()
}
