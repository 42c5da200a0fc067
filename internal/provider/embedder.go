package provider

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/juniperkb/juniper/internal/knowledge"
	"github.com/juniperkb/juniper/internal/log"
)

// Embedder turns text into fixed-dimension vectors. The dimension is
// discovered from the first successful call and fixed afterwards; a later
// vector of a different length is a configuration error, not a transient
// failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const (
	// defaultEmbedTimeout bounds a single provider attempt, not the whole
	// retry loop.
	defaultEmbedTimeout = 15 * time.Second

	// embedBatchSize is the number of texts sent per provider request when
	// batching; embedBatchConcurrency bounds in-flight batch requests.
	embedBatchSize        = 16
	embedBatchConcurrency = 4
)

// EmbedderConfig configures a GenkitEmbedder. The zero value uses defaults.
type EmbedderConfig struct {
	Retry   RetryConfig
	Timeout time.Duration // per-attempt timeout
	Limiter *rate.Limiter // optional proactive rate limiting, applied per attempt
}

// GenkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface,
// adding validation, dimension pinning, rate limiting and bounded retries.
type GenkitEmbedder struct {
	embedder ai.Embedder
	cfg      EmbedderConfig
	logger   log.Logger

	mu  sync.Mutex
	dim int
}

// NewEmbedder wraps a Genkit embedder. logger may be nil.
func NewEmbedder(embedder ai.Embedder, cfg EmbedderConfig, logger log.Logger) *GenkitEmbedder {
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEmbedTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitEmbedder{embedder: embedder, cfg: cfg, logger: logger}
}

// Dimension returns the pinned vector dimension, or 0 before the first
// successful call.
func (e *GenkitEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// Embed returns the embedding vector for a single text.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedGroup(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider-sized groups with bounded
// concurrency, preserving input order. The batch is an optimization, not a
// separate contract: failure of any element fails the whole call, and the
// caller may fall back to individual Embed calls.
func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embedGroup(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedGroup performs one retried provider call for a group of texts and
// validates every returned vector.
func (e *GenkitEmbedder) embedGroup(ctx context.Context, texts []string) ([][]float32, error) {
	req := &ai.EmbedRequest{Input: make([]*ai.Document, len(texts))}
	for i, t := range texts {
		req.Input[i] = ai.DocumentFromText(t, nil)
	}

	var lastErr error
	delay := e.cfg.Retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= e.cfg.Retry.MaxRetries; attempt++ {
		if e.cfg.Limiter != nil {
			if err := e.cfg.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		resp, err := e.embedder.Embed(attemptCtx, req)
		timedOut := attemptCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if err == nil {
			vecs, verr := e.validateResponse(resp, len(texts))
			if verr != nil {
				// Structural problem with the provider's output; retrying
				// cannot fix a misconfigured model.
				return nil, verr
			}
			e.logger.Debug("embedded texts",
				"count", len(texts), "attempts", attempt+1, "elapsed", time.Since(start))
			return vecs, nil
		}
		lastErr = err

		// The caller giving up is not a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A per-attempt timeout counts as transient; other errors consult
		// the shared classification.
		if !timedOut && !retryableError(err) {
			return nil, fmt.Errorf("embed: %v: %w", err, knowledge.ErrRetrievalUnavailable)
		}
		if attempt == e.cfg.Retry.MaxRetries {
			break
		}

		e.logger.Debug("retrying embedding", "attempt", attempt+1, "delay", delay, "error", err)
		var berr error
		if delay, berr = backoff(ctx, delay, e.cfg.Retry.MaxInterval); berr != nil {
			return nil, berr
		}
	}

	return nil, fmt.Errorf("embed after %d attempts: %v: %w",
		e.cfg.Retry.MaxRetries+1, lastErr, knowledge.ErrRetrievalUnavailable)
}

// validateResponse checks shape, finiteness and the pinned dimension of
// every returned vector, pinning the dimension on first success.
func (e *GenkitEmbedder) validateResponse(resp *ai.EmbedResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", got, want)
	}

	vecs := make([][]float32, want)
	for i, emb := range resp.Embeddings {
		v := emb.Embedding
		if len(v) == 0 {
			return nil, fmt.Errorf("embedding provider returned an empty vector")
		}
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return nil, fmt.Errorf("embedding provider returned a non-finite component")
			}
		}
		if err := e.pinDimension(len(v)); err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// pinDimension fixes the vector dimension on first success and rejects any
// later disagreement as ErrDimensionMismatch.
func (e *GenkitEmbedder) pinDimension(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = n
		e.logger.Debug("embedding dimension established", "dimension", n)
		return nil
	}
	if n != e.dim {
		return fmt.Errorf("embedder returned %d components, established dimension is %d: %w",
			n, e.dim, knowledge.ErrDimensionMismatch)
	}
	return nil
}
