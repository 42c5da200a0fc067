package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/juniperkb/juniper/internal/knowledge"
	"github.com/juniperkb/juniper/internal/log"
)

// StreamCallback receives one text fragment as the provider produces it.
// Returning an error aborts the stream; fragments already delivered are
// not retracted.
type StreamCallback func(ctx context.Context, fragment string) error

// Generator produces text from a prompt as a lazy, finite, non-restartable
// stream of fragments. The returned string is the full answer reassembled
// after the stream ends. cb may be nil for non-streaming use.
type Generator interface {
	Generate(ctx context.Context, prompt string, cb StreamCallback) (string, error)
}

// defaultGenerateTimeout bounds a single generation attempt.
const defaultGenerateTimeout = 2 * time.Minute

// GeneratorConfig configures a GenkitGenerator. The zero value uses defaults.
type GeneratorConfig struct {
	Model   string // model name as registered with Genkit, e.g. "googleai/gemini-2.5-flash"
	Retry   RetryConfig
	Timeout time.Duration
	Limiter *rate.Limiter
}

// GenkitGenerator adapts genkit.Generate to the Generator interface.
type GenkitGenerator struct {
	g      *genkit.Genkit
	cfg    GeneratorConfig
	logger log.Logger
}

// NewGenerator wraps a Genkit instance for the configured model.
func NewGenerator(g *genkit.Genkit, cfg GeneratorConfig, logger log.Logger) *GenkitGenerator {
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerateTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitGenerator{g: g, cfg: cfg, logger: logger}
}

// Generate runs the model over the prompt, forwarding fragments to cb as
// they arrive. Attempts are retried with backoff only while nothing has
// been streamed yet: once a fragment reached the caller the stream is
// non-restartable and any failure surfaces immediately.
func (gen *GenkitGenerator) Generate(ctx context.Context, prompt string, cb StreamCallback) (string, error) {
	var lastErr error
	delay := gen.cfg.Retry.InitialInterval

	for attempt := 0; attempt <= gen.cfg.Retry.MaxRetries; attempt++ {
		if gen.cfg.Limiter != nil {
			if err := gen.cfg.Limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, gen.cfg.Timeout)
		text, streamed, err := gen.generateOnce(attemptCtx, prompt, cb)
		timedOut := attemptCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Caller cancellation: stop forwarding, release the attempt,
			// report the cancellation rather than a provider failure.
			return "", ctx.Err()
		}
		if streamed {
			break // non-restartable once fragments were delivered
		}
		if !timedOut && !retryableError(err) {
			break
		}
		if attempt == gen.cfg.Retry.MaxRetries {
			break
		}

		gen.logger.Debug("retrying generation", "attempt", attempt+1, "delay", delay, "error", err)
		var berr error
		if delay, berr = backoff(ctx, delay, gen.cfg.Retry.MaxInterval); berr != nil {
			return "", berr
		}
	}

	return "", fmt.Errorf("generate: %v: %w", lastErr, knowledge.ErrGenerationUnavailable)
}

// generateOnce performs a single model call, reporting whether any fragment
// was delivered to the caller before the error (if any) occurred.
func (gen *GenkitGenerator) generateOnce(ctx context.Context, prompt string, cb StreamCallback) (string, bool, error) {
	streamed := false

	opts := []ai.GenerateOption{
		ai.WithModelName(gen.cfg.Model),
		ai.WithPrompt(prompt),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			streamed = true
			return cb(ctx, text)
		}))
	}

	resp, err := genkit.Generate(ctx, gen.g, opts...)
	if err != nil {
		return "", streamed, err
	}
	return resp.Text(), streamed, nil
}
