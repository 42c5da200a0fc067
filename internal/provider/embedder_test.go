package provider

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/juniperkb/juniper/internal/knowledge"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockAIEmbedder implements ai.Embedder for testing.
type mockAIEmbedder struct {
	vectors   [][]float32 // per-input vectors; cycled when fewer than inputs
	err       error       // error to return
	failUntil int         // fail the first N calls, then succeed
	delay     time.Duration
	callCount int
}

func (m *mockAIEmbedder) Name() string { return "mock-embedder" }

func (m *mockAIEmbedder) Register(r api.Registry) {}

func (m *mockAIEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil && m.callCount <= m.failUntil {
		return nil, m.err
	}
	if m.err != nil && m.failUntil == 0 {
		return nil, m.err
	}

	resp := &ai.EmbedResponse{}
	for i := range req.Input {
		vec := m.vectors[i%len(m.vectors)]
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

// ============================================================================
// Embed
// ============================================================================

func TestEmbedSuccess(t *testing.T) {
	mock := &mockAIEmbedder{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}
	if e.Dimension() != 3 {
		t.Errorf("Dimension = %d, want 3", e.Dimension())
	}
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	mock := &mockAIEmbedder{
		vectors:   [][]float32{{1, 2}},
		err:       errors.New("503 service unavailable"),
		failUntil: 2,
	}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed after transient failures: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vector length = %d, want 2", len(vec))
	}
	if mock.callCount != 3 {
		t.Errorf("callCount = %d, want 3 (two failures + success)", mock.callCount)
	}
}

func TestEmbedExhaustedRetriesSurfaceRetrievalUnavailable(t *testing.T) {
	mock := &mockAIEmbedder{err: errors.New("connection reset by peer")}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, knowledge.ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
	if mock.callCount != 3 {
		t.Errorf("callCount = %d, want 3 attempts", mock.callCount)
	}
}

func TestEmbedTimeoutIsRetriedThenSurfaced(t *testing.T) {
	mock := &mockAIEmbedder{vectors: [][]float32{{1}}, delay: 50 * time.Millisecond}
	e := NewEmbedder(mock, EmbedderConfig{
		Retry:   fastRetry(),
		Timeout: 5 * time.Millisecond,
	}, nil)

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, knowledge.ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
	if mock.callCount != 3 {
		t.Errorf("callCount = %d, want 3 timed-out attempts", mock.callCount)
	}
}

func TestEmbedNonRetryableErrorFailsFast(t *testing.T) {
	mock := &mockAIEmbedder{err: errors.New("invalid api key")}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, knowledge.ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
	if mock.callCount != 1 {
		t.Errorf("callCount = %d, want 1 (no retries for structural errors)", mock.callCount)
	}
}

func TestEmbedDimensionPinned(t *testing.T) {
	mock := &mockAIEmbedder{vectors: [][]float32{{1, 2, 3}}}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	if _, err := e.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("first Embed: %v", err)
	}

	mock.vectors = [][]float32{{1, 2}}
	_, err := e.Embed(context.Background(), "second")
	if !errors.Is(err, knowledge.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
	// Structural: exactly one more provider call, no retries.
	if mock.callCount != 2 {
		t.Errorf("callCount = %d, want 2", mock.callCount)
	}
}

func TestEmbedRejectsNonFiniteComponents(t *testing.T) {
	mock := &mockAIEmbedder{vectors: [][]float32{{1, float32(math.Inf(1))}}}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error for non-finite component, got nil")
	}
}

func TestEmbedCanceledContext(t *testing.T) {
	mock := &mockAIEmbedder{err: errors.New("503 unavailable")}
	e := NewEmbedder(mock, EmbedderConfig{Retry: RetryConfig{
		MaxRetries:      5,
		InitialInterval: time.Hour, // backoff must be interrupted by cancel
		MaxInterval:     time.Hour,
	}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Embed(ctx, "hello")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Embed did not return after cancellation")
	}
}

// ============================================================================
// EmbedBatch
// ============================================================================

func TestEmbedBatchPreservesOrder(t *testing.T) {
	mock := &mockAIEmbedder{vectors: [][]float32{{1, 0}, {0, 1}}}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	texts := []string{"alpha", "beta", "gamma", "delta"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		want := mock.vectors[i%2]
		if v[0] != want[0] || v[1] != want[1] {
			t.Errorf("vector %d = %v, want %v (order not preserved)", i, v, want)
		}
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e := NewEmbedder(&mockAIEmbedder{}, EmbedderConfig{Retry: fastRetry()}, nil)
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestEmbedBatchFailureFailsWholeCall(t *testing.T) {
	mock := &mockAIEmbedder{err: errors.New("connection reset")}
	e := NewEmbedder(mock, EmbedderConfig{Retry: fastRetry()}, nil)

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, knowledge.ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

// ============================================================================
// Retry classification
// ============================================================================

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 rate limit exceeded"), true},
		{"server error", errors.New("got 503 from upstream"), true},
		{"network", errors.New("read tcp: connection reset"), true},
		{"timeout string", errors.New("request timeout"), true},
		{"auth", errors.New("invalid api key"), false},
		{"bad request", errors.New("400 malformed input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
