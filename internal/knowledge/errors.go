package knowledge

import "errors"

// Sentinel errors for the knowledge subsystem. Callers check them with
// errors.Is; lower layers wrap them via fmt.Errorf("...: %w", Err).
var (
	// ErrDimensionMismatch indicates a vector whose length disagrees with
	// the store's established dimension. This is a configuration problem
	// (wrong embedder model for the agent) and is never retried.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCorruptStore indicates the persisted store payload is unreadable
	// or internally inconsistent (bad JSON, vector length disagreeing with
	// the record's own dimension field, duplicate chunk ids).
	ErrCorruptStore = errors.New("corrupt knowledge store")

	// ErrRetrievalUnavailable indicates the embedding provider exhausted
	// its retries or timed out; grounded retrieval cannot proceed.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationUnavailable indicates the generation provider failed or
	// timed out after any permitted retries.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrDuplicateChunk indicates an Add would introduce a chunk id that
	// already exists in the store. Superseding a source goes through
	// ReplaceSource, never through duplicate Adds.
	ErrDuplicateChunk = errors.New("duplicate chunk id")
)
