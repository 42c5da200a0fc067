// Package provider adapts external AI providers to the narrow capability
// interfaces the rest of juniper consumes: [Embedder] (text to fixed-length
// vector) and [Generator] (prompt to streamed text fragments).
//
// Concrete implementations wrap Genkit actions, so any provider registered
// with the Genkit instance (Gemini, Ollama) plugs in without the store,
// retriever or orchestrator knowing which model is behind it.
//
// Transient provider failures (rate limits, 5xx, network resets, per-attempt
// timeouts) are retried with bounded exponential backoff; structural
// failures such as a vector dimension mismatch are surfaced immediately and
// never retried. After retries are exhausted, embedding failures wrap
// [knowledge.ErrRetrievalUnavailable] and generation failures wrap
// [knowledge.ErrGenerationUnavailable].
package provider
