// Package rag composes the embedding adapter, the knowledge store's
// retrieval scan and the generation adapter into the retrieve, augment,
// generate pipeline.
//
// A query moves through the stages embedding -> retrieving -> composing ->
// generating; a failure in any stage terminates the pipeline with a
// [StageError] naming the stage and wrapping the underlying error, so
// callers can tell a failed retrieval apart from a failed generation. An
// empty retrieval is not a failure: the pipeline proceeds with a prompt
// that states no relevant context was found, so the model answers
// conservatively instead of inventing citations.
//
// Provider calls never hold a store lock: the query is embedded before the
// store is read, and generation streams after the read snapshot was taken.
package rag
