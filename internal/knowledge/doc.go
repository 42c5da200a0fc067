// Package knowledge implements the per-agent knowledge store and its
// retrieval primitives.
//
// The package consists of three cooperating pieces:
//
//   - Chunking: [SplitText] turns raw ingested text into bounded,
//     overlapping chunks with deterministic identifiers.
//   - Store: a per-agent collection of (chunk, vector) pairs persisted
//     as a single JSON record with atomic promotion (temp file + rename),
//     so a crashed flush can never be observed as a half-written store.
//   - Retrieval: [Store.Search] runs a brute-force cosine-similarity scan
//     over the store and returns ranked results.
//
// Data flow:
//
//	raw text
//	     |
//	     v
//	SplitText (deterministic chunk ids)
//	     |
//	     v
//	embedding (external adapter, see internal/provider)
//	     |
//	     v
//	Store.Add / Store.ReplaceSource (atomic flush)
//	     |
//	     | (when querying)
//	     v
//	Store.Search -> ranked []Result
//
// # Concurrency
//
// A Store follows single-writer/multiple-reader discipline: mutations
// (Add, DeleteBySource, ReplaceSource) take the write lock for the duration
// of the in-memory change and the durable flush, while Search, All and Size
// run under the read lock and may proceed in parallel. A reader always
// observes either the pre-mutation or the post-mutation snapshot, never an
// intermediate one.
//
// Embedding and generation never happen inside this package, so no provider
// round-trip is ever made while a store lock is held.
package knowledge
