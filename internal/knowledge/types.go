package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunk is an immutable unit of ingested text. Its identity is
// (source, position) within one agent's store; ChunkID derives
// deterministically from both so re-ingesting the same source with
// identical boundaries yields identical ids.
type Chunk struct {
	ID        string    `json:"chunk_id"`
	Source    string    `json:"source"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry pairs a chunk with its embedding vector as persisted in the store.
type Entry struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// Result is a single retrieval hit. It is transient: produced per query,
// never persisted.
type Result struct {
	Chunk Chunk
	Score float64 // cosine similarity in [-1, 1]
}

// ChunkID returns the deterministic identifier for the chunk at the given
// position of a source. The hash covers source and position only; the text
// is not part of the identity, so superseding a source's content keeps
// stable ids per position.
func ChunkID(source string, position int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d", source, position))
	return hex.EncodeToString(sum[:])[:24]
}
