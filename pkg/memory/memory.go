// Package memory defines the two-layer conversation memory used by Vocata.
//
//   - Session Store ([SessionStore]): hot, time-ordered transcript log.
//     Fast appends during a live session, recency-window and full-text
//     retrieval afterwards.
//   - Semantic Index ([SemanticIndex]): vector store for embedding-based
//     similarity search over transcript chunks, backing the recall API.
//
// The interfaces are public so external packages can supply alternative
// storage backends without depending on vocata internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// TranscriptEntry is one utterance written to the session log: either what
// the user said (as transcribed) or what the assistant replied.
type TranscriptEntry struct {
	// Role is the speaker: "user" or "model".
	Role string

	// Text is the (possibly vocabulary-corrected) transcript text.
	Text string

	// RawText is the original uncorrected transcription. Preserved for
	// debugging; empty when no correction was applied.
	RawText string

	// Source identifies the surface the entry came from: "live" or "chat".
	Source string

	// Timestamp is when this entry was recorded.
	Timestamp time.Time
}

// SearchOpts configures a full-text search over session entries.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// After filters entries recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters entries recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Role restricts results to a specific speaker role.
	// An empty string matches all roles.
	Role string

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// Chunk is a processed segment of transcript content prepared for semantic
// indexing. A Chunk carries its pre-computed embedding so the index does
// not need to re-embed on insertion.
type Chunk struct {
	// ID is the unique identifier for this chunk (e.g., a UUID).
	ID string

	// SessionID is the session this chunk belongs to.
	SessionID string

	// Content is the raw text of the chunk.
	Content string

	// Embedding is the vector representation of Content. Dimension must
	// match the index configuration.
	Embedding []float32

	// Role is the speaker role the chunk originated from.
	Role string

	// Timestamp is when this chunk was recorded.
	Timestamp time.Time
}

// ChunkFilter narrows a semantic search to a subset of indexed chunks.
// All non-zero fields are applied as AND conditions.
type ChunkFilter struct {
	// SessionID restricts results to a single session.
	SessionID string

	// Role restricts results to chunks produced by a specific speaker role.
	Role string

	// After filters chunks recorded after this instant (exclusive).
	After time.Time

	// Before filters chunks recorded before this instant (exclusive).
	Before time.Time
}

// ChunkResult pairs a retrieved chunk with its vector-space distance from the
// query embedding. Lower Distance values indicate higher semantic similarity.
type ChunkResult struct {
	// Chunk is the retrieved segment.
	Chunk Chunk

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// SessionStore is the transcript log layer: a time-ordered, append-only log of
// [TranscriptEntry] records for one or more sessions.
//
// Entries must be returned in chronological order unless otherwise specified.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// WriteEntry appends a TranscriptEntry to the store for the given
	// session. sessionID must be non-empty. Returns an error only on
	// persistent storage failure.
	WriteEntry(ctx context.Context, sessionID string, entry TranscriptEntry) error

	// GetRecent returns all entries for the given session whose Timestamp is
	// no earlier than time.Now()-duration. Returns an empty (non-nil) slice
	// when no matching entries exist.
	GetRecent(ctx context.Context, sessionID string, duration time.Duration) ([]TranscriptEntry, error)

	// Search performs full-text search over stored entries. The query string
	// is matched against the Text field. opts refines the result set by time
	// range, role, or session scope. Returns an empty (non-nil) slice when
	// no entries match.
	Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error)
}

// SemanticIndex is the semantic index layer: a vector store for embedding-based
// similarity search over chunked transcript content.
//
// Callers are responsible for producing embeddings before calling IndexChunk
// or Search. Implementations must be safe for concurrent use.
type SemanticIndex interface {
	// IndexChunk stores a pre-embedded [Chunk] in the vector index. If a
	// chunk with the same ID already exists it must be replaced (upsert).
	IndexChunk(ctx context.Context, chunk Chunk) error

	// Search finds the topK chunks whose embeddings are closest to the query
	// embedding, filtered by filter. Results are ordered by ascending
	// Distance (most similar first). Returns an empty (non-nil) slice when
	// no chunks match.
	Search(ctx context.Context, embedding []float32, topK int, filter ChunkFilter) ([]ChunkResult, error)
}
