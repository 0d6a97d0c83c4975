// Package postgres provides a PostgreSQL-backed implementation of the
// two-layer Vocata memory (transcript log, semantic index).
//
// Both layers share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 768)
//	if err != nil { … }
//
//	// transcript log
//	_ = store.Transcripts().WriteEntry(ctx, sessionID, entry)
//
//	// semantic index
//	_ = store.Chunks().IndexChunk(ctx, chunk)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/vocata-ai/vocata/pkg/memory"
)

// Compile-time interface checks.
//
// SessionStore and SemanticIndex both define a method named Search with
// different signatures, so they are exposed as sub-types via [Store.Transcripts] and
// [Store.Chunks] rather than being implemented on Store directly.
var (
	_ memory.SessionStore  = (*TranscriptLog)(nil)
	_ memory.SemanticIndex = (*ChunkIndex)(nil)
)

// Store is the PostgreSQL-backed memory store. It holds a single
// [pgxpool.Pool] and exposes the two memory layers via [Store.Transcripts] and
// [Store.Chunks]. All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	sessions *TranscriptLog
	semantic *ChunkIndex
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [memory.Chunk.Embedding] values. Changing this value after
// the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:     pool,
		sessions: &TranscriptLog{pool: pool},
		semantic: &ChunkIndex{pool: pool},
	}, nil
}

// Transcripts returns the session log implementation satisfying
// [memory.SessionStore].
func (s *Store) Transcripts() *TranscriptLog { return s.sessions }

// Chunks returns the semantic index implementation satisfying
// [memory.SemanticIndex].
func (s *Store) Chunks() *ChunkIndex { return s.semantic }

// Ping verifies database connectivity. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
