package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vocata-ai/vocata/pkg/memory"
	"github.com/vocata-ai/vocata/pkg/provider/live"
)

// writeTimeout bounds a single transcript persistence attempt.
const writeTimeout = 10 * time.Second

// recordTranscript is the controller's transcript callback. It runs on the
// session event loop, so persistence happens on a separate goroutine: a slow
// database write must never stall audio scheduling.
func (a *App) recordTranscript(role live.TranscriptRole, text string) {
	a.mu.Lock()
	corrector := a.corrector
	sessionID := a.sessionID
	a.mu.Unlock()

	corrected, corrections := corrector.Correct(text)
	for _, c := range corrections {
		slog.Debug("vocabulary correction",
			"original", c.Original,
			"corrected", c.Corrected,
			"confidence", c.Confidence,
		)
	}
	slog.Info("transcript", "role", role, "text", corrected)

	if a.sessions == nil {
		return
	}

	entry := memory.TranscriptEntry{
		Role:      string(role),
		Text:      corrected,
		Source:    "live",
		Timestamp: time.Now(),
	}
	if corrected != text {
		entry.RawText = text
	}

	go a.persistEntry(sessionID, entry)
}

// persistEntry writes one transcript entry to the session log and, when an
// embeddings provider is available, indexes it for semantic recall.
func (a *App) persistEntry(sessionID string, entry memory.TranscriptEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := a.sessions.WriteEntry(ctx, sessionID, entry); err != nil {
		slog.Warn("failed to record transcript", "session", sessionID, "err", err)
		return
	}

	if a.index == nil || a.providers.Embeddings == nil || entry.Text == "" {
		return
	}

	vec, err := a.providers.Embeddings.Embed(ctx, entry.Text)
	if err != nil {
		slog.Warn("failed to embed transcript", "session", sessionID, "err", err)
		return
	}
	chunk := memory.Chunk{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   entry.Text,
		Embedding: vec,
		Role:      entry.Role,
		Timestamp: entry.Timestamp,
	}
	if err := a.index.IndexChunk(ctx, chunk); err != nil {
		slog.Warn("failed to index transcript chunk", "session", sessionID, "err", err)
	}
}
