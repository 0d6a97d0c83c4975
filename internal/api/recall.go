package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vocata-ai/vocata/pkg/memory"
)

// defaultRecallLimit bounds result counts when the request omits a limit.
const defaultRecallLimit = 5

// recallResult is one semantic search hit.
type recallResult struct {
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Distance  float64   `json:"distance"`
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	if s.embed == nil || s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "recall not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit, ok := limitParam(w, r, defaultRecallLimit)
	if !ok {
		return
	}

	vec, err := s.embed.Embed(r.Context(), query)
	s.recordProviderCall(r, s.embedName, "embeddings", err)
	if err != nil {
		writeError(w, http.StatusBadGateway, "embed query: "+err.Error())
		return
	}

	hits, err := s.index.Search(r.Context(), vec, limit, memory.ChunkFilter{
		SessionID: r.URL.Query().Get("session_id"),
		Role:      r.URL.Query().Get("role"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search index: "+err.Error())
		return
	}

	results := make([]recallResult, len(hits))
	for i, h := range hits {
		results[i] = recallResult{
			SessionID: h.Chunk.SessionID,
			Content:   h.Chunk.Content,
			Role:      h.Chunk.Role,
			Timestamp: h.Chunk.Timestamp,
			Distance:  h.Distance,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// transcriptResult is one full-text search hit from the session log.
type transcriptResult struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	RawText   string    `json:"raw_text,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		writeError(w, http.StatusServiceUnavailable, "transcript log not configured")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit, ok := limitParam(w, r, defaultRecallLimit)
	if !ok {
		return
	}

	entries, err := s.log.Search(r.Context(), query, memory.SearchOpts{
		SessionID: r.URL.Query().Get("session_id"),
		Role:      r.URL.Query().Get("role"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search transcripts: "+err.Error())
		return
	}

	results := make([]transcriptResult, len(entries))
	for i, e := range entries {
		results[i] = transcriptResult{
			Role:      e.Role,
			Text:      e.Text,
			RawText:   e.RawText,
			Source:    e.Source,
			Timestamp: e.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// limitParam parses the optional "limit" query parameter. A zero or missing
// value falls back to def; a malformed or negative value is a 400.
func limitParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	if n == 0 {
		return def, true
	}
	return n, true
}
