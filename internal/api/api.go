// Package api exposes the Vocata HTTP surface consumed by the presentation
// layer.
//
// Routes:
//
//   - POST /v1/live/start — open the live voice session
//   - POST /v1/live/stop  — close it
//   - GET  /v1/live       — session state
//   - POST /v1/chat       — text completion round trip
//   - POST /v1/images     — image generation round trip
//   - GET  /v1/recall     — semantic search over stored transcripts
//   - GET  /v1/transcripts — full-text search over the session log
//
// Handlers respond with JSON; errors carry a top-level "error" field. Modes
// whose provider is not configured answer 503.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vocata-ai/vocata/internal/observe"
	"github.com/vocata-ai/vocata/internal/voice"
	"github.com/vocata-ai/vocata/pkg/memory"
	"github.com/vocata-ai/vocata/pkg/provider/chat"
	"github.com/vocata-ai/vocata/pkg/provider/embeddings"
	"github.com/vocata-ai/vocata/pkg/provider/image"
)

// SessionController is the live session surface the API drives.
type SessionController interface {
	Start(ctx context.Context) error
	Stop() error
	State() voice.State
}

// Server holds the handler dependencies. Construct with [New]; nil optional
// dependencies disable the corresponding routes with a 503 response.
type Server struct {
	live    SessionController
	chat    chat.Provider
	image   image.Provider
	embed   embeddings.Provider
	index   memory.SemanticIndex
	log     memory.SessionStore
	metrics *observe.Metrics

	chatName  string
	imageName string
	embedName string
}

// Option configures a [Server].
type Option func(*Server)

// WithChat enables POST /v1/chat. name is the provider name used in metric
// attributes.
func WithChat(name string, p chat.Provider) Option {
	return func(s *Server) {
		s.chatName = name
		s.chat = p
	}
}

// WithImage enables POST /v1/images.
func WithImage(name string, p image.Provider) Option {
	return func(s *Server) {
		s.imageName = name
		s.image = p
	}
}

// WithRecall enables GET /v1/recall: queries are embedded with p and searched
// in index.
func WithRecall(name string, p embeddings.Provider, index memory.SemanticIndex) Option {
	return func(s *Server) {
		s.embedName = name
		s.embed = p
		s.index = index
	}
}

// WithTranscripts enables GET /v1/transcripts over the session log.
func WithTranscripts(log memory.SessionStore) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics overrides the metrics instance (used in tests).
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server driving the given live session controller.
func New(live SessionController, opts ...Option) *Server {
	s := &Server{live: live}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds all /v1 routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/live/start", s.handleLiveStart)
	mux.HandleFunc("POST /v1/live/stop", s.handleLiveStop)
	mux.HandleFunc("GET /v1/live", s.handleLiveState)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/images", s.handleImages)
	mux.HandleFunc("GET /v1/recall", s.handleRecall)
	mux.HandleFunc("GET /v1/transcripts", s.handleTranscripts)
}

// errorBody is the JSON error response envelope.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
