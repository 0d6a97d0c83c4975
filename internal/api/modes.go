package api

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vocata-ai/vocata/pkg/provider/chat"
)

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	Messages     []chatMessage `json:"messages"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Temperature  float64       `json:"temperature,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the POST /v1/chat response body.
type chatResponse struct {
	Content string    `json:"content"`
	Usage   chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat provider not configured")
		return
	}

	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	messages := make([]chat.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chat.Message{Role: m.Role, Content: m.Content}
	}

	started := time.Now()
	resp, err := s.chat.Complete(r.Context(), chat.Request{
		Messages:     messages,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	s.recordProviderCall(r, s.chatName, "chat", err)
	s.metrics.ChatDuration.Record(r.Context(), time.Since(started).Seconds())
	if err != nil {
		writeError(w, http.StatusBadGateway, "chat completion: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content: resp.Content,
		Usage: chatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	})
}

// imageRequest is the POST /v1/images body.
type imageRequest struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count,omitempty"`
}

// imageResponse is the POST /v1/images response body. Data is base64 in the
// JSON encoding.
type imageResponse struct {
	Images []imagePayload `json:"images"`
}

type imagePayload struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	if s.image == nil {
		writeError(w, http.StatusServiceUnavailable, "image provider not configured")
		return
	}

	var req imageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	started := time.Now()
	images, err := s.image.Generate(r.Context(), req.Prompt, req.Count)
	s.recordProviderCall(r, s.imageName, "image", err)
	s.metrics.ImageDuration.Record(r.Context(), time.Since(started).Seconds())
	if err != nil {
		writeError(w, http.StatusBadGateway, "image generation: "+err.Error())
		return
	}

	resp := imageResponse{Images: make([]imagePayload, len(images))}
	for i, img := range images {
		resp.Images[i] = imagePayload{Data: img.Data, MIMEType: img.MIMEType}
	}
	writeJSON(w, http.StatusOK, resp)
}

// recordProviderCall increments the provider request counter with the
// standard provider/kind/status attributes.
func (s *Server) recordProviderCall(r *http.Request, provider, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.ProviderErrors.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
	}
	s.metrics.ProviderRequests.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}
