// Package gemini provides a chat provider backed by the Gemini API via the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vocata-ai/vocata/pkg/provider/chat"
)

// DefaultModel is the default Gemini chat model.
const DefaultModel = "gemini-2.0-flash"

// Ensure Provider implements the chat.Provider interface.
var _ chat.Provider = (*Provider)(nil)

// Provider implements chat.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// New constructs a Gemini chat Provider. If model is empty, [DefaultModel]
// is used.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini chat: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini chat: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Complete implements chat.Provider.
func (p *Provider) Complete(ctx context.Context, req chat.Request) (*chat.Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini chat: empty messages")
	}

	contents := buildContents(req.Messages)

	var cfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" || req.Temperature != 0 || req.MaxTokens != 0 {
		cfg = &genai.GenerateContentConfig{}
		if req.SystemPrompt != "" {
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: req.SystemPrompt}},
			}
		}
		if req.Temperature != 0 {
			t := float32(req.Temperature)
			cfg.Temperature = &t
		}
		if req.MaxTokens != 0 {
			cfg.MaxOutputTokens = int32(req.MaxTokens)
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini chat: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini chat: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	out := &chat.Response{Content: sb.String()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = chat.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// buildContents converts the provider-neutral history into genai contents,
// merging consecutive same-role messages into one content block. Gemini uses
// "model" for the assistant role, which matches the neutral convention.
func buildContents(messages []chat.Message) []*genai.Content {
	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for _, m := range messages {
		role := m.Role
		if role != "model" {
			role = "user"
		}
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, &genai.Part{Text: m.Content})
			continue
		}
		last = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		}
		contents = append(contents, last)
	}
	return contents
}
