// Package gemini provides an embeddings provider backed by the Gemini API
// via the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/vocata-ai/vocata/pkg/provider/embeddings"
)

// DefaultModel is the default Gemini embeddings model.
const DefaultModel = "text-embedding-004"

// DefaultDimensions is the output dimension of [DefaultModel].
const DefaultDimensions = 768

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using the Gemini API.
type Provider struct {
	client     *genai.Client
	model      string
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithDimensions requests a specific output dimensionality from the model
// and declares it to callers via Dimensions(). The model must support
// truncated output dimensions. Default: [DefaultDimensions].
func WithDimensions(n int) Option {
	return func(p *Provider) {
		p.dimensions = n
	}
}

// New constructs a Gemini embeddings Provider. If model is empty,
// [DefaultModel] is used.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: create client: %w", err)
	}

	p := &Provider{client: client, model: model, dimensions: DefaultDimensions}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	dim := int32(p.dimensions)
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	result := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		result[i] = e.Values
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}
