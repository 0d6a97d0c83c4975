// Package gemini provides an image generation provider backed by the Imagen
// models on the Gemini API via the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/vocata-ai/vocata/pkg/provider/image"
)

// DefaultModel is the default image generation model.
const DefaultModel = "imagen-3.0-generate-002"

// Ensure Provider implements the image.Provider interface.
var _ image.Provider = (*Provider)(nil)

// Provider implements image.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

// New constructs a Gemini image Provider. If model is empty, [DefaultModel]
// is used.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini image: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini image: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Generate implements image.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, count int) ([]image.Image, error) {
	if prompt == "" {
		return nil, fmt.Errorf("gemini image: empty prompt")
	}
	if count < 1 {
		count = 1
	}

	resp, err := p.client.Models.GenerateImages(ctx, p.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini image: generate: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("gemini image: empty response")
	}

	out := make([]image.Image, 0, len(resp.GeneratedImages))
	for _, g := range resp.GeneratedImages {
		if g.Image == nil {
			continue
		}
		out = append(out, image.Image{
			Data:     g.Image.ImageBytes,
			MIMEType: g.Image.MIMEType,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("gemini image: response contained no image data")
	}
	return out, nil
}
