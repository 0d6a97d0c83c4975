// Package image defines the Provider interface for image generation
// backends.
//
// Implementations must be safe for concurrent use.
package image

import "context"

// Image is one generated image.
type Image struct {
	// Data is the raw encoded image bytes.
	Data []byte

	// MIMEType identifies the encoding (e.g. "image/png").
	MIMEType string
}

// Provider is the abstraction over any image generation backend.
type Provider interface {
	// Generate produces count images from the given text prompt. count
	// values below 1 are treated as 1.
	Generate(ctx context.Context, prompt string, count int) ([]Image, error)
}
