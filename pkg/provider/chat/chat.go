// Package chat defines the Provider interface for text completion backends.
//
// A chat provider wraps a remote model API (e.g., Gemini or an
// OpenAI-compatible endpoint) and exposes a uniform request/response surface
// so callers can switch backends through configuration alone.
//
// Implementations must be safe for concurrent use.
package chat

import "context"

// Message is one turn of conversation history.
type Message struct {
	// Role is the speaker: "user" or "model".
	Role string

	// Content is the message text.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// Request carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type Request struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string

	// Temperature controls output randomness. Zero means use the provider
	// default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// Response is the model's full reply.
type Response struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat completion backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}
