package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vocata-ai/vocata/pkg/provider/chat"
	"github.com/vocata-ai/vocata/pkg/provider/embeddings"
	"github.com/vocata-ai/vocata/pkg/provider/image"
	"github.com/vocata-ai/vocata/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	live       map[string]func(context.Context, ProviderEntry) (live.Transport, error)
	chat       map[string]func(context.Context, ProviderEntry) (chat.Provider, error)
	image      map[string]func(context.Context, ProviderEntry) (image.Provider, error)
	embeddings map[string]func(context.Context, ProviderEntry) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:       make(map[string]func(context.Context, ProviderEntry) (live.Transport, error)),
		chat:       make(map[string]func(context.Context, ProviderEntry) (chat.Provider, error)),
		image:      make(map[string]func(context.Context, ProviderEntry) (image.Provider, error)),
		embeddings: make(map[string]func(context.Context, ProviderEntry) (embeddings.Provider, error)),
	}
}

// RegisterLive registers a live transport factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(context.Context, ProviderEntry) (live.Transport, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterChat registers a chat provider factory under name.
func (r *Registry) RegisterChat(name string, factory func(context.Context, ProviderEntry) (chat.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = factory
}

// RegisterImage registers an image provider factory under name.
func (r *Registry) RegisterImage(name string, factory func(context.Context, ProviderEntry) (image.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(context.Context, ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateLive constructs the live transport selected by entry.Name.
func (r *Registry) CreateLive(ctx context.Context, entry ProviderEntry) (live.Transport, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateChat constructs the chat provider selected by entry.Name.
func (r *Registry) CreateChat(ctx context.Context, entry ProviderEntry) (chat.Provider, error) {
	r.mu.RLock()
	factory, ok := r.chat[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateImage constructs the image provider selected by entry.Name.
func (r *Registry) CreateImage(ctx context.Context, entry ProviderEntry) (image.Provider, error) {
	r.mu.RLock()
	factory, ok := r.image[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: image provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateEmbeddings constructs the embeddings provider selected by entry.Name.
func (r *Registry) CreateEmbeddings(ctx context.Context, entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}
