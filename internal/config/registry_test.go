package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vocata-ai/vocata/internal/config"
	"github.com/vocata-ai/vocata/pkg/provider/chat"
)

type stubChat struct{}

func (stubChat) Complete(context.Context, chat.Request) (*chat.Response, error) {
	return &chat.Response{Content: "ok"}, nil
}

func TestRegistry_CreateChat(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	var gotEntry config.ProviderEntry
	r.RegisterChat("stub", func(_ context.Context, e config.ProviderEntry) (chat.Provider, error) {
		gotEntry = e
		return stubChat{}, nil
	})

	p, err := r.CreateChat(context.Background(), config.ProviderEntry{Name: "stub", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider, got nil")
	}
	if gotEntry.APIKey != "k" {
		t.Errorf("factory entry: got api key %q, want %q", gotEntry.APIKey, "k")
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateChat(context.Background(), config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
	_, err = r.CreateLive(context.Background(), config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered for live, got: %v", err)
	}
}

func TestRegistry_OverwriteKeepsLatest(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterChat("stub", func(context.Context, config.ProviderEntry) (chat.Provider, error) {
		t.Fatal("old factory must not be called")
		return nil, nil
	})
	r.RegisterChat("stub", func(context.Context, config.ProviderEntry) (chat.Provider, error) {
		return stubChat{}, nil
	})

	if _, err := r.CreateChat(context.Background(), config.ProviderEntry{Name: "stub"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
