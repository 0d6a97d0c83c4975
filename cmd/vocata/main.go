// Command vocata is the main entry point for the Vocata voice AI server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vocata-ai/vocata/internal/app"
	"github.com/vocata-ai/vocata/internal/config"
	"github.com/vocata-ai/vocata/internal/observe"
	"github.com/vocata-ai/vocata/pkg/provider/chat"
	chatgemini "github.com/vocata-ai/vocata/pkg/provider/chat/gemini"
	chatopenai "github.com/vocata-ai/vocata/pkg/provider/chat/openai"
	"github.com/vocata-ai/vocata/pkg/provider/embeddings"
	embedgemini "github.com/vocata-ai/vocata/pkg/provider/embeddings/gemini"
	"github.com/vocata-ai/vocata/pkg/provider/image"
	imagegemini "github.com/vocata-ai/vocata/pkg/provider/image/gemini"
	"github.com/vocata-ai/vocata/pkg/provider/live"
	livegemini "github.com/vocata-ai/vocata/pkg/provider/live/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real environment variables win over file entries.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocata: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocata: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("vocata starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vocata"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Memory)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(levelVar))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.HandleConfigChange)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Vocata. Used for startup logging.
var builtinProviders = map[string][]string{
	"live":       {"gemini"},
	"chat":       {"gemini", "openai"},
	"image":      {"gemini"},
	"embeddings": {"gemini"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages. API keys left empty in the
// config fall back to the conventional environment variables.
func registerBuiltinProviders(reg *config.Registry, memCfg config.MemoryConfig) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini", func(_ context.Context, entry config.ProviderEntry) (live.Transport, error) {
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(apiKey(entry, "GEMINI_API_KEY"), opts...), nil
	})

	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("gemini", func(ctx context.Context, entry config.ProviderEntry) (chat.Provider, error) {
		return chatgemini.New(ctx, apiKey(entry, "GEMINI_API_KEY"), entry.Model)
	})

	reg.RegisterChat("openai", func(_ context.Context, entry config.ProviderEntry) (chat.Provider, error) {
		var opts []chatopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, chatopenai.WithBaseURL(entry.BaseURL))
		}
		return chatopenai.New(apiKey(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	// ── Image ─────────────────────────────────────────────────────────────────

	reg.RegisterImage("gemini", func(ctx context.Context, entry config.ProviderEntry) (image.Provider, error) {
		return imagegemini.New(ctx, apiKey(entry, "GEMINI_API_KEY"), entry.Model)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("gemini", func(ctx context.Context, entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []embedgemini.Option
		if memCfg.EmbeddingDimensions > 0 {
			opts = append(opts, embedgemini.WithDimensions(memCfg.EmbeddingDimensions))
		}
		return embedgemini.New(ctx, apiKey(entry, "GEMINI_API_KEY"), entry.Model, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Live.Name; name != "" {
		p, err := reg.CreateLive(ctx, cfg.Providers.Live)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "live", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		} else {
			ps.Live = p
			slog.Info("provider created", "kind", "live", "name", name)
		}
	}

	if name := cfg.Providers.Chat.Name; name != "" {
		p, err := reg.CreateChat(ctx, cfg.Providers.Chat)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "chat", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create chat provider %q: %w", name, err)
		} else {
			ps.Chat = p
			slog.Info("provider created", "kind", "chat", "name", name)
		}
	}

	if name := cfg.Providers.Image.Name; name != "" {
		p, err := reg.CreateImage(ctx, cfg.Providers.Image)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "image", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create image provider %q: %w", name, err)
		} else {
			ps.Image = p
			slog.Info("provider created", "kind", "image", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(ctx, cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Vocata — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printProvider("Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	printProvider("Image", cfg.Providers.Image.Name, cfg.Providers.Image.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Memory          : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Memory          : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Voice           : %-19s ║\n", cfg.Live.Voice)
	fmt.Printf("║  Vocabulary terms: %-19d ║\n", len(cfg.Vocabulary))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// apiKey returns the entry's configured API key, falling back to the named
// environment variable when the config leaves it empty.
func apiKey(entry config.ProviderEntry, envVar string) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	return os.Getenv(envVar)
}
