// Package app wires all Vocata subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithDevices,
// WithSessionStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vocata-ai/vocata/internal/api"
	"github.com/vocata-ai/vocata/internal/config"
	"github.com/vocata-ai/vocata/internal/health"
	"github.com/vocata-ai/vocata/internal/observe"
	"github.com/vocata-ai/vocata/internal/transcript"
	"github.com/vocata-ai/vocata/internal/voice"
	"github.com/vocata-ai/vocata/pkg/audio"
	"github.com/vocata-ai/vocata/pkg/audio/portaudio"
	"github.com/vocata-ai/vocata/pkg/memory"
	"github.com/vocata-ai/vocata/pkg/memory/postgres"
	"github.com/vocata-ai/vocata/pkg/provider/chat"
	"github.com/vocata-ai/vocata/pkg/provider/embeddings"
	"github.com/vocata-ai/vocata/pkg/provider/image"
	"github.com/vocata-ai/vocata/pkg/provider/live"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Live       live.Transport
	Chat       chat.Provider
	Image      image.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes: the live session controller, the
// transcript pipeline, the optional memory store, and the HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers

	devices  audio.Devices
	metrics  *observe.Metrics
	levelVar *slog.LevelVar

	sessions   memory.SessionStore
	index      memory.SemanticIndex
	pinger     health.Pinger
	controller *voice.Controller
	handler    http.Handler
	httpServer *http.Server

	// mu guards the corrector (rebuilt on config reload) and the current
	// session ID.
	mu        sync.Mutex
	corrector *transcript.Corrector
	sessionID string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDevices injects an audio device opener instead of the PortAudio one.
func WithDevices(d audio.Devices) Option {
	return func(a *App) { a.devices = d }
}

// WithSessionStore injects a transcript log instead of creating one from
// config.
func WithSessionStore(s memory.SessionStore) Option {
	return func(a *App) { a.sessions = s }
}

// WithSemanticIndex injects a semantic index instead of creating one from
// config.
func WithSemanticIndex(i memory.SemanticIndex) Option {
	return func(a *App) { a.index = i }
}

// WithMetrics overrides the metrics instance (used in tests).
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar attaches the dynamic log level so config reloads can adjust
// verbosity at runtime.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Memory store ──────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 2. Transcript corrector ──────────────────────────────────────────
	a.corrector = transcript.NewCorrector(transcript.NewMatcher(), cfg.Vocabulary)

	// ── 3. Audio devices ─────────────────────────────────────────────────
	if a.devices == nil {
		dev, err := portaudio.New()
		if err != nil {
			return nil, fmt.Errorf("app: init audio devices: %w", err)
		}
		a.devices = dev
	}

	// ── 4. Live session controller ───────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// initMemory sets up the PostgreSQL memory store or uses injected doubles.
// With no DSN configured, memory stays disabled: transcripts are surfaced
// but not stored.
func (a *App) initMemory(ctx context.Context) error {
	if a.sessions != nil && a.index != nil {
		return nil // both injected
	}

	dsn := a.cfg.Memory.PostgresDSN
	if dsn == "" {
		slog.Info("memory.postgres_dsn is empty; conversation memory disabled")
		return nil
	}

	dims := a.cfg.Memory.EmbeddingDimensions
	if dims == 0 && a.providers.Embeddings != nil {
		dims = a.providers.Embeddings.Dimensions()
	}
	if dims == 0 {
		return fmt.Errorf("memory.embedding_dimensions is required with postgres_dsn and no embeddings provider")
	}

	store, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}

	if a.sessions == nil {
		a.sessions = store.Transcripts()
	}
	if a.index == nil {
		a.index = store.Chunks()
	}

	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.pinger = store
	return nil
}

// initController builds the voice session controller from config.
func (a *App) initController() error {
	if a.providers.Live == nil {
		slog.Warn("no live transport configured; session start will report unavailable")
	}

	a.controller = voice.NewController(a.devices, a.providers.Live, voice.Config{
		Session: live.SessionConfig{
			Voice:        a.cfg.Live.Voice,
			Instructions: a.cfg.Live.Instructions,
			Transcribe:   a.cfg.Live.Transcribe,
		},
		Input:     audio.Format{SampleRate: a.cfg.Live.InputSampleRate, Channels: 1},
		Output:    audio.Format{SampleRate: a.cfg.Live.OutputSampleRate, Channels: 1},
		BlockSize: a.cfg.Live.BlockSize,
	},
		voice.WithMetrics(a.metrics),
		voice.WithTranscriptFunc(a.recordTranscript),
	)
	return nil
}

// initHTTP assembles the route table and wraps it in the observe middleware.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	apiOpts := []api.Option{api.WithMetrics(a.metrics)}
	if a.providers.Chat != nil {
		apiOpts = append(apiOpts, api.WithChat(a.cfg.Providers.Chat.Name, a.providers.Chat))
	}
	if a.providers.Image != nil {
		apiOpts = append(apiOpts, api.WithImage(a.cfg.Providers.Image.Name, a.providers.Image))
	}
	if a.providers.Embeddings != nil && a.index != nil {
		apiOpts = append(apiOpts, api.WithRecall(a.cfg.Providers.Embeddings.Name, a.providers.Embeddings, a.index))
	}
	if a.sessions != nil {
		apiOpts = append(apiOpts, api.WithTranscripts(a.sessions))
	}
	api.New(a, apiOpts...).Register(mux)

	var checkers []health.Checker
	if a.pinger != nil {
		checkers = append(checkers, health.PingChecker("memory", a.pinger))
	}
	checkers = append(checkers, health.RequiredChecker("live", a.providers.Live != nil))
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
	a.httpServer = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: a.handler,
	}
}

// Handler returns the fully assembled HTTP handler. Exposed for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// ── live session surface (api.SessionController) ──

var _ api.SessionController = (*App)(nil)

// Start opens the live voice session and assigns it a fresh session ID for
// transcript attribution. Starting while a session is already running is a
// no-op and keeps the running session's ID, so its transcripts stay in one
// log.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.controller.State() == voice.StateIdle {
		a.sessionID = uuid.NewString()
	}
	a.mu.Unlock()
	return a.controller.Start(ctx)
}

// Stop closes the live voice session.
func (a *App) Stop() error {
	return a.controller.Stop()
}

// State reports the live session state.
func (a *App) State() voice.State {
	return a.controller.State()
}

// HandleConfigChange applies a hot-reloaded config: log level and vocabulary
// take effect immediately, new live instructions apply to the next session.
func (a *App) HandleConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VocabularyChanged {
		a.mu.Lock()
		a.corrector = transcript.NewCorrector(transcript.NewMatcher(), new.Vocabulary)
		a.mu.Unlock()
		slog.Info("vocabulary reloaded",
			"added", len(d.AddedTerms),
			"removed", len(d.RemovedTerms),
			"terms", len(new.Vocabulary),
		)
	}
	if d.InstructionsChanged {
		slog.Info("live instructions changed; applies to the next session")
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.controller.Stop(); err != nil {
			slog.Warn("session stop error", "err", err)
		}

		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
