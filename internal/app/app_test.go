package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vocata-ai/vocata/internal/config"
	"github.com/vocata-ai/vocata/internal/observe"
	"github.com/vocata-ai/vocata/pkg/audio"
	"github.com/vocata-ai/vocata/pkg/memory"
	"github.com/vocata-ai/vocata/pkg/provider/live"
)

// ── fakes ──

type fakeCapture struct {
	frames chan audio.AudioFrame
	once   sync.Once
}

func (f *fakeCapture) Frames() <-chan audio.AudioFrame { return f.frames }

func (f *fakeCapture) Stop() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

type fakeSource struct{ done chan struct{} }

func (s *fakeSource) Stop()                 {}
func (s *fakeSource) Done() <-chan struct{} { return s.done }

type fakeOutput struct {
	mu  sync.Mutex
	now time.Duration
}

func (f *fakeOutput) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeOutput) ScheduleAt(audio.PlaybackBuffer, time.Duration) (audio.Source, error) {
	done := make(chan struct{})
	close(done)
	return &fakeSource{done: done}, nil
}

func (f *fakeOutput) Close() error { return nil }

type fakeDevices struct{}

func (fakeDevices) OpenCapture(context.Context, audio.Format, int) (audio.CaptureDevice, error) {
	return &fakeCapture{frames: make(chan audio.AudioFrame, 4)}, nil
}

func (fakeDevices) OpenOutput(context.Context, audio.Format) (audio.OutputDevice, error) {
	return &fakeOutput{}, nil
}

type fakeSession struct {
	events chan live.Event
	once   sync.Once
}

func (s *fakeSession) SendRealtimeInput(live.EncodedChunk) error { return nil }
func (s *fakeSession) Events() <-chan live.Event                 { return s.events }
func (s *fakeSession) Err() error                                { return nil }

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeTransport struct {
	mu    sync.Mutex
	sess  *fakeSession
	opens int
}

func (t *fakeTransport) Open(context.Context, live.SessionConfig) (live.SessionHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	t.sess = &fakeSession{events: make(chan live.Event, 4)}
	return t.sess, nil
}

type fakeStore struct {
	mu      sync.Mutex
	entries []memory.TranscriptEntry
	ids     []string
	written chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{written: make(chan struct{}, 16)}
}

func (f *fakeStore) WriteEntry(_ context.Context, sessionID string, e memory.TranscriptEntry) error {
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.ids = append(f.ids, sessionID)
	f.mu.Unlock()
	f.written <- struct{}{}
	return nil
}

func (f *fakeStore) GetRecent(context.Context, string, time.Duration) ([]memory.TranscriptEntry, error) {
	return nil, nil
}

func (f *fakeStore) Search(context.Context, string, memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	return []memory.TranscriptEntry{}, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	chunks  []memory.Chunk
	indexed chan struct{}
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: make(chan struct{}, 16)}
}

func (f *fakeIndex) IndexChunk(_ context.Context, c memory.Chunk) error {
	f.mu.Lock()
	f.chunks = append(f.chunks, c)
	f.mu.Unlock()
	f.indexed <- struct{}{}
	return nil
}

func (f *fakeIndex) Search(context.Context, []float32, int, memory.ChunkFilter) ([]memory.ChunkResult, error) {
	return []memory.ChunkResult{}, nil
}

type fakeEmbed struct{}

func (fakeEmbed) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbed) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (fakeEmbed) Dimensions() int { return 3 }
func (fakeEmbed) ModelID() string { return "fake-embed" }

// ── helpers ──

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Live.Voice = "Puck"
	cfg.Live.Transcribe = true
	cfg.Live.InputSampleRate = 16000
	cfg.Live.OutputSampleRate = 24000
	cfg.Live.BlockSize = 4096
	cfg.Vocabulary = []string{"Eldrinax"}
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("create metrics: %v", err)
	}
	return m
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	opts = append([]Option{
		WithDevices(fakeDevices{}),
		WithMetrics(testMetrics(t)),
	}, opts...)
	a, err := New(context.Background(), cfg, &Providers{
		Live:       transport,
		Embeddings: fakeEmbed{},
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(sctx)
	})
	return a, transport
}

// ── tests ──

func TestNew_NoMemoryConfigured(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	if a.sessions != nil || a.index != nil {
		t.Error("memory should stay disabled without a DSN")
	}
	if a.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestHandler_RoutesMounted(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	for _, tc := range []struct {
		method, path string
		wantStatus   int
	}{
		{"GET", "/v1/live", http.StatusOK},
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/readyz", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"POST", "/v1/chat", http.StatusServiceUnavailable}, // no chat provider
		{"GET", "/v1/recall?q=x", http.StatusServiceUnavailable},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)
		if rec.Code != tc.wantStatus {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, tc.wantStatus)
		}
	}
}

func TestLiveState_ViaHandler(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	req := httptest.NewRequest("GET", "/v1/live", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	var body struct {
		State  string `json:"state"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "IDLE" || body.Active {
		t.Errorf("state = %+v, want idle", body)
	}
}

func TestStart_AssignsFreshSessionID(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.mu.Lock()
	first := a.sessionID
	a.mu.Unlock()
	if first == "" {
		t.Fatal("session ID not assigned")
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	a.mu.Lock()
	second := a.sessionID
	a.mu.Unlock()
	if second == first {
		t.Error("session ID should change between sessions")
	}
	_ = a.Stop()
}

func TestStart_WhileActiveKeepsSessionID(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a.mu.Lock()
	first := a.sessionID
	a.mu.Unlock()

	// A start against a running session is a no-op; its transcripts must
	// keep flowing to the same session ID.
	if err := a.Start(ctx); err != nil {
		t.Fatalf("redundant Start: %v", err)
	}
	a.mu.Lock()
	second := a.sessionID
	a.mu.Unlock()
	if second != first {
		t.Errorf("session ID rotated on redundant start: %q -> %q", first, second)
	}
	_ = a.Stop()
}

func TestRecordTranscript_PersistsAndIndexes(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	index := newFakeIndex()
	a, _ := newTestApp(t, testConfig(), WithSessionStore(store), WithSemanticIndex(index))
	a.mu.Lock()
	a.sessionID = "s-test"
	a.mu.Unlock()

	a.recordTranscript(live.RoleUser, "we met eldrinacks at dawn")

	select {
	case <-store.written:
	case <-time.After(2 * time.Second):
		t.Fatal("transcript was not persisted")
	}
	select {
	case <-index.indexed:
	case <-time.After(2 * time.Second):
		t.Fatal("transcript was not indexed")
	}

	store.mu.Lock()
	entry := store.entries[0]
	sessionID := store.ids[0]
	store.mu.Unlock()
	if sessionID != "s-test" {
		t.Errorf("session ID = %q, want s-test", sessionID)
	}
	if entry.Text != "we met Eldrinax at dawn" {
		t.Errorf("corrected text = %q", entry.Text)
	}
	if entry.RawText != "we met eldrinacks at dawn" {
		t.Errorf("raw text = %q", entry.RawText)
	}
	if entry.Source != "live" || entry.Role != "user" {
		t.Errorf("entry attribution = %+v", entry)
	}

	index.mu.Lock()
	chunk := index.chunks[0]
	index.mu.Unlock()
	if chunk.ID == "" {
		t.Error("chunk ID not assigned")
	}
	if len(chunk.Embedding) != 3 {
		t.Errorf("embedding = %v", chunk.Embedding)
	}
	if chunk.Content != entry.Text {
		t.Errorf("chunk content = %q", chunk.Content)
	}
}

func TestHandleConfigChange_ReloadsVocabularyAndLogLevel(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	levelVar := new(slog.LevelVar)
	cfg := testConfig()
	a, _ := newTestApp(t, cfg, WithSessionStore(store), WithLogLevelVar(levelVar))

	newCfg := testConfig()
	newCfg.Server.LogLevel = config.LogDebug
	newCfg.Vocabulary = []string{"Grimjaw"}
	a.HandleConfigChange(cfg, newCfg)

	if levelVar.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", levelVar.Level())
	}

	a.recordTranscript(live.RoleUser, "grimjaw waited")
	select {
	case <-store.written:
	case <-time.After(2 * time.Second):
		t.Fatal("transcript was not persisted")
	}
	store.mu.Lock()
	text := store.entries[0].Text
	store.mu.Unlock()
	if text != "Grimjaw waited" {
		t.Errorf("text = %q, want new vocabulary applied", text)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, testConfig())

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
