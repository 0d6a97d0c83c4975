package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [applyDefaults] when the corresponding field is unset.
const (
	DefaultListenAddr       = ":8080"
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultBlockSize        = 4096
	DefaultVoice            = "Puck"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":       {"gemini"},
	"chat":       {"gemini", "openai"},
	"image":      {"gemini"},
	"embeddings": {"gemini"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Live.InputSampleRate == 0 {
		cfg.Live.InputSampleRate = DefaultInputSampleRate
	}
	if cfg.Live.OutputSampleRate == 0 {
		cfg.Live.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Live.BlockSize == 0 {
		cfg.Live.BlockSize = DefaultBlockSize
	}
	if cfg.Live.Voice == "" {
		cfg.Live.Voice = DefaultVoice
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("image", cfg.Providers.Image.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Live audio formats
	if cfg.Live.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("live.input_sample_rate %d must be positive", cfg.Live.InputSampleRate))
	}
	if cfg.Live.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("live.output_sample_rate %d must be positive", cfg.Live.OutputSampleRate))
	}
	if cfg.Live.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("live.block_size %d must be positive", cfg.Live.BlockSize))
	}

	// Embeddings ↔ memory dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to the provider's native dimension")
	}
	if cfg.Memory.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		slog.Warn("memory.postgres_dsn is set but providers.embeddings is not; semantic recall will be unavailable")
	}

	// Vocabulary: duplicates are almost always copy-paste mistakes, and
	// empty terms would match everything.
	seen := make(map[string]int, len(cfg.Vocabulary))
	for i, term := range cfg.Vocabulary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("vocabulary[%d] is empty", i))
			continue
		}
		key := strings.ToLower(term)
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("vocabulary[%d] %q is a duplicate of vocabulary[%d]", i, term, prev))
		} else {
			seen[key] = i
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
