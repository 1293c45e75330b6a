package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidEmbeddingProviders lists known embedding provider names. Used by
// [Validate] to warn about unrecognised provider names.
var ValidEmbeddingProviders = []string{"openai", "ollama", "hash"}

// ValidReformulationProviders lists the any-llm-go backend names the
// reformulation provider entry accepts. Used by [Validate] to warn about
// unrecognised provider names.
var ValidReformulationProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills in documented
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults,
// so a config file only needs to override what it wants changed.
func applyDefaults(cfg *Config) {
	if cfg.Storage.GraphPath == "" {
		cfg.Storage.GraphPath = "cortexkg.graph.jsonl"
	}
	if cfg.Storage.BackupDir == "" {
		cfg.Storage.BackupDir = "backups"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "cortexkg.index.json"
	}

	if cfg.Decay.HalfLifeHours == 0 {
		cfg.Decay.HalfLifeHours = 168
	}
	if cfg.Decay.MinImportance == 0 {
		cfg.Decay.MinImportance = 0.1
	}
	if cfg.Decay.RingSize == 0 {
		cfg.Decay.RingSize = 100
	}

	if cfg.Salience.Weights == (SalienceWeightsConfig{}) {
		cfg.Salience.Weights = SalienceWeightsConfig{Importance: 0.25, Recency: 0.25, Frequency: 0.20, Context: 0.20, Novelty: 0.10}
	}
	if cfg.Salience.SessionBoostFactor == 0 {
		cfg.Salience.SessionBoostFactor = 1.0
	}
	if cfg.Salience.RecentEntityBoostFactor == 0 {
		cfg.Salience.RecentEntityBoostFactor = 0.5
	}
	if cfg.Salience.UniquenessThreshold == 0 {
		cfg.Salience.UniquenessThreshold = 0.5
	}
	if cfg.Salience.FrequencyScale == 0 {
		cfg.Salience.FrequencyScale = 20
	}

	if cfg.ContextWindow.DefaultMaxTokens == 0 {
		cfg.ContextWindow.DefaultMaxTokens = 4000
	}
	if cfg.ContextWindow.TokenMultiplier == 0 {
		cfg.ContextWindow.TokenMultiplier = 1.3
	}
	if cfg.ContextWindow.ReserveBuffer == 0 {
		cfg.ContextWindow.ReserveBuffer = 100
	}
	if cfg.ContextWindow.MaxEntitiesToConsider == 0 {
		cfg.ContextWindow.MaxEntitiesToConsider = 1000
	}
	if cfg.ContextWindow.DiversityThreshold == 0 {
		cfg.ContextWindow.DiversityThreshold = 0.7
	}
	if cfg.ContextWindow.PoolPercentages == nil {
		cfg.ContextWindow.PoolPercentages = map[string]float64{"working": 0.40, "episodic": 0.35, "semantic": 0.25}
	}

	if cfg.Indexer.FlushCount == 0 {
		cfg.Indexer.FlushCount = 50
	}
	if cfg.Indexer.FlushInterval == 0 {
		cfg.Indexer.FlushInterval = 5 * time.Second
	}
	if cfg.Cache.EmbeddingCacheSize == 0 {
		cfg.Cache.EmbeddingCacheSize = 10000
	}
	if cfg.Backup.Retention == 0 {
		cfg.Backup.Retention = 10
	}
}

// Validate checks that cfg contains a coherent set of values. It returns
// a joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName(cfg.Embeddings.Name, ValidEmbeddingProviders)
	validateProviderName(cfg.Reformulation.Name, ValidReformulationProviders)

	if cfg.Decay.HalfLifeHours <= 0 {
		errs = append(errs, fmt.Errorf("decay.half_life_hours must be > 0, got %v", cfg.Decay.HalfLifeHours))
	}
	if cfg.Decay.MinImportance < 0 {
		errs = append(errs, fmt.Errorf("decay.min_importance must be >= 0, got %v", cfg.Decay.MinImportance))
	}

	w := cfg.Salience.Weights
	sum := w.Importance + w.Recency + w.Frequency + w.Context + w.Novelty
	if sum < 0.99 || sum > 1.01 {
		errs = append(errs, fmt.Errorf("salience.weights must sum to 1.0, got %v", sum))
	}

	var poolSum float64
	for _, pct := range cfg.ContextWindow.PoolPercentages {
		poolSum += pct
	}
	if poolSum > 1.0+1e-9 {
		errs = append(errs, fmt.Errorf("context_window.pool_percentages must sum to <= 1.0, got %v", poolSum))
	}
	if cfg.ContextWindow.DefaultMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("context_window.default_max_tokens must be > 0, got %v", cfg.ContextWindow.DefaultMaxTokens))
	}

	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not
// found in known.
func validateProviderName(name string, known []string) {
	if name == "" {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"name", name,
		"known", known,
	)
}
