// Package config provides the configuration schema, loader, and provider
// registry for cortexkg.
package config

import "time"

// Config is the root configuration structure for cortexkg. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Embeddings    ProviderEntry       `yaml:"embeddings"`
	Reformulation ProviderEntry       `yaml:"reformulation"`
	Decay         DecayConfig         `yaml:"decay"`
	Salience      SalienceConfig      `yaml:"salience"`
	ContextWindow ContextWindowConfig `yaml:"context_window"`
	Indexer       IndexerConfig       `yaml:"indexer"`
	Cache         CacheConfig         `yaml:"cache"`
	Backup        BackupConfig        `yaml:"backup"`
	MCP           MCPConfig           `yaml:"mcp"`
}

// ServerConfig holds process-wide logging settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog level name.
type LogLevel string

// IsValid reports whether l is one of the recognised level names.
func (l LogLevel) IsValid() bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// StorageConfig locates the on-disk graph file, its backup directory, and
// the persisted TF/IDF index.
type StorageConfig struct {
	GraphPath string `yaml:"graph_path"`
	BackupDir string `yaml:"backup_dir"`
	IndexPath string `yaml:"index_path"`
}

// ProviderEntry configures a pluggable provider implementation looked up
// in a [Registry] by name.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama", "hash").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Dimensions overrides the embedding vector dimension when a
	// provider can't determine it on its own.
	Dimensions int `yaml:"dimensions"`

	// Options holds provider-specific configuration values not covered
	// by the standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks, when non-empty, are tried in order behind a circuit
	// breaker if this entry's provider starts failing (internal/resilience).
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// DecayConfig configures the Access Tracker + Decay Engine.
type DecayConfig struct {
	HalfLifeHours        float64 `yaml:"half_life_hours"`
	ImportanceModulation bool    `yaml:"importance_modulation"`
	AccessModulation     bool    `yaml:"access_modulation"`
	MinImportance        float64 `yaml:"min_importance"`
	RingSize             int     `yaml:"ring_size"`
}

// SalienceConfig configures the Salience Engine.
type SalienceConfig struct {
	Weights                 SalienceWeightsConfig `yaml:"weights"`
	SessionBoostFactor      float64               `yaml:"session_boost_factor"`
	RecentEntityBoostFactor float64               `yaml:"recent_entity_boost_factor"`
	UseSemanticSimilarity   bool                  `yaml:"use_semantic_similarity"`
	UniquenessThreshold     float64               `yaml:"uniqueness_threshold"`
	FrequencyScale          float64               `yaml:"frequency_scale"`
}

// SalienceWeightsConfig weights the five salience components; must sum
// to 1.0.
type SalienceWeightsConfig struct {
	Importance float64 `yaml:"importance"`
	Recency    float64 `yaml:"recency"`
	Frequency  float64 `yaml:"frequency"`
	Context    float64 `yaml:"context"`
	Novelty    float64 `yaml:"novelty"`
}

// ContextWindowConfig configures the Context Window Manager.
type ContextWindowConfig struct {
	DefaultMaxTokens      int                `yaml:"default_max_tokens"`
	TokenMultiplier       float64            `yaml:"token_multiplier"`
	ReserveBuffer         int                `yaml:"reserve_buffer"`
	MaxEntitiesToConsider int                `yaml:"max_entities_to_consider"`
	DiversityThreshold    float64            `yaml:"diversity_threshold"`
	EnforceDiversity      bool               `yaml:"enforce_diversity"`
	PoolPercentages       map[string]float64 `yaml:"pool_percentages"`
}

// IndexerConfig configures the incremental TF/IDF indexer: flush on a count threshold or interval,
// whichever comes first.
type IndexerConfig struct {
	FlushCount    int           `yaml:"flush_count"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// CacheConfig sizes the embedding cache (internal/memcache).
type CacheConfig struct {
	EmbeddingCacheSize int           `yaml:"embedding_cache_size"`
	EmbeddingCacheTTL  time.Duration `yaml:"embedding_cache_ttl"`
}

// BackupConfig configures backup retention.
type BackupConfig struct {
	Retention int  `yaml:"retention"`
	Compress  bool `yaml:"compress"`
}

// MCPConfig configures the MCP server cortexkg exposes its tool surface
// through, and any upstream MCP servers it connects to as a client.
type MCPConfig struct {
	ListenAddr string            `yaml:"listen_addr"`
	Servers    []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to one upstream MCP server.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport Transport         `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Transport is an MCP connection mechanism.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP:
		return true
	}
	return false
}
