package config

// ConfigDiff describes what changed between two configs. Only fields that
// are safe to apply without restarting the process are tracked: tuning
// knobs for the Decay Engine, Salience Engine, and Context Window Manager,
// the cache settings, plus the log level. Storage paths, the embeddings provider, and the MCP
// surface require a restart and are not tracked here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DecayChanged    bool
	NewDecay        DecayConfig
	SalienceChanged bool
	NewSalience     SalienceConfig

	ContextWindowChanged bool
	NewContextWindow     ContextWindowConfig

	CacheChanged bool
	NewCache     CacheConfig
}

// Diff compares old and new configs and returns what changed among the
// fields safe to hot-reload.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Decay != new.Decay {
		d.DecayChanged = true
		d.NewDecay = new.Decay
	}

	if old.Salience != new.Salience {
		d.SalienceChanged = true
		d.NewSalience = new.Salience
	}

	if !contextWindowEqual(old.ContextWindow, new.ContextWindow) {
		d.ContextWindowChanged = true
		d.NewContextWindow = new.ContextWindow
	}

	if old.Cache != new.Cache {
		d.CacheChanged = true
		d.NewCache = new.Cache
	}

	return d
}

// contextWindowEqual compares two ContextWindowConfig values, including
// the PoolPercentages map which struct equality (==) can't handle.
func contextWindowEqual(a, b ContextWindowConfig) bool {
	if a.DefaultMaxTokens != b.DefaultMaxTokens ||
		a.TokenMultiplier != b.TokenMultiplier ||
		a.ReserveBuffer != b.ReserveBuffer ||
		a.MaxEntitiesToConsider != b.MaxEntitiesToConsider ||
		a.DiversityThreshold != b.DiversityThreshold ||
		a.EnforceDiversity != b.EnforceDiversity {
		return false
	}
	if len(a.PoolPercentages) != len(b.PoolPercentages) {
		return false
	}
	for k, v := range a.PoolPercentages {
		if bv, ok := b.PoolPercentages[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
