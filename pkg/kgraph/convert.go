package kgraph

import (
	"github.com/cortexkg/cortexkg/internal/agentmemory"
	"github.com/cortexkg/cortexkg/internal/config"
	"github.com/cortexkg/cortexkg/internal/graph"
)

// decayConfigFrom adapts the on-disk config schema to
// internal/agentmemory's runtime config struct. internal/agentmemory
// deliberately doesn't import internal/config (it predates the config
// package and has no reason to depend on YAML tags), so every subsystem
// wired by Open needs this kind of narrow translation.
func decayConfigFrom(c config.DecayConfig) agentmemory.DecayConfig {
	return agentmemory.DecayConfig{
		HalfLifeHours:        c.HalfLifeHours,
		ImportanceModulation: c.ImportanceModulation,
		AccessModulation:     c.AccessModulation,
		MinImportance:        c.MinImportance,
	}
}

func salienceConfigFrom(c config.SalienceConfig) agentmemory.SalienceConfig {
	return agentmemory.SalienceConfig{
		Weights: agentmemory.SalienceWeights{
			Importance: c.Weights.Importance,
			Recency:    c.Weights.Recency,
			Frequency:  c.Weights.Frequency,
			Context:    c.Weights.Context,
			Novelty:    c.Weights.Novelty,
		},
		SessionBoostFactor:      c.SessionBoostFactor,
		RecentEntityBoostFactor: c.RecentEntityBoostFactor,
		UseSemanticSimilarity:   c.UseSemanticSimilarity,
		UniquenessThreshold:     c.UniquenessThreshold,
		FrequencyScale:          c.FrequencyScale,
	}
}

// contextWindowConfigFrom converts the pool-percentage map from its
// YAML-friendly string keys ("working", "episodic", "semantic") to
// internal/agentmemory's graph.MemoryType keys. Every key is copied
// as-is; internal/config.Validate checks only that the percentages sum
// to at most 1, not the key names.
func contextWindowConfigFrom(c config.ContextWindowConfig) agentmemory.ContextWindowConfig {
	pools := make(map[graph.MemoryType]float64, len(c.PoolPercentages))
	for k, v := range c.PoolPercentages {
		pools[graph.MemoryType(k)] = v
	}
	return agentmemory.ContextWindowConfig{
		DefaultMaxTokens:      c.DefaultMaxTokens,
		TokenMultiplier:       c.TokenMultiplier,
		ReserveBuffer:         c.ReserveBuffer,
		MaxEntitiesToConsider: c.MaxEntitiesToConsider,
		DiversityThreshold:    c.DiversityThreshold,
		EnforceDiversity:      c.EnforceDiversity,
		PoolPercentages:       pools,
	}
}
