package agentmemory

import (
	"math"
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/lexindex"
)

// TemporalFocus rebalances recency against novelty.
type TemporalFocus string

const (
	TemporalRecent     TemporalFocus = "recent"
	TemporalBalanced   TemporalFocus = "balanced"
	TemporalHistorical TemporalFocus = "historical"
)

// SalienceWeights weights the five salience components. Must sum to 1.0.
type SalienceWeights struct {
	Importance float64
	Recency    float64
	Frequency  float64
	Context    float64
	Novelty    float64
}

// DefaultSalienceWeights returns the salience engine's documented
// default weights.
func DefaultSalienceWeights() SalienceWeights {
	return SalienceWeights{Importance: 0.25, Recency: 0.25, Frequency: 0.20, Context: 0.20, Novelty: 0.10}
}

// SalienceConfig configures the Salience Engine.
type SalienceConfig struct {
	Weights                 SalienceWeights
	SessionBoostFactor      float64
	RecentEntityBoostFactor float64
	UseSemanticSimilarity   bool
	UniquenessThreshold     float64
	FrequencyScale          float64
}

// DefaultSalienceConfig returns the salience engine's documented
// defaults.
func DefaultSalienceConfig() SalienceConfig {
	return SalienceConfig{
		Weights:                 DefaultSalienceWeights(),
		SessionBoostFactor:      1.0,
		RecentEntityBoostFactor: 0.5,
		UseSemanticSimilarity:   true,
		UniquenessThreshold:     0.5,
		FrequencyScale:          20,
	}
}

// SalienceContext carries the situational signals scoring needs: the
// active query/intent, task/session identifiers, the set of recently
// surfaced entity names, and the temporal focus.
type SalienceContext struct {
	Query          string
	TaskID         string
	SessionID      string
	RecentEntities map[string]bool
	TemporalFocus  TemporalFocus
}

// ScoreBreakdown is the per-component salience output, all clamped to
// [0,1].
type ScoreBreakdown struct {
	BaseImportance   float64
	RecencyBoost     float64
	FrequencyBoost   float64
	ContextRelevance float64
	NoveltyBoost     float64
	Total            float64
}

// Engine computes salience(entity, context) as a weighted sum of five
// components.
type Engine struct {
	cfg   SalienceConfig
	decay *DecayEngine
	index *lexindex.Index
	clock func() time.Time
}

// NewEngine constructs a salience Engine. decay supplies the decay
// factor and half-life baseline; index (may be nil) supplies TF-IDF
// cosine similarity for context_relevance. clock is injectable for
// tests; nil uses time.Now.
func NewEngine(cfg SalienceConfig, decay *DecayEngine, index *lexindex.Index, clock func() time.Time) *Engine {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{cfg: cfg, decay: decay, index: index, clock: clock}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Score computes entity's salience under sc.
func (e *Engine) Score(entity *graph.Entity, sc SalienceContext) ScoreBreakdown {
	w := e.cfg.Weights

	halfLife := 168.0
	decayFactor := 1.0
	if e.decay != nil {
		halfLife = e.decay.cfg.HalfLifeHours
		decayFactor = e.decay.DecayFactor(entity.Importance, entity.LastAccessedAt)
	}

	baseImportance := clamp01((entity.Importance / 10) * decayFactor)
	recency := clamp01(recencyBoost(e.clock, entity.LastAccessedAt, halfLife, sc.TemporalFocus))
	frequency := clamp01(frequencyBoost(entity.AccessCount, e.cfg.FrequencyScale))
	context := clamp01(e.contextRelevance(entity, sc))
	novelty := clamp01(e.noveltyBoost(entity, halfLife))

	total := w.Importance*baseImportance + w.Recency*recency + w.Frequency*frequency + w.Context*context + w.Novelty*novelty

	return ScoreBreakdown{
		BaseImportance:   baseImportance,
		RecencyBoost:     recency,
		FrequencyBoost:   frequency,
		ContextRelevance: context,
		NoveltyBoost:     novelty,
		Total:            clamp01(total),
	}
}

// recencyBoost is exp(-ln(2)*Δh/H) with H shifted by focus: recent
// halves it, historical doubles it, balanced leaves it unchanged.
func recencyBoost(clock func() time.Time, lastAccessed *time.Time, baseHalfLife float64, focus TemporalFocus) float64 {
	if lastAccessed == nil {
		return 0
	}
	hl := baseHalfLife
	switch focus {
	case TemporalRecent:
		hl /= 2
	case TemporalHistorical:
		hl *= 2
	}
	if hl <= 0 {
		return 0
	}
	deltaHours := clock().Sub(*lastAccessed).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}
	return math.Exp(-math.Ln2 * deltaHours / hl)
}

// frequencyBoost is 1 - exp(-access_count/scale).
func frequencyBoost(accessCount int, scale float64) float64 {
	if scale <= 0 {
		scale = 20
	}
	return 1 - math.Exp(-float64(accessCount)/scale)
}

// contextRelevance is the weighted max of exact task/session id match,
// TF-IDF cosine between the query and the entity's text, and presence in
// recent_entities.
func (e *Engine) contextRelevance(entity *graph.Entity, sc SalienceContext) float64 {
	var best float64
	if sc.TaskID != "" && entity.TaskID == sc.TaskID {
		best = math.Max(best, 1.0)
	}
	if sc.SessionID != "" && entity.SessionID == sc.SessionID {
		best = math.Max(best, 1.0*e.cfg.SessionBoostFactor)
	}
	if e.cfg.UseSemanticSimilarity && e.index != nil && sc.Query != "" {
		best = math.Max(best, tfidfCosine(e.index, sc.Query, entity.DocumentText()))
	}
	if sc.RecentEntities != nil && sc.RecentEntities[entity.Name] {
		best = math.Max(best, e.cfg.RecentEntityBoostFactor)
	}
	return best
}

// tfidfCosine computes the cosine similarity between query and docText's
// TF-IDF vectors, weighting each token by idx's current IDF.
func tfidfCosine(idx *lexindex.Index, query, docText string) float64 {
	qtf := lexindex.TermFrequencies(query)
	dtf := lexindex.TermFrequencies(docText)
	if len(qtf) == 0 || len(dtf) == 0 {
		return 0
	}

	var dot, qnorm, dnorm float64
	for token, qc := range qtf {
		idf := idx.IDF(token)
		qw := float64(qc) * idf
		qnorm += qw * qw
		if dc, ok := dtf[token]; ok {
			dot += qw * (float64(dc) * idf)
		}
	}
	for token, dc := range dtf {
		idf := idx.IDF(token)
		dw := float64(dc) * idf
		dnorm += dw * dw
	}
	if qnorm == 0 || dnorm == 0 {
		return 0
	}
	return dot / (math.Sqrt(qnorm) * math.Sqrt(dnorm))
}

// noveltyBoost is 0.5*time_novelty + 0.3*frequency_novelty +
// 0.2*uniqueness: time_novelty decays with age since creation (using the
// same half-life baseline as recency), frequency_novelty is the
// complement of frequencyBoost (rarely-accessed entities read as more
// novel), and uniqueness is the average pairwise 1-Jaccard among the
// entity's own observations only (not compared against other entities).
func (e *Engine) noveltyBoost(entity *graph.Entity, halfLife float64) float64 {
	ageHours := e.clock().Sub(entity.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	timeNovelty := 0.0
	if halfLife > 0 {
		timeNovelty = math.Exp(-math.Ln2 * ageHours / halfLife)
	}
	freqNovelty := 1 - frequencyBoost(entity.AccessCount, e.cfg.FrequencyScale)
	uniqueness := observationUniqueness(entity.Observations)
	return 0.5*timeNovelty + 0.3*freqNovelty + 0.2*uniqueness
}
