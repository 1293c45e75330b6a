// Package hybrid implements the C8 hybrid search orchestrator: concurrent
// dispatch of the three C7 layer searches, score fusion, adequacy-based
// early termination, and reflective query refinement.
package hybrid

import (
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
)

// Weights controls how much each layer contributes to a combined score.
// Normalized to sum to 1 before use.
type Weights struct {
	Semantic float64
	Lexical  float64
	Symbolic float64
}

// Options configures one Search call.
type Options struct {
	Limit              int
	Weights            Weights
	MinSimilarity      float64 // semantic layer floor
	SymbolicFilters    *SymbolicFilters
	AdequacyThreshold  float64 // early-termination trigger, 0 disables
	MinResultCount     int     // minimum results required before early-terminating
	MaxReflections     int     // 0 uses the default of 3
	LimitIncreaseFactor float64 // applied to Limit on each reflection iteration
}

// SymbolicFilters mirrors internal/search.Filters without importing the
// search package's graph-store-bound helpers, keeping hybrid's public
// surface decoupled from how each layer is implemented.
type SymbolicFilters struct {
	Tags            []string
	EntityTypes     []string
	MinImportance   *float64
	MaxImportance   *float64
	HasObservations *bool
	DateRange       *DateRange
}

// DateRange bounds an entity's CreatedAt, mirroring internal/search's own
// DateRange without importing it directly.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Result is one fused match from the hybrid orchestrator.
type Result struct {
	Entity        *graph.Entity
	CombinedScore float64
	SemanticScore float64
	LexicalScore  float64
	SymbolicScore float64
	MatchedLayers []string
}

// RefinementStep records one reflective-refinement iteration.
type RefinementStep struct {
	Iteration int
	Query     string
	Limit     int
	Adequacy  float64
}

// SearchReport is the full outcome of Search, including the diagnostics
// callers need to observe early termination and refinement history.
type SearchReport struct {
	Results         []Result
	EarlyTerminated bool
	ExecutedLayers  []string
	Refinements     []RefinementStep
}
