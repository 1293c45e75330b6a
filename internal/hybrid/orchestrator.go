package hybrid

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/search"
)

// layerOverDispatchFactor widens each layer's internal limit so fusion has
// enough candidates to re-rank from.
const layerOverDispatchFactor = 2

// Orchestrator dispatches the three C7 layer searches concurrently,
// fuses their scores, and optionally reflects to refine the query
//.
type Orchestrator struct {
	graph    *graph.Store
	semantic *search.Semantic
	lexical  *search.Lexical
	symbolic *search.Symbolic

	// reformulator rewrites the query between reflection iterations when
	// configured; nil means every iteration uses the deterministic
	// type-hint reformulation instead.
	reformulator Reformulator
}

// New constructs an Orchestrator over the given graph and layer searchers.
func New(g *graph.Store, semantic *search.Semantic, lexical *search.Lexical, symbolic *search.Symbolic) *Orchestrator {
	return &Orchestrator{graph: g, semantic: semantic, lexical: lexical, symbolic: symbolic}
}

// SetReformulator attaches an LLM-backed Reformulator used between
// reflection iterations in place of the deterministic type-hint
// fallback. Passing nil restores the deterministic-only behavior.
func (o *Orchestrator) SetReformulator(r Reformulator) {
	o.reformulator = r
}

// Search runs the hybrid pipeline for query under opts, returning a fused,
// ranked result set plus diagnostics (early termination, executed
// layers, refinement history).
func (o *Orchestrator) Search(ctx context.Context, query string, opts Options) (*SearchReport, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	weights := normalizeWeights(opts.Weights)
	maxReflections := opts.MaxReflections
	if maxReflections <= 0 {
		maxReflections = 3
	}

	report := &SearchReport{}
	currentQuery := query
	currentLimit := opts.Limit

	for iteration := 0; ; iteration++ {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		results, executedLayers, layerEarlyTerminated, err := o.runOneRound(ctx, currentQuery, currentLimit, weights, opts)
		if err != nil {
			return report, err
		}
		report.Results = results
		report.ExecutedLayers = executedLayers
		report.EarlyTerminated = layerEarlyTerminated

		adequacy := adequacyScore(results, currentLimit, opts.MinResultCount)
		if iteration > 0 {
			report.Refinements = append(report.Refinements, RefinementStep{
				Iteration: iteration,
				Query:     currentQuery,
				Limit:     currentLimit,
				Adequacy:  adequacy,
			})
		}

		adequacyMet := opts.AdequacyThreshold > 0 && adequacy >= opts.AdequacyThreshold &&
			(opts.MinResultCount <= 0 || len(results) >= opts.MinResultCount)
		if adequacyMet {
			break
		}
		if iteration+1 >= maxReflections {
			break
		}

		nextQuery := o.nextQuery(ctx, currentQuery, iteration)
		if nextQuery == currentQuery {
			// No further reformulation possible; stop rather than loop.
			break
		}

		factor := opts.LimitIncreaseFactor
		if factor <= 0 {
			factor = 1.5
		}
		currentQuery = nextQuery
		currentLimit = int(float64(currentLimit) * factor)
		if currentLimit <= opts.Limit {
			currentLimit = opts.Limit + 1
		}

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}
	}

	return report, nil
}

// runOneRound dispatches the layer searches for one query/limit pair,
// fuses the results, and reports which layers actually ran.
//
// Semantic and lexical always run concurrently, since both are cheap
// relative to the value they add. Symbolic only runs when explicit
// filters were supplied or when semantic+lexical's adequacy falls short
// of the threshold: the layer that is least likely to contribute is
// skipped when no symbolic filters are in play, since it otherwise
// contributes only the 0.5 baseline weight.
func (o *Orchestrator) runOneRound(ctx context.Context, query string, limit int, weights Weights, opts Options) ([]Result, []string, bool, error) {
	layerLimit := limit * layerOverDispatchFactor

	var (
		mu             sync.Mutex
		semanticScores = map[string]float64{}
		lexicalScores  = map[string]float64{}
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		results, err := o.semantic.Search(egCtx, query, layerLimit, opts.MinSimilarity)
		if err != nil {
			return nil // per-layer failures are tolerated: empty score map
		}
		mu.Lock()
		for _, r := range results {
			semanticScores[r.Name] = r.Score
		}
		mu.Unlock()
		return nil
	})
	eg.Go(func() error {
		results := o.lexical.Ranked(query, search.RankedOptions{Limit: layerLimit})
		mu.Lock()
		for _, r := range results {
			lexicalScores[r.Name] = r.Score
		}
		mu.Unlock()
		return nil
	})
	_ = eg.Wait() // goroutines above never return a non-nil error

	lexicalScores = normalizeLexicalScores(lexicalScores)

	executedLayers := []string{"semantic", "lexical"}
	symbolicScores := map[string]float64{}
	needSymbolic := opts.SymbolicFilters != nil
	earlyTerminated := false

	if !needSymbolic {
		provisional := combine(o.graph, semanticScores, lexicalScores, nil, weights, false)
		adequacy := adequacyScore(provisional, limit, opts.MinResultCount)
		adequacyMet := opts.AdequacyThreshold > 0 && adequacy >= opts.AdequacyThreshold &&
			(opts.MinResultCount <= 0 || len(provisional) >= opts.MinResultCount)
		needSymbolic = !adequacyMet
		earlyTerminated = adequacyMet
	}

	if needSymbolic {
		executedLayers = append(executedLayers, "symbolic")
		entities := o.graph.All()
		filters := toSearchFilters(opts.SymbolicFilters)
		for _, r := range o.symbolic.Search(entities, filters) {
			symbolicScores[r.Name] = r.Score
		}
	}

	combined := combine(o.graph, semanticScores, lexicalScores, symbolicScores, weights, needSymbolic)
	if limit > 0 && len(combined) > limit {
		combined = combined[:limit]
	}
	return combined, executedLayers, earlyTerminated, nil
}

func toSearchFilters(f *SymbolicFilters) search.Filters {
	if f == nil {
		return search.Filters{}
	}
	var importance *search.ImportanceRange
	if f.MinImportance != nil || f.MaxImportance != nil {
		importance = &search.ImportanceRange{Min: f.MinImportance, Max: f.MaxImportance}
	}
	var dateRange *search.DateRange
	if f.DateRange != nil {
		dateRange = &search.DateRange{Start: f.DateRange.Start, End: f.DateRange.End}
	}
	return search.Filters{
		Tags:            f.Tags,
		EntityTypes:     f.EntityTypes,
		Importance:      importance,
		HasObservations: f.HasObservations,
		DateRange:       dateRange,
	}
}

// combine computes each candidate's weighted combined score and sorts
// descending, breaking ties semantic > lexical > symbolic > name.
func combine(g *graph.Store, semantic, lexical, symbolic map[string]float64, w Weights, symbolicRan bool) []Result {
	names := map[string]bool{}
	for n := range semantic {
		names[n] = true
	}
	for n := range lexical {
		names[n] = true
	}
	for n := range symbolic {
		names[n] = true
	}

	results := make([]Result, 0, len(names))
	for name := range names {
		e, err := g.GetByName(name)
		if err != nil {
			continue
		}
		sem := semantic[name]
		lex := lexical[name]
		sym, inSymbolic := symbolic[name]
		if !inSymbolic {
			// Baseline symbolic contribution when no symbolic filters were
			// supplied at all.
			if !symbolicRan {
				sym = 0.5
			}
		}

		var matched []string
		if sem > 0 {
			matched = append(matched, "semantic")
		}
		if lex > 0 {
			matched = append(matched, "lexical")
		}
		if inSymbolic {
			matched = append(matched, "symbolic")
		}

		combined := sem*w.Semantic + lex*w.Lexical + sym*w.Symbolic
		results = append(results, Result{
			Entity:        e,
			CombinedScore: combined,
			SemanticScore: sem,
			LexicalScore:  lex,
			SymbolicScore: sym,
			MatchedLayers: matched,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		if a.LexicalScore != b.LexicalScore {
			return a.LexicalScore > b.LexicalScore
		}
		if a.SymbolicScore != b.SymbolicScore {
			return a.SymbolicScore > b.SymbolicScore
		}
		return a.Entity.Name < b.Entity.Name
	})
	return results
}

// nextQuery produces the reflection round's rewritten query, preferring
// o.reformulator when configured and falling back to the deterministic
// type-hint reformulation otherwise or on any reformulator error.
func (o *Orchestrator) nextQuery(ctx context.Context, query string, iteration int) string {
	if o.reformulator == nil {
		return reformulate(query, iteration)
	}
	rewritten, err := o.reformulator.Reformulate(ctx, query, iteration)
	if err != nil {
		return reformulate(query, iteration)
	}
	return rewritten
}

// reformulate injects a type hint derived from the reflection iteration
// into query. Returns query unchanged once no further hint remains,
// which the caller treats as a stop condition.
func reformulate(query string, iteration int) string {
	hints := []string{"person", "location", "temporal"}
	if iteration >= len(hints) {
		return query
	}
	return query + " type:" + hints[iteration]
}
