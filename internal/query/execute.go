package query

import (
	"context"
	"sort"

	"github.com/cortexkg/cortexkg/internal/hybrid"
)

// Execute analyzes raw into an Analysis, plans it into sub-queries, and
// runs each sub-query against orchestrator, merging the per-sub-query
// reports into one. A sub-query whose Filters
// carry a "date_range" resolves it (relative phrases via temporal, or an
// already-absolute range as-is) into that sub-query's SymbolicFilters.
func Execute(ctx context.Context, orchestrator *hybrid.Orchestrator, analyzer *Analyzer, planner *Planner, temporal *TemporalParser, raw string, opts hybrid.Options) (*hybrid.SearchReport, *Analysis, error) {
	analysis := analyzer.Analyze(raw)
	plan := planner.Plan(analysis)

	merged := &hybrid.SearchReport{}
	seen := map[string]bool{}
	for _, sub := range plan.SubQueries {
		subOpts := opts
		if tr, ok := sub.Filters["date_range"].(*TemporalRange); ok && tr != nil {
			if dr := resolveDateRange(temporal, tr); dr != nil {
				filters := hybrid.SymbolicFilters{}
				if subOpts.SymbolicFilters != nil {
					filters = *subOpts.SymbolicFilters
				}
				filters.DateRange = dr
				subOpts.SymbolicFilters = &filters
			}
		}

		report, err := orchestrator.Search(ctx, sub.Text, subOpts)
		if err != nil {
			return nil, analysis, err
		}
		for _, r := range report.Results {
			if seen[r.Entity.Name] {
				continue
			}
			seen[r.Entity.Name] = true
			merged.Results = append(merged.Results, r)
		}
		merged.ExecutedLayers = append(merged.ExecutedLayers, report.ExecutedLayers...)
		merged.Refinements = append(merged.Refinements, report.Refinements...)
		merged.EarlyTerminated = merged.EarlyTerminated || report.EarlyTerminated
	}

	sort.SliceStable(merged.Results, func(i, j int) bool {
		return merged.Results[i].CombinedScore > merged.Results[j].CombinedScore
	})
	if opts.Limit > 0 && len(merged.Results) > opts.Limit {
		merged.Results = merged.Results[:opts.Limit]
	}
	return merged, analysis, nil
}

func resolveDateRange(temporal *TemporalParser, tr *TemporalRange) *hybrid.DateRange {
	if tr.Start != nil || tr.End != nil {
		return &hybrid.DateRange{Start: tr.Start, End: tr.End}
	}
	if tr.Relative == "" || temporal == nil {
		return nil
	}
	start, end, ok := temporal.ResolveRelative(tr.Relative)
	if !ok {
		return nil
	}
	return &hybrid.DateRange{Start: &start, End: &end}
}
