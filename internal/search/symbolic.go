package search

import (
	"sort"
	"strings"
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
)

// DateRange bounds an entity's created_at for the symbolic layer's
// date_range filter.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// ImportanceRange bounds an entity's importance; the default minimum is
// 5 when neither bound is supplied.
type ImportanceRange struct {
	Min *float64
	Max *float64
}

// Filters is the ANDed set of symbolic metadata filters.
// Within Tags and EntityTypes, matches are ORed (case-insensitive);
// across filter kinds, matches are ANDed.
type Filters struct {
	Tags            []string
	EntityTypes     []string
	Importance      *ImportanceRange
	DateRange       *DateRange
	HasObservations *bool
}

// SymbolicResult is one match with the set of filter names it satisfied.
type SymbolicResult struct {
	Name           string
	Score          float64
	MatchedFilters []string
}

// Symbolic implements the symbolic search layer: a metadata-filter scan
// over a candidate entity set.
type Symbolic struct{}

// NewSymbolic constructs a Symbolic layer searcher.
func NewSymbolic() *Symbolic { return &Symbolic{} }

// Search evaluates filters against each of entities, returning only those
// that satisfy every supplied filter kind.
func (s *Symbolic) Search(entities []*graph.Entity, filters Filters) []SymbolicResult {
	results := make([]SymbolicResult, 0, len(entities))
	for _, e := range entities {
		matched, ok := evaluateFilters(e, filters)
		if !ok {
			continue
		}
		results = append(results, SymbolicResult{
			Name:           e.Name,
			Score:          1.0,
			MatchedFilters: matched,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func evaluateFilters(e *graph.Entity, f Filters) ([]string, bool) {
	var matched []string

	if len(f.Tags) > 0 {
		if !matchesAnyFold(f.Tags, e.Tags) {
			return nil, false
		}
		matched = append(matched, "tags")
	}

	if len(f.EntityTypes) > 0 {
		found := false
		for _, want := range f.EntityTypes {
			if strings.EqualFold(want, e.EntityType) {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		matched = append(matched, "entity_types")
	}

	importance := f.Importance
	minImportance := 5.0
	hasMin := true
	maxImportance := 0.0
	hasMax := false
	if importance != nil {
		if importance.Min != nil {
			minImportance = *importance.Min
		} else if importance.Max != nil {
			hasMin = false
		}
		if importance.Max != nil {
			maxImportance = *importance.Max
			hasMax = true
		}
	}
	if hasMin && e.Importance < minImportance {
		return nil, false
	}
	if hasMax && e.Importance > maxImportance {
		return nil, false
	}
	if importance != nil {
		matched = append(matched, "importance")
	}

	if f.DateRange != nil {
		if f.DateRange.Start != nil && e.CreatedAt.Before(*f.DateRange.Start) {
			return nil, false
		}
		if f.DateRange.End != nil && e.CreatedAt.After(*f.DateRange.End) {
			return nil, false
		}
		matched = append(matched, "date_range")
	}

	if f.HasObservations != nil {
		has := len(e.Observations) > 0
		if has != *f.HasObservations {
			return nil, false
		}
		matched = append(matched, "has_observations")
	}

	return matched, true
}

func matchesAnyFold(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
