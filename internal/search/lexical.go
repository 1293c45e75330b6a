package search

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/lexindex"
	"github.com/cortexkg/cortexkg/internal/search/boolquery"
)

// Lexical implements the lexical search layer: TF/IDF-ranked search,
// boolean-grammar search, and fuzzy (edit-distance) search.
type Lexical struct {
	index *lexindex.Index
	graph *graph.Store
}

// NewLexical constructs a Lexical layer searcher over idx and g.
func NewLexical(idx *lexindex.Index, g *graph.Store) *Lexical {
	return &Lexical{index: idx, graph: g}
}

// RankedOptions filters the ranked() search.
type RankedOptions struct {
	Tags          []string
	MinImportance *float64
	MaxImportance *float64
	Limit         int
}

// Ranked scores candidates by sum(tf*idf) over the query's tokens, then
// applies the tag/importance filters before truncating to Limit.
func (l *Lexical) Ranked(query string, opts RankedOptions) []Result {
	tokens := lexindex.Tokenize(query)
	scores := l.index.Score(tokens)

	results := make([]Result, 0, len(scores))
	for name, score := range scores {
		e, err := l.graph.GetByName(name)
		if err != nil {
			continue
		}
		if !matchesRankedFilters(e, opts) {
			continue
		}
		results = append(results, Result{Name: name, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func matchesRankedFilters(e *graph.Entity, opts RankedOptions) bool {
	if len(opts.Tags) > 0 {
		found := false
		for _, want := range opts.Tags {
			for _, have := range e.Tags {
				if strings.EqualFold(want, have) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.MinImportance != nil && e.Importance < *opts.MinImportance {
		return false
	}
	if opts.MaxImportance != nil && e.Importance > *opts.MaxImportance {
		return false
	}
	return true
}

// Boolean parses query as an AND/OR/NOT/FIELD:value/quoted-phrase/parens
// expression (internal/search/boolquery) and evaluates it against every
// entity in the graph.
func (l *Lexical) Boolean(query string) ([]Result, error) {
	node, err := boolquery.Parse(query)
	if err != nil {
		return nil, err
	}

	all := l.graph.All()
	results := make([]Result, 0, len(all))
	for _, e := range all {
		if node.Match(e) {
			results = append(results, Result{Name: e.Name, Score: 1.0})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

// Fuzzy matches query against name/entity_type/observations via
// 1 - levenshtein(query, field)/max(len(query), len(field)); an entity
// matches if any field's score exceeds threshold.
func (l *Lexical) Fuzzy(query string, threshold float64) []Result {
	all := l.graph.All()
	lowerQuery := strings.ToLower(query)

	results := make([]Result, 0)
	for _, e := range all {
		best := fuzzyFieldScore(lowerQuery, strings.ToLower(e.Name))
		if s := fuzzyFieldScore(lowerQuery, strings.ToLower(e.EntityType)); s > best {
			best = s
		}
		for _, o := range e.Observations {
			if s := fuzzyFieldScore(lowerQuery, strings.ToLower(o)); s > best {
				best = s
			}
		}
		if best > threshold {
			results = append(results, Result{Name: e.Name, Score: best})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})
	return results
}

func fuzzyFieldScore(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := matchr.Levenshtein(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}
