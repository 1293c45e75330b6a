package agentmemory

import (
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/lexindex"
)

func tokenSet(s string) map[string]bool {
	tokens := lexindex.Tokenize(s)
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// jaccard is |a∩b| / |a∪b|; two empty sets are defined as identical.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

// observationUniqueness is the average pairwise 1-Jaccard among an
// entity's own observations, tokenized individually. Fewer than two
// observations gives no basis for comparison, so it reads as maximally
// unique.
func observationUniqueness(observations []string) float64 {
	n := len(observations)
	if n < 2 {
		return 1.0
	}
	sets := make([]map[string]bool, n)
	for i, o := range observations {
		sets[i] = tokenSet(o)
	}

	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += 1 - jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return sum / float64(pairs)
}

// entityTokenSet is the union of tokens across all of e's observations,
// used to compare two entities' observation sets for diversity, as
// distinct from observationUniqueness's intra-entity, per-observation
// comparison.
func entityTokenSet(e *graph.Entity) map[string]bool {
	out := make(map[string]bool)
	for _, o := range e.Observations {
		for t := range tokenSet(o) {
			out[t] = true
		}
	}
	return out
}

// CalculateDiversityScore returns 1 - the average pairwise observation-set
// similarity across entities; a single entity yields 1.0.
func CalculateDiversityScore(entities []*graph.Entity) float64 {
	n := len(entities)
	if n <= 1 {
		return 1.0
	}
	sets := make([]map[string]bool, n)
	for i, e := range entities {
		sets[i] = entityTokenSet(e)
	}

	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return 1 - sum/float64(pairs)
}
