package hybrid

import "math"

// normalizeWeights scales w so its components sum to 1. A
// zero-sum input (all weights zero) falls back to an even split.
func normalizeWeights(w Weights) Weights {
	sum := w.Semantic + w.Lexical + w.Symbolic
	if sum <= 0 {
		return Weights{Semantic: 1.0 / 3, Lexical: 1.0 / 3, Symbolic: 1.0 / 3}
	}
	return Weights{
		Semantic: w.Semantic / sum,
		Lexical:  w.Lexical / sum,
		Symbolic: w.Symbolic / sum,
	}
}

// normalizeLexicalScores divides every score by the maximum observed score,
// so lexical's unbounded TF/IDF sums become comparable to the [0,1] scores
// the semantic and symbolic layers already produce.
func normalizeLexicalScores(scores map[string]float64) map[string]float64 {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max <= 0 {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for name, s := range scores {
		out[name] = s / max
	}
	return out
}

// adequacyScore estimates how confident the orchestrator should be in
// results without consulting the remaining layers, from the top-k mean
// score, the fraction of the desired count actually found (coverage), and
// how tightly the top scores cluster (low variance raises confidence).
// The three signals (mean, coverage, variance) are equally plausible to
// combine several ways; this module weights mean most heavily since it
// most directly reflects match quality.
func adequacyScore(results []Result, topK, desiredCount int) float64 {
	if len(results) == 0 {
		return 0
	}
	if topK > len(results) {
		topK = len(results)
	}
	top := results[:topK]

	var sum float64
	for _, r := range top {
		sum += r.CombinedScore
	}
	mean := sum / float64(len(top))

	coverage := 1.0
	if desiredCount > 0 {
		coverage = math.Min(1.0, float64(len(results))/float64(desiredCount))
	}

	var variance float64
	for _, r := range top {
		d := r.CombinedScore - mean
		variance += d * d
	}
	variance /= float64(len(top))
	// Variance over scores in [0,1] is bounded by 0.25; normalize and
	// invert so low variance (tight clustering) raises confidence.
	varianceConfidence := 1.0 - math.Min(1.0, variance/0.25)

	score := 0.5*mean + 0.3*coverage + 0.2*varianceConfidence
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
