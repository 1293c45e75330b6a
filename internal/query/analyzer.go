package query

import (
	"strings"
	"time"
)

// titles precede a person's name in running text ("Dr. Alameda").
var titles = map[string]bool{"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true}

// locationPrepositions precede a place name.
var locationPrepositions = map[string]bool{"in": true, "at": true, "from": true, "to": true, "near": true}

// orgSuffixes mark the token before them as an organization name.
var orgSuffixes = map[string]bool{"inc": true, "corp": true, "llc": true, "ltd": true}

var relativeTemporalPhrases = []string{
	"yesterday", "today",
	"last day", "this day",
	"last week", "this week",
	"last month", "this month",
	"last year", "this year",
}

// Analyzer extracts structured signals from a raw query string. It holds
// no mutable state, so one Analyzer is safe to share.
type Analyzer struct {
	temporal *TemporalParser
}

// NewAnalyzer constructs an Analyzer. clock lets tests pin "now".
func NewAnalyzer(clock func() time.Time) *Analyzer {
	return &Analyzer{temporal: NewTemporalParser(clock)}
}

// Analyze produces an Analysis for raw.
func (a *Analyzer) Analyze(raw string) *Analysis {
	words := splitWords(raw)
	lower := strings.ToLower(raw)

	analysis := &Analysis{
		RawQuery:      raw,
		Persons:       extractPersons(words),
		Locations:     extractLocations(words),
		Organizations: extractOrganizations(words),
		TemporalRange: a.extractTemporal(raw, lower),
	}
	analysis.QuestionType = classifyQuestion(lower)
	analysis.Complexity = classifyComplexity(words, analysis)
	analysis.Confidence = confidenceFor(analysis.Complexity)
	analysis.RequiredInfoTypes = requiredInfoTypes(lower)
	analysis.SubQueries = splitSubQueries(raw)
	return analysis
}

func splitWords(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == ';'
	})
}

func trimPunct(w string) string {
	return strings.Trim(w, ".,!?:;\"'()")
}

func isCapitalized(w string) bool {
	w = trimPunct(w)
	if w == "" {
		return false
	}
	r := rune(w[0])
	return r >= 'A' && r <= 'Z'
}

func extractPersons(words []string) []string {
	seen := make(map[string]bool)
	var out []string
	for i, w := range words {
		clean := trimPunct(w)
		lowerClean := strings.ToLower(clean)
		if titles[lowerClean] && i+1 < len(words) {
			next := trimPunct(words[i+1])
			if isCapitalized(next) && !seen[next] {
				seen[next] = true
				out = append(out, next)
			}
			continue
		}
		// Leading-capital token not itself a sentence-initial word and
		// not a title.
		if i > 0 && isCapitalized(w) && !titles[lowerClean] {
			if !seen[clean] {
				seen[clean] = true
				out = append(out, clean)
			}
		}
	}
	return out
}

func extractLocations(words []string) []string {
	seen := make(map[string]bool)
	var out []string
	for i, w := range words {
		lowerClean := strings.ToLower(trimPunct(w))
		if locationPrepositions[lowerClean] && i+1 < len(words) {
			next := trimPunct(words[i+1])
			if isCapitalized(next) && !seen[next] {
				seen[next] = true
				out = append(out, next)
			}
		}
	}
	return out
}

func extractOrganizations(words []string) []string {
	seen := make(map[string]bool)
	var out []string
	for i, w := range words {
		lowerClean := strings.ToLower(trimPunct(w))
		if orgSuffixes[lowerClean] && i > 0 {
			prev := trimPunct(words[i-1])
			if prev != "" && !seen[prev] {
				seen[prev] = true
				out = append(out, prev)
			}
		}
	}
	return out
}

func classifyQuestion(lower string) QuestionType {
	switch {
	case strings.Contains(lower, "and then"):
		return QuestionMultiHop
	case strings.Contains(lower, "compare") || strings.Contains(lower, "versus") || strings.Contains(lower, " vs "):
		return QuestionComparative
	case strings.Contains(lower, "how many") || strings.Contains(lower, "how much") || strings.Contains(lower, "count of"):
		return QuestionAggregation
	case strings.Contains(lower, "when") || strings.Contains(lower, "what time") || strings.Contains(lower, "what date"):
		return QuestionTemporal
	case strings.Contains(lower, "explain") || strings.Contains(lower, "why") || strings.Contains(lower, "how does"):
		return QuestionConceptual
	case strings.Contains(lower, "what") || strings.Contains(lower, "who") || strings.Contains(lower, "where"):
		return QuestionFactual
	default:
		return QuestionFactual
	}
}

func classifyComplexity(words []string, a *Analysis) Complexity {
	entityCount := len(a.Persons) + len(a.Locations) + len(a.Organizations)
	score := len(words) + entityCount*2
	switch {
	case score <= 6:
		return ComplexityLow
	case score <= 14:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

func confidenceFor(c Complexity) float64 {
	switch c {
	case ComplexityLow:
		return 0.9
	case ComplexityMedium:
		return 0.6
	default:
		return 0.3
	}
}

func requiredInfoTypes(lower string) []InfoType {
	var out []InfoType
	add := func(t InfoType) {
		for _, existing := range out {
			if existing == t {
				return
			}
		}
		out = append(out, t)
	}
	if strings.Contains(lower, "who") {
		add(InfoPerson)
	}
	if strings.Contains(lower, "where") {
		add(InfoLocation)
	}
	if strings.Contains(lower, "when") {
		add(InfoTemporal)
	}
	if strings.Contains(lower, "how many") || strings.Contains(lower, "how much") {
		add(InfoQuantity)
	}
	return out
}

// splitSubQueries breaks raw into sub-query text when it contains
// "and then" or a joining "and" between two clauses.
func splitSubQueries(raw string) []string {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "and then") {
		idx := strings.Index(lower, "and then")
		first := strings.TrimSpace(raw[:idx])
		second := strings.TrimSpace(raw[idx+len("and then"):])
		return filterNonEmpty(first, second)
	}
	// A joining "and" between two independent clauses: only split when
	// both sides look like complete clauses (contain a verb-ish word is
	// out of scope; use a simple heuristic of each side having >= 3
	// words to avoid splitting "Alice and Bob").
	if idx := strings.Index(lower, " and "); idx >= 0 {
		first := strings.TrimSpace(raw[:idx])
		second := strings.TrimSpace(raw[idx+len(" and "):])
		if len(splitWords(first)) >= 3 && len(splitWords(second)) >= 3 {
			return filterNonEmpty(first, second)
		}
	}
	return nil
}

func filterNonEmpty(parts ...string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (a *Analyzer) extractTemporal(raw, lower string) *TemporalRange {
	for _, phrase := range relativeTemporalPhrases {
		if strings.Contains(lower, phrase) {
			if start, end, ok := a.temporal.ResolveRelative(phrase); ok {
				return &TemporalRange{Relative: phrase, Start: &start, End: &end}
			}
			return &TemporalRange{Relative: phrase}
		}
	}
	if t, ok := parseISODate(raw); ok {
		end := t.Add(24 * time.Hour)
		return &TemporalRange{Start: &t, End: &end}
	}
	return nil
}

// parseISODate looks for a bare YYYY-MM-DD token anywhere in raw.
func parseISODate(raw string) (time.Time, bool) {
	for _, w := range splitWords(raw) {
		w = trimPunct(w)
		if len(w) != 10 || w[4] != '-' || w[7] != '-' {
			continue
		}
		if t, err := time.Parse("2006-01-02", w); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
