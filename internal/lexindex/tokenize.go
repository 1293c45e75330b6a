package lexindex

import "strings"

// Tokenize lowercases text, splits on runs of non-alphanumeric
// characters, and drops tokens shorter than two characters.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		return !isAlnum
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// TermFrequencies counts token occurrences in text.
func TermFrequencies(text string) map[string]int {
	tf := make(map[string]int)
	for _, t := range Tokenize(text) {
		tf[t]++
	}
	return tf
}
