// Package search implements the three C7 layer searches — semantic,
// lexical, symbolic — each consulting the index substrate (C3/C4) built
// in internal/lexindex and internal/vectorstore.
package search

// Result is one scored match, shared by the semantic and lexical layers.
type Result struct {
	Name  string
	Score float64
}
