// Package embedding defines the Provider interface for vector embedding
// backends and the deterministic fallback used when no live model is
// configured. Concrete backends live in the openai, ollama, and mock
// subpackages.
package embedding

import "context"

// Provider produces dense vector embeddings for text, for consumption by
// the semantic search layer and the incremental indexer.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
}
