package search

import (
	"context"
	"sort"

	"github.com/cortexkg/cortexkg/internal/embedding"
	"github.com/cortexkg/cortexkg/internal/memcache"
	"github.com/cortexkg/cortexkg/internal/vectorstore"
)

// Semantic implements the semantic search layer: embed the query
// (consulting the embedding cache), then search the quantized vector
// store for the nearest entities.
type Semantic struct {
	vectors    *vectorstore.Store
	embedder   embedding.Provider
	embedCache *memcache.Cache[[]float32]
}

// NewSemantic constructs a Semantic layer searcher.
func NewSemantic(vectors *vectorstore.Store, embedder embedding.Provider, embedCache *memcache.Cache[[]float32]) *Semantic {
	return &Semantic{vectors: vectors, embedder: embedder, embedCache: embedCache}
}

// Search embeds query and returns the top_k entities with similarity >=
// minSimilarity, descending by similarity.
func (s *Semantic) Search(ctx context.Context, query string, topK int, minSimilarity float64) ([]Result, error) {
	vec, err := s.embedFor(ctx, query, "query")
	if err != nil {
		return nil, err
	}

	matches := s.vectors.Search(vec, topK, minSimilarity)
	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{Name: m.Name, Score: m.Similarity}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// embedFor resolves the embedding for text, consulting the embedding cache
// first. mode is purely a cache-key discriminator (e.g. "query" vs
// "document" embeddings of the same text may differ in downstream usage
// even though the provider itself is mode-agnostic) — it is never passed
// to the provider.
func (s *Semantic) embedFor(ctx context.Context, text, mode string) ([]float32, error) {
	key := memcache.EmbeddingKey(text, mode)
	if cached, ok := s.embedCache.Get(key); ok {
		return cached, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.embedCache.Set(key, vec)
	return vec, nil
}
