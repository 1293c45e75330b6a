package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/cortexkg/cortexkg/internal/embedding"
)

type failingEmbeddingProvider struct {
	err error
}

func (p *failingEmbeddingProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, p.err
}
func (p *failingEmbeddingProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, p.err
}
func (p *failingEmbeddingProvider) Dimensions() int { return 8 }
func (p *failingEmbeddingProvider) ModelID() string { return "failing" }

func TestEmbeddingFallback_PrimarySuccess(t *testing.T) {
	primary := embedding.NewHashProvider(16)
	f := NewEmbeddingFallback(primary, "primary", FallbackConfig{})

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 16 {
		t.Errorf("len(vec) = %d, want 16", len(vec))
	}
	if f.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d, want 16", f.Dimensions())
	}
}

func TestEmbeddingFallback_FailsOverToSecondary(t *testing.T) {
	primary := &failingEmbeddingProvider{err: errors.New("primary down")}
	secondary := embedding.NewHashProvider(16)

	f := NewEmbeddingFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("secondary", secondary)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 16 {
		t.Errorf("len(vec) = %d, want 16", len(vec))
	}
}

func TestEmbeddingFallback_AllFail(t *testing.T) {
	primary := &failingEmbeddingProvider{err: errors.New("primary down")}
	f := NewEmbeddingFallback(primary, "primary", FallbackConfig{})

	_, err := f.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("expected ErrAllFailed, got %v", err)
	}
}

func TestEmbeddingFallback_EmbedBatch(t *testing.T) {
	primary := embedding.NewHashProvider(8)
	f := NewEmbeddingFallback(primary, "primary", FallbackConfig{})

	vecs, err := f.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("len(vecs) = %d, want 2", len(vecs))
	}
}
