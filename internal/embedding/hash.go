package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// Ensure HashProvider implements Provider at compile time.
var _ Provider = (*HashProvider)(nil)

// HashProvider is the deterministic, offline default embedding backend: it
// derives a fixed-dimension float32 vector from repeated SHA-256 hashing of
// the input text, with no network dependency and no model to configure.
// It is not semantically meaningful beyond exact and near-exact text
// matches, but it keeps C7's semantic layer exercisable when no live
// embedding provider is configured.
type HashProvider struct {
	dims int
}

// NewHashProvider constructs a HashProvider producing vectors of the given
// dimensionality. dims must be positive; values below 8 are raised to 8.
func NewHashProvider(dims int) *HashProvider {
	if dims < 8 {
		dims = 8
	}
	return &HashProvider{dims: dims}
}

// Embed implements Provider.
func (h *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

// EmbedBatch implements Provider.
func (h *HashProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

// Dimensions implements Provider.
func (h *HashProvider) Dimensions() int { return h.dims }

// ModelID implements Provider.
func (h *HashProvider) ModelID() string { return "hash-fallback" }

func (h *HashProvider) vector(text string) []float32 {
	out := make([]float32, h.dims)
	block := []byte(text)
	for i := 0; i < h.dims; i += 8 {
		sum := sha256.Sum256(append(block, byte(i)))
		for j := 0; j < 8 && i+j < h.dims; j++ {
			bits := binary.BigEndian.Uint32(sum[j*4 : j*4+4])
			// Map to [-1, 1) by reading the 32 bits as a two's-complement
			// int32 and dividing by 2^31.
			v := float32(int32(bits)) / float32(1<<31)
			out[i+j] = v
		}
	}
	return out
}
