package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"

	"talent-match/internal/cv"
)

// HashEmbedder is a deterministic bag-of-tokens embedder using feature hashing.
// It needs no network and is used for local development and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) ModelVersion() string { return fmt.Sprintf("hash-v1-%d", h.dim) }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	features := cv.Tokens(text)
	features = append(features, cv.ExtractSkills(text)...)
	for _, f := range features {
		hf := fnv.New64a()
		hf.Write([]byte(f))
		sum := hf.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[sum%uint64(h.dim)] += sign
	}
	return Normalize(vec), nil
}
