package semantic

import (
	"context"
	"hash/fnv"
)

// MockProvider returns deterministic pseudo-random vectors seeded from the
// input text's hash. Ported from the original crate's MockLocalModel,
// which the with_fallback chain reaches for only when every real provider
// has failed — the original logs an error that "embeddings will be
// random" at that point, which this provider's callers should do too.
type MockProvider struct {
	dim int
}

// NewMockProvider constructs a MockProvider with the given dimension.
func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 384
	}
	return &MockProvider{dim: dim}
}

func (p *MockProvider) Dimension() int    { return p.dim }
func (p *MockProvider) ModelName() string { return "mock-model" }

func (p *MockProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	out := make([]float32, p.dim)
	state := seed
	for i := range out {
		state = state*6364136223846793005 + 1442695040888963407
		out[i] = float32(int32(state>>32)) / float32(1<<31)
	}
	return out, nil
}

func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := p.EmbedText(ctx, t)
		out[i] = v
	}
	return out, nil
}
