package semantic

import (
	"context"
	"crypto/sha256"
	"math"
	"strings"
)

// LocalProvider is a dependency-free, offline embedding provider. It
// stands in for the original crate's sentence-transformers-backed local
// provider (memory-core/src/embeddings/local.rs, not pulled into this
// pack): rather than shelling out to a model runtime, it derives a stable
// bag-of-hashed-tokens vector so that texts sharing vocabulary land closer
// together under cosine similarity than unrelated texts, without any
// network or GPU dependency. It is always available, which is why the
// fallback chain uses it whenever no remote provider is configured or the
// remote provider fails.
type LocalProvider struct {
	dim   int
	model string
}

// NewLocalProvider constructs a LocalProvider with the given vector
// dimension (default 384, matching the original crate's
// DEFAULT_EMBEDDING_DIM for sentence-transformers/all-MiniLM-L6-v2).
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = 384
	}
	return &LocalProvider{dim: dim, model: "local-hashed-ngram"}
}

func (p *LocalProvider) Dimension() int    { return p.dim }
func (p *LocalProvider) ModelName() string { return p.model }

// EmbedText hashes each whitespace token into a bucket of the output
// vector and accumulates a signed weight, then L2-normalizes. Two texts
// sharing tokens accumulate mass in the same buckets, giving them higher
// cosine similarity than texts with disjoint vocabulary.
func (p *LocalProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, p.dim)
	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		idx := int(sum[0])<<8 | int(sum[1])
		idx %= p.dim
		sign := 1.0
		if sum[2]%2 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, p.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
