// Package semantic implements the pluggable embedding service: text-to-
// vector providers, a circuit breaker guarding remote calls, a Local/
// Remote/Mock fallback chain, and the episode/pattern-to-text projections
// and cosine similarity search used by hierarchical retrieval's semantic
// scoring level. Grounded on the SemanticService / EmbeddingProvider
// architecture in memory-core/src/embeddings/mod.rs in the retrieved
// original_source tree: provider trait methods (embed_text/embed_batch/
// similarity/embedding_dimension/model_name) and the episode_to_text/
// pattern_to_text/context_to_text projections are ported line-for-line in
// spirit. The fallback chain does not keep with_fallback's Local->OpenAI->
// Mock order: FallbackProvider tries a configured remote provider first,
// then Local, then Mock.
package semantic

import (
	"context"
	"fmt"
	"math"
)

// Provider converts text to dense vectors and scores similarity between
// two vectors, matching the original crate's EmbeddingProvider trait.
type Provider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// CosineSimilarity scores two vectors in [-1, 1]. Mismatched dimensions
// return 0 rather than erroring — retrieval callers treat 0 as "no
// semantic signal" and fall back to the other three scoring levels.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ErrProviderUnavailable indicates a remote provider's circuit breaker is
// open, or no API key was configured for it.
var ErrProviderUnavailable = fmt.Errorf("semantic: provider unavailable")
