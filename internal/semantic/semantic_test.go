package semantic

import (
	"context"
	"testing"

	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 0, 0}
	if sim := CosineSimilarity(v, v); sim < 0.999 {
		t.Errorf("expected ~1.0 for identical vectors, got %v", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if sim := CosineSimilarity(a, b); sim != 0 {
		t.Errorf("expected 0 for orthogonal vectors, got %v", sim)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0, 0}
	if sim := CosineSimilarity(a, b); sim != 0 {
		t.Errorf("expected 0 for mismatched dimensions, got %v", sim)
	}
}

func TestLocalProviderSimilarTextsCloser(t *testing.T) {
	p := NewLocalProvider(256)
	ctx := context.Background()
	a, _ := p.EmbedText(ctx, "refactor the parser to use recursive descent")
	b, _ := p.EmbedText(ctx, "refactor the parser using recursive descent parsing")
	c, _ := p.EmbedText(ctx, "deploy the kubernetes cluster to production")

	simAB := CosineSimilarity(a, b)
	simAC := CosineSimilarity(a, c)
	if simAB <= simAC {
		t.Errorf("expected shared-vocabulary texts closer: simAB=%v simAC=%v", simAB, simAC)
	}
}

func TestFallbackProviderDisabledDefaultsToLocal(t *testing.T) {
	cfg := config.EmbeddingConfig{Enabled: false, Provider: config.ProviderLocal, Dimension: 128}
	fp := NewFallbackProvider(cfg, nil)
	vec, err := fp.EmbedText(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 128 {
		t.Errorf("expected dimension 128, got %d", len(vec))
	}
}

func TestServiceDisabledIsNoOp(t *testing.T) {
	cfg := config.EmbeddingConfig{Enabled: false}
	svc := NewService(cfg, nil)
	ep := &types.Episode{EpisodeID: "e1", TaskDescription: "test"}
	if err := svc.EmbedEpisode(context.Background(), ep); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
	matches, err := svc.FindSimilarEpisodes(context.Background(), "q", types.TaskContext{}, 5)
	if err != nil || matches != nil {
		t.Errorf("expected nil/nil for disabled service, got %v/%v", matches, err)
	}
}

func TestServiceEmbedAndSearchEpisode(t *testing.T) {
	cfg := config.EmbeddingConfig{Enabled: true, Provider: config.ProviderLocal, Dimension: 128, SimilarityThreshold: -1}
	svc := NewService(cfg, nil)
	ctx := context.Background()

	ep := &types.Episode{
		EpisodeID:       "e1",
		TaskDescription: "implement REST API for user authentication",
		Context:         types.TaskContext{Domain: "web"},
	}
	if err := svc.EmbedEpisode(ctx, ep); err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	matches, err := svc.FindSimilarEpisodes(ctx, "implement REST API authentication", types.TaskContext{Domain: "web"}, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) == 0 || matches[0].ID != "e1" {
		t.Errorf("expected e1 to be found, got %v", matches)
	}
}

func TestVectorIndexSearchRespectsThresholdAndLimit(t *testing.T) {
	idx := NewVectorIndex()
	idx.Put("a", []float32{1, 0})
	idx.Put("b", []float32{0.9, 0.1})
	idx.Put("c", []float32{0, 1})

	matches := idx.Search([]float32{1, 0}, 1, 0.5)
	if len(matches) != 1 {
		t.Fatalf("expected limit=1 to cap results, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("expected closest match 'a' first, got %s", matches[0].ID)
	}
}
