package semantic

import (
	"context"

	"go.uber.org/zap"

	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/nats"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// Service coordinates embedding generation, vector storage, and semantic
// search across episodes and patterns, mirroring the original crate's
// SemanticService. It is the component the retrieval package's fourth
// scoring level (semantic similarity) and the completion pipeline's
// embed-on-store step both call into.
type Service struct {
	provider       Provider
	episodeIndex   *VectorIndex
	patternIndex   *VectorIndex
	cfg            config.EmbeddingConfig
	logger         *zap.Logger
}

// NewService constructs a Service from configuration. When cfg.Enabled is
// false, every method degrades to a no-op returning zero-value results so
// callers do not need a separate "is embedding enabled" branch.
func NewService(cfg config.EmbeddingConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:     NewFallbackProvider(cfg, logger),
		episodeIndex: NewVectorIndex(),
		patternIndex: NewVectorIndex(),
		cfg:          cfg,
		logger:       logger,
	}
}

// Enabled reports whether semantic scoring should participate in
// retrieval and storage.
func (s *Service) Enabled() bool { return s.cfg.Enabled }

// SetEventBus forwards an optional event bus to the underlying provider
// chain, so a remote provider's circuit-breaker transitions get published
// (internal/semantic/fallback.go's checkBreakerState). A no-op when the
// configured provider has no breaker to report on (Local/Mock).
func (s *Service) SetEventBus(bus *nats.EventBus) {
	if fp, ok := s.provider.(*FallbackProvider); ok {
		fp.SetEventBus(bus)
	}
}

// EmbedEpisode generates and indexes an episode's embedding.
func (s *Service) EmbedEpisode(ctx context.Context, ep *types.Episode) error {
	if !s.cfg.Enabled {
		return nil
	}
	vec, err := s.provider.EmbedText(ctx, EpisodeToText(ep))
	if err != nil {
		return err
	}
	s.episodeIndex.Put(ep.EpisodeID, vec)
	return nil
}

// EmbedPattern generates and indexes a pattern's embedding.
func (s *Service) EmbedPattern(ctx context.Context, p *types.Pattern) error {
	if !s.cfg.Enabled {
		return nil
	}
	vec, err := s.provider.EmbedText(ctx, PatternToText(p))
	if err != nil {
		return err
	}
	s.patternIndex.Put(p.PatternID, vec)
	return nil
}

// ForgetEpisode removes an episode's embedding, called on capacity eviction.
func (s *Service) ForgetEpisode(episodeID string) { s.episodeIndex.Delete(episodeID) }

// ForgetPattern removes a pattern's embedding.
func (s *Service) ForgetPattern(patternID string) { s.patternIndex.Delete(patternID) }

// FindSimilarEpisodes searches the episode index for IDs semantically
// close to query within ctx, using the configured similarity threshold.
func (s *Service) FindSimilarEpisodes(ctx context.Context, query string, taskCtx types.TaskContext, limit int) ([]Match, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	vec, err := s.provider.EmbedText(ctx, QueryText(query, taskCtx))
	if err != nil {
		return nil, err
	}
	return s.episodeIndex.Search(vec, limit, s.cfg.SimilarityThreshold), nil
}

// FindSimilarPatterns searches the pattern index for IDs semantically
// close to a context description.
func (s *Service) FindSimilarPatterns(ctx context.Context, taskCtx types.TaskContext, limit int) ([]Match, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	vec, err := s.provider.EmbedText(ctx, ContextToText(taskCtx))
	if err != nil {
		return nil, err
	}
	return s.patternIndex.Search(vec, limit, s.cfg.SimilarityThreshold), nil
}

// EpisodeSimilarity scores the semantic similarity between a query and a
// specific already-indexed episode. Returns 0 if the episode has not been
// embedded or embedding is disabled — retrieval treats 0 as "no signal",
// not an error.
func (s *Service) EpisodeSimilarity(ctx context.Context, query string, taskCtx types.TaskContext, episodeID string) (float64, error) {
	if !s.cfg.Enabled {
		return 0, nil
	}
	target, ok := s.episodeIndex.Get(episodeID)
	if !ok {
		return 0, nil
	}
	vec, err := s.provider.EmbedText(ctx, QueryText(query, taskCtx))
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(vec, target), nil
}

// TextSimilarity scores raw cosine similarity between two free-text strings.
func (s *Service) TextSimilarity(ctx context.Context, a, b string) (float64, error) {
	if !s.cfg.Enabled {
		return 0, nil
	}
	return Similarity(ctx, s.provider, a, b)
}
