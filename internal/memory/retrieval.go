package memory

import (
	"context"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/pattern"
	"github.com/d-o-hub/episodic-memory-engine/internal/retrieval"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// candidatePoolSize bounds how many recent episodes are pulled from durable
// storage before scoring. Retrieval ranks and diversifies within this pool
// rather than scanning the entire store on every query.
const candidatePoolSize = 500

// RetrieveRelevantContext scores and ranks stored episodes against a query,
// blending domain/task-type/temporal/semantic signals and applying MMR
// diversity re-ranking, per internal/retrieval.Retrieve.
func (e *Engine) RetrieveRelevantContext(ctx context.Context, query string, taskCtx types.TaskContext, taskType types.TaskType, limit int) ([]retrieval.Scored, error) {
	episodes, err := e.store.QueryEpisodesSince(ctx, time.Time{}, candidatePoolSize)
	if err != nil {
		return nil, err
	}

	var scorer retrieval.SemanticScorer
	if e.semantic.Enabled() {
		scorer = e.semantic
	}

	q := retrieval.Query{TaskDescription: query, Context: taskCtx, Limit: limit}
	return retrieval.Retrieve(ctx, episodes, q, taskType, e.cfg.RetrievalWeights, e.cfg.RelevanceHalfLife, e.cfg.DiversityLambda, scorer, time.Now()), nil
}

// RetrieveRelevantPatterns lists stored patterns, deduplicates, and ranks
// them against taskCtx.
func (e *Engine) RetrieveRelevantPatterns(ctx context.Context, taskCtx types.TaskContext, limit int) ([]*types.Pattern, error) {
	all, err := e.store.ListPatterns(ctx)
	if err != nil {
		return nil, err
	}

	ranked := pattern.Rank(pattern.Deduplicate(all), taskCtx)
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// RetrieveRelevantHeuristics lists stored heuristics and scores them against
// taskCtx per internal/retrieval.RetrieveRelevantHeuristics.
func (e *Engine) RetrieveRelevantHeuristics(ctx context.Context, taskCtx types.TaskContext, limit int) ([]*types.Heuristic, error) {
	all, err := e.store.ListHeuristics(ctx)
	if err != nil {
		return nil, err
	}
	return retrieval.RetrieveRelevantHeuristics(all, taskCtx, limit), nil
}

// GetPattern fetches a single pattern by ID. TieredStore already implements
// the cache-then-durable fallback chain internally, so the façade calls
// straight through without an extra layer.
func (e *Engine) GetPattern(ctx context.Context, patternID string) (*types.Pattern, error) {
	return e.store.GetPattern(ctx, patternID)
}
