package memory

import (
	"context"

	"github.com/d-o-hub/episodic-memory-engine/internal/queue"
	"github.com/d-o-hub/episodic-memory-engine/internal/storage"
)

// cacheStatsProvider is satisfied by *storage.TieredStore; GetStats type-asserts
// against it rather than widening storage.DurableStore, since a bare durable
// backend (no front-cache) has no hit/miss/eviction counters to report.
type cacheStatsProvider interface {
	CacheStats() storage.CacheStats
}

// Stats summarizes the engine's current working set and pipeline health.
type Stats struct {
	EpisodeCount       int
	PatternCount       int
	HeuristicCount     int
	InProgressEpisodes int
	Extraction         *queue.Stats
	Cache              *storage.CacheStats
}

// GetStats reports episode/pattern/heuristic counts from durable storage
// plus the async extraction queue's own counters, if async extraction is
// enabled.
func (e *Engine) GetStats(ctx context.Context) (*Stats, error) {
	episodeCount, err := e.store.CountEpisodes(ctx)
	if err != nil {
		return nil, err
	}
	patterns, err := e.store.ListPatterns(ctx)
	if err != nil {
		return nil, err
	}
	heuristics, err := e.store.ListHeuristics(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	inProgress := 0
	for _, ep := range e.episodes {
		if !ep.IsComplete() {
			inProgress++
		}
	}
	e.mu.RUnlock()

	stats := &Stats{
		EpisodeCount:       episodeCount,
		PatternCount:       len(patterns),
		HeuristicCount:     len(heuristics),
		InProgressEpisodes: inProgress,
	}
	if e.extractionQueue != nil {
		s := e.extractionQueue.Stats()
		stats.Extraction = &s
	}
	if cp, ok := e.store.(cacheStatsProvider); ok {
		cs := cp.CacheStats()
		stats.Cache = &cs
	}
	return stats, nil
}
