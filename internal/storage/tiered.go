package storage

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/d-o-hub/episodic-memory-engine/internal/memerr"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// CacheStats is a point-in-time snapshot of the LRU front-cache's activity,
// exposed per spec.md §4.1 ("its metrics (hits, misses, evictions) are
// exposed").
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// TieredStore composes a durable backend and a cache backend behind the
// Store interface: writes go cache-then-durable (write-through), reads try
// the cache first and fall back to durable, back-populating the cache on a
// miss (read-through). An LRU in front of GetEpisode bounds cache memory
// independently of how many episodes the cache tier itself holds, and a
// query-result cache — invalidated on every episode write, delete, or
// eviction — answers repeated QueryEpisodesSince calls without re-scanning.
// QueryEpisodesByMetadata is not cached and always queries the durable tier.
type TieredStore struct {
	durable DurableStore
	cache   Store
	logger  *zap.Logger

	lru *lru.Cache[string, *types.Episode]

	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	cacheEvictions atomic.Int64

	queryMu    sync.Mutex
	queryCache map[string][]*types.Episode
}

// NewTieredStore constructs a write-through/read-through store. lruSize <= 0
// disables the LRU front-cache (GetEpisode then always consults the cache
// tier directly).
func NewTieredStore(durable DurableStore, cache Store, lruSize int, logger *zap.Logger) (*TieredStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ts := &TieredStore{durable: durable, cache: cache, logger: logger, queryCache: make(map[string][]*types.Episode)}
	if lruSize > 0 {
		c, err := lru.NewWithEvict[string, *types.Episode](lruSize, func(_ string, _ *types.Episode) {
			ts.cacheEvictions.Add(1)
		})
		if err != nil {
			return nil, memerr.StorageErrorf(err, "construct lru cache of size %d", lruSize)
		}
		ts.lru = c
	}
	return ts, nil
}

// CacheStats returns a snapshot of the LRU front-cache's hit/miss/eviction
// counters. Zero-valued when the front-cache is disabled (lruSize <= 0).
func (t *TieredStore) CacheStats() CacheStats {
	return CacheStats{
		Hits:      t.cacheHits.Load(),
		Misses:    t.cacheMisses.Load(),
		Evictions: t.cacheEvictions.Load(),
	}
}

func (t *TieredStore) invalidateQueryCache() {
	t.queryMu.Lock()
	t.queryCache = make(map[string][]*types.Episode)
	t.queryMu.Unlock()
}

func (t *TieredStore) StoreEpisode(ctx context.Context, ep *types.Episode) error {
	if err := t.cache.StoreEpisode(ctx, ep); err != nil {
		t.logger.Warn("cache write failed during write-through", zap.String("episode_id", ep.EpisodeID), zap.Error(err))
	}
	if err := t.durable.StoreEpisode(ctx, ep); err != nil {
		return err
	}
	if t.lru != nil {
		t.lru.Add(ep.EpisodeID, ep.Clone())
	}
	t.invalidateQueryCache()
	return nil
}

// StoreEpisodeWithCapacity delegates to the durable backend's atomic path,
// then mirrors the resulting state (insertion plus any evictions) into the
// cache tier and LRU so both tiers stay consistent with the durable store.
func (t *TieredStore) StoreEpisodeWithCapacity(ctx context.Context, ep *types.Episode, maxEpisodes int, enforcer CapacityEnforcer) ([]string, error) {
	evicted, err := t.durable.StoreEpisodeWithCapacity(ctx, ep, maxEpisodes, enforcer)
	if err != nil {
		return nil, err
	}
	for _, victimID := range evicted {
		_ = t.cache.DeleteEpisode(ctx, victimID)
		if t.lru != nil {
			t.lru.Remove(victimID)
		}
	}
	if err := t.cache.StoreEpisode(ctx, ep); err != nil {
		t.logger.Warn("cache write failed after capacity-enforced store", zap.String("episode_id", ep.EpisodeID), zap.Error(err))
	}
	if t.lru != nil {
		t.lru.Add(ep.EpisodeID, ep.Clone())
	}
	t.invalidateQueryCache()
	return evicted, nil
}

func (t *TieredStore) GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error) {
	if t.lru != nil {
		if ep, ok := t.lru.Get(episodeID); ok {
			t.cacheHits.Add(1)
			return ep.Clone(), nil
		}
		t.cacheMisses.Add(1)
	}
	ep, err := t.cache.GetEpisode(ctx, episodeID)
	if err == nil {
		if t.lru != nil {
			t.lru.Add(episodeID, ep.Clone())
		}
		return ep, nil
	}
	if !memerr.Is(err, memerr.NotFound) {
		t.logger.Warn("cache read failed during read-through", zap.String("episode_id", episodeID), zap.Error(err))
	}
	ep, err = t.durable.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if werr := t.cache.StoreEpisode(ctx, ep); werr != nil {
		t.logger.Warn("cache back-populate failed", zap.String("episode_id", episodeID), zap.Error(werr))
	}
	if t.lru != nil {
		t.lru.Add(episodeID, ep.Clone())
	}
	return ep, nil
}

func (t *TieredStore) DeleteEpisode(ctx context.Context, episodeID string) error {
	if t.lru != nil {
		t.lru.Remove(episodeID)
	}
	if err := t.cache.DeleteEpisode(ctx, episodeID); err != nil {
		t.logger.Warn("cache delete failed", zap.String("episode_id", episodeID), zap.Error(err))
	}
	t.invalidateQueryCache()
	return t.durable.DeleteEpisode(ctx, episodeID)
}

func (t *TieredStore) QueryEpisodesSince(ctx context.Context, since time.Time, limit int) ([]*types.Episode, error) {
	key := "since:" + since.UTC().Format(time.RFC3339Nano) + ":" + strconv.Itoa(limit)
	if cached, ok := t.getQueryCache(key); ok {
		return cached, nil
	}
	out, err := t.durable.QueryEpisodesSince(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	t.setQueryCache(key, out)
	return out, nil
}

func (t *TieredStore) QueryEpisodesByMetadata(ctx context.Context, filter EpisodeFilter) ([]*types.Episode, error) {
	out, err := t.durable.QueryEpisodesByMetadata(ctx, filter)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TieredStore) getQueryCache(key string) ([]*types.Episode, bool) {
	t.queryMu.Lock()
	defer t.queryMu.Unlock()
	v, ok := t.queryCache[key]
	return v, ok
}

func (t *TieredStore) setQueryCache(key string, v []*types.Episode) {
	t.queryMu.Lock()
	defer t.queryMu.Unlock()
	t.queryCache[key] = v
}

func (t *TieredStore) CountEpisodes(ctx context.Context) (int, error) {
	return t.durable.CountEpisodes(ctx)
}

func (t *TieredStore) StorePattern(ctx context.Context, p *types.Pattern) error {
	if err := t.cache.StorePattern(ctx, p); err != nil {
		t.logger.Warn("cache write failed", zap.String("pattern_id", p.PatternID), zap.Error(err))
	}
	return t.durable.StorePattern(ctx, p)
}

func (t *TieredStore) GetPattern(ctx context.Context, patternID string) (*types.Pattern, error) {
	if p, err := t.cache.GetPattern(ctx, patternID); err == nil {
		return p, nil
	}
	p, err := t.durable.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	_ = t.cache.StorePattern(ctx, p)
	return p, nil
}

func (t *TieredStore) ListPatterns(ctx context.Context) ([]*types.Pattern, error) {
	return t.durable.ListPatterns(ctx)
}

func (t *TieredStore) DeletePattern(ctx context.Context, patternID string) error {
	_ = t.cache.DeletePattern(ctx, patternID)
	return t.durable.DeletePattern(ctx, patternID)
}

func (t *TieredStore) StoreHeuristic(ctx context.Context, h *types.Heuristic) error {
	if err := t.cache.StoreHeuristic(ctx, h); err != nil {
		t.logger.Warn("cache write failed", zap.String("heuristic_id", h.ID), zap.Error(err))
	}
	return t.durable.StoreHeuristic(ctx, h)
}

func (t *TieredStore) GetHeuristic(ctx context.Context, heuristicID string) (*types.Heuristic, error) {
	if h, err := t.cache.GetHeuristic(ctx, heuristicID); err == nil {
		return h, nil
	}
	h, err := t.durable.GetHeuristic(ctx, heuristicID)
	if err != nil {
		return nil, err
	}
	_ = t.cache.StoreHeuristic(ctx, h)
	return h, nil
}

func (t *TieredStore) ListHeuristics(ctx context.Context) ([]*types.Heuristic, error) {
	return t.durable.ListHeuristics(ctx)
}

func (t *TieredStore) StoreEpisodeSummary(ctx context.Context, s *types.EpisodeSummary) error {
	if err := t.cache.StoreEpisodeSummary(ctx, s); err != nil {
		t.logger.Warn("cache write failed", zap.String("episode_id", s.EpisodeID), zap.Error(err))
	}
	return t.durable.StoreEpisodeSummary(ctx, s)
}

func (t *TieredStore) GetEpisodeSummary(ctx context.Context, episodeID string) (*types.EpisodeSummary, error) {
	if s, err := t.cache.GetEpisodeSummary(ctx, episodeID); err == nil {
		return s, nil
	}
	s, err := t.durable.GetEpisodeSummary(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	_ = t.cache.StoreEpisodeSummary(ctx, s)
	return s, nil
}

func (t *TieredStore) DeleteEpisodeSummary(ctx context.Context, episodeID string) error {
	_ = t.cache.DeleteEpisodeSummary(ctx, episodeID)
	return t.durable.DeleteEpisodeSummary(ctx, episodeID)
}

func (t *TieredStore) StoreRelationship(ctx context.Context, r *types.EpisodeRelationship) error {
	if err := t.cache.StoreRelationship(ctx, r); err != nil {
		t.logger.Warn("cache write failed", zap.String("relationship_id", r.RelationshipID), zap.Error(err))
	}
	return t.durable.StoreRelationship(ctx, r)
}

func (t *TieredStore) ListRelationships(ctx context.Context, episodeID string) ([]*types.EpisodeRelationship, error) {
	return t.durable.ListRelationships(ctx, episodeID)
}

func (t *TieredStore) Close() error {
	cacheErr := t.cache.Close()
	durableErr := t.durable.Close()
	if durableErr != nil {
		return durableErr
	}
	return cacheErr
}
