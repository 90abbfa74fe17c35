package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/d-o-hub/episodic-memory-engine/internal/memerr"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// episodeItem orders cached episodes by start time for google/btree, giving
// QueryEpisodesSince an ordered-scan implementation instead of a full-table
// filter-then-sort — the same structural reason google/btree backs etcd's
// in-memory keyspace in the pack's kubernaut dependency chain.
type episodeItem struct {
	startTimeUnixNano int64
	episodeID         string
	episode           *types.Episode
}

func (a episodeItem) Less(than btree.Item) bool {
	b := than.(episodeItem)
	if a.startTimeUnixNano != b.startTimeUnixNano {
		return a.startTimeUnixNano < b.startTimeUnixNano
	}
	return a.episodeID < b.episodeID
}

// CacheStore is the fast local KV cache tier: an in-process, ordered-by-time
// store with no durability guarantee. It implements the same Store contract
// as SQLiteStore so the façade can write-through and read-through uniformly.
type CacheStore struct {
	mu sync.RWMutex

	byTime    *btree.BTree
	episodes  map[string]*types.Episode
	patterns  map[string]*types.Pattern
	heuristics map[string]*types.Heuristic
	summaries map[string]*types.EpisodeSummary
	relationships map[string][]*types.EpisodeRelationship
}

// NewCacheStore constructs an empty cache tier.
func NewCacheStore() *CacheStore {
	return &CacheStore{
		byTime:        btree.New(32),
		episodes:      make(map[string]*types.Episode),
		patterns:      make(map[string]*types.Pattern),
		heuristics:    make(map[string]*types.Heuristic),
		summaries:     make(map[string]*types.EpisodeSummary),
		relationships: make(map[string][]*types.EpisodeRelationship),
	}
}

func (c *CacheStore) Close() error { return nil }

func (c *CacheStore) StoreEpisode(_ context.Context, ep *types.Episode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.episodes[ep.EpisodeID]; ok {
		c.byTime.Delete(episodeItem{startTimeUnixNano: existing.StartTime.UnixNano(), episodeID: existing.EpisodeID})
	}
	clone := ep.Clone()
	c.episodes[ep.EpisodeID] = clone
	c.byTime.ReplaceOrInsert(episodeItem{startTimeUnixNano: clone.StartTime.UnixNano(), episodeID: clone.EpisodeID, episode: clone})
	return nil
}

func (c *CacheStore) GetEpisode(_ context.Context, episodeID string) (*types.Episode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.episodes[episodeID]
	if !ok {
		return nil, memerr.NotFoundf("episode %s", episodeID)
	}
	return ep.Clone(), nil
}

func (c *CacheStore) DeleteEpisode(_ context.Context, episodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.episodes[episodeID]; ok {
		c.byTime.Delete(episodeItem{startTimeUnixNano: existing.StartTime.UnixNano(), episodeID: existing.EpisodeID})
		delete(c.episodes, episodeID)
	}
	delete(c.summaries, episodeID)
	return nil
}

func (c *CacheStore) QueryEpisodesSince(_ context.Context, since time.Time, limit int) ([]*types.Episode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*types.Episode
	pivot := episodeItem{startTimeUnixNano: since.UnixNano()}
	c.byTime.AscendGreaterOrEqual(pivot, func(item btree.Item) bool {
		it := item.(episodeItem)
		out = append(out, it.episode.Clone())
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

func (c *CacheStore) QueryEpisodesByMetadata(_ context.Context, filter EpisodeFilter) ([]*types.Episode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*types.Episode
	c.byTime.Descend(func(item btree.Item) bool {
		it := item.(episodeItem)
		ep := it.episode
		if filter.Domain != "" && ep.Context.Domain != filter.Domain {
			return true
		}
		if filter.TaskType != "" && ep.TaskType != filter.TaskType {
			return true
		}
		if !filter.Since.IsZero() && ep.StartTime.Before(filter.Since) {
			return true
		}
		if !filter.Until.IsZero() && ep.StartTime.After(filter.Until) {
			return true
		}
		if !episodeMatchesTags(ep, filter.Tags) {
			return true
		}
		if !episodeMatchesMetadata(ep, filter.Metadata) {
			return true
		}
		out = append(out, ep.Clone())
		return filter.Limit <= 0 || len(out) < filter.Limit
	})
	return out, nil
}

func (c *CacheStore) CountEpisodes(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.episodes), nil
}

func (c *CacheStore) StorePattern(_ context.Context, p *types.Pattern) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.patterns[p.PatternID] = &cp
	return nil
}

func (c *CacheStore) GetPattern(_ context.Context, patternID string) (*types.Pattern, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.patterns[patternID]
	if !ok {
		return nil, memerr.NotFoundf("pattern %s", patternID)
	}
	cp := *p
	return &cp, nil
}

func (c *CacheStore) ListPatterns(_ context.Context) ([]*types.Pattern, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Pattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (c *CacheStore) DeletePattern(_ context.Context, patternID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.patterns, patternID)
	return nil
}

func (c *CacheStore) StoreHeuristic(_ context.Context, h *types.Heuristic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := *h
	c.heuristics[h.ID] = &ch
	return nil
}

func (c *CacheStore) GetHeuristic(_ context.Context, heuristicID string) (*types.Heuristic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.heuristics[heuristicID]
	if !ok {
		return nil, memerr.NotFoundf("heuristic %s", heuristicID)
	}
	ch := *h
	return &ch, nil
}

func (c *CacheStore) ListHeuristics(_ context.Context) ([]*types.Heuristic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Heuristic, 0, len(c.heuristics))
	for _, h := range c.heuristics {
		ch := *h
		out = append(out, &ch)
	}
	return out, nil
}

func (c *CacheStore) StoreEpisodeSummary(_ context.Context, s *types.EpisodeSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs := *s
	c.summaries[s.EpisodeID] = &cs
	return nil
}

func (c *CacheStore) GetEpisodeSummary(_ context.Context, episodeID string) (*types.EpisodeSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.summaries[episodeID]
	if !ok {
		return nil, memerr.NotFoundf("episode summary %s", episodeID)
	}
	cs := *s
	return &cs, nil
}

func (c *CacheStore) DeleteEpisodeSummary(_ context.Context, episodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.summaries, episodeID)
	return nil
}

func (c *CacheStore) StoreRelationship(_ context.Context, r *types.EpisodeRelationship) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cr := *r
	c.relationships[r.FromEpisodeID] = append(c.relationships[r.FromEpisodeID], &cr)
	if r.ToEpisodeID != r.FromEpisodeID {
		c.relationships[r.ToEpisodeID] = append(c.relationships[r.ToEpisodeID], &cr)
	}
	return nil
}

func (c *CacheStore) ListRelationships(_ context.Context, episodeID string) ([]*types.EpisodeRelationship, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]*types.EpisodeRelationship(nil), c.relationships[episodeID]...)
	return out, nil
}
