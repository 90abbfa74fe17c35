// Package storage defines the dual-tier storage substrate: a single
// abstract contract implemented by a durable relational backend and a fast
// local cache, plus the write-through/read-through orchestration that sits
// in front of both. Callers (internal/memory) talk only to the Store
// interface; which tier actually served a read is an implementation detail.
package storage

import (
	"context"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// EpisodeFilter narrows a query_episodes_by_metadata-style scan.
type EpisodeFilter struct {
	Domain    string
	TaskType  types.TaskType
	Tags      []string
	Since     time.Time
	Until     time.Time
	Metadata  map[string]string
	Limit     int
}

// Store is the single abstract storage contract. Both the durable backend
// and the cache backend implement it so the façade can write-through and
// read-through without branching on which tier it is talking to.
type Store interface {
	StoreEpisode(ctx context.Context, ep *types.Episode) error
	GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error)
	DeleteEpisode(ctx context.Context, episodeID string) error
	QueryEpisodesSince(ctx context.Context, since time.Time, limit int) ([]*types.Episode, error)
	QueryEpisodesByMetadata(ctx context.Context, filter EpisodeFilter) ([]*types.Episode, error)
	CountEpisodes(ctx context.Context) (int, error)

	StorePattern(ctx context.Context, p *types.Pattern) error
	GetPattern(ctx context.Context, patternID string) (*types.Pattern, error)
	ListPatterns(ctx context.Context) ([]*types.Pattern, error)
	DeletePattern(ctx context.Context, patternID string) error

	StoreHeuristic(ctx context.Context, h *types.Heuristic) error
	GetHeuristic(ctx context.Context, heuristicID string) (*types.Heuristic, error)
	ListHeuristics(ctx context.Context) ([]*types.Heuristic, error)

	StoreEpisodeSummary(ctx context.Context, s *types.EpisodeSummary) error
	GetEpisodeSummary(ctx context.Context, episodeID string) (*types.EpisodeSummary, error)
	DeleteEpisodeSummary(ctx context.Context, episodeID string) error

	StoreRelationship(ctx context.Context, r *types.EpisodeRelationship) error
	ListRelationships(ctx context.Context, episodeID string) ([]*types.EpisodeRelationship, error)

	Close() error
}

// CapacityEnforcer selects eviction victims when a durable store is asked to
// admit an episode while at capacity. Implemented by internal/capacity;
// storage depends only on this narrow interface to avoid an import cycle.
type CapacityEnforcer interface {
	// SelectVictims returns the episode IDs to evict so that inserting one
	// more episode keeps the store at or under maxEpisodes.
	SelectVictims(ctx context.Context, candidates []*types.Episode, maxEpisodes int) ([]string, error)
}

// DurableStore is the relational backend's full interface: everything Store
// has, plus the atomic capacity-enforcing write path that only makes sense
// against a transactional backend.
type DurableStore interface {
	Store
	// StoreEpisodeWithCapacity performs, in one transaction: count existing
	// episodes, ask the enforcer for victims if at capacity, delete victims
	// and their summaries, insert the new episode, update count metadata.
	// It fails atomically — no partial application is ever observable.
	StoreEpisodeWithCapacity(ctx context.Context, ep *types.Episode, maxEpisodes int, enforcer CapacityEnforcer) (evicted []string, err error)
}
