// Package capacity implements the victim-selection policies the durable
// store consults from inside its atomic store_episode_with_capacity
// transaction (internal/storage.CapacityEnforcer). Selection never runs
// outside that transaction — enforcement is strictly tied to the write path
// that admits a new episode (spec.md §4.5).
package capacity

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// Policy selects the lowest-scoring episodes to evict when the durable
// store is at capacity. Implementations must be deterministic given the
// same candidate set so repeated runs against identical state agree.
type Policy interface {
	SelectVictims(ctx context.Context, candidates []*types.Episode, keep int) ([]string, error)
}

// LRU evicts the oldest episodes first, by StartTime.
type LRU struct{}

func (LRU) SelectVictims(_ context.Context, candidates []*types.Episode, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	if len(candidates) <= keep {
		return nil, nil
	}
	sorted := append([]*types.Episode(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].EpisodeID < sorted[j].EpisodeID
		}
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})
	toEvict := len(sorted) - keep
	victims := make([]string, 0, toEvict)
	for _, ep := range sorted[:toEvict] {
		victims = append(victims, ep.EpisodeID)
	}
	return victims, nil
}

// RelevanceWeighted evicts episodes scoring lowest on
// reward.total + recency-decay(half_life) + reference_count, ties broken by
// oldest StartTime first.
type RelevanceWeighted struct {
	HalfLife time.Duration
	Now      func() time.Time // overridable for deterministic tests; defaults to time.Now
}

func (r RelevanceWeighted) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r RelevanceWeighted) score(ep *types.Episode) float64 {
	reward := 0.0
	if ep.Reward != nil {
		reward = ep.Reward.Total
	}
	halfLife := r.HalfLife
	if halfLife <= 0 {
		halfLife = 14 * 24 * time.Hour
	}
	age := r.now().Sub(ep.StartTime)
	if age < 0 {
		age = 0
	}
	decay := math.Pow(0.5, float64(age)/float64(halfLife))
	// refCount is the number of patterns/heuristics citing this episode —
	// ep.Patterns/ep.Heuristics hold the IDs of entries whose Evidence lists
	// this episode, populated when extraction stores them. ep.AppliedPatterns
	// means something different (patterns applied while executing the
	// episode) and is never what this score is after.
	refCount := float64(len(ep.Patterns) + len(ep.Heuristics))
	return reward + decay + refCount
}

func (r RelevanceWeighted) SelectVictims(_ context.Context, candidates []*types.Episode, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	if len(candidates) <= keep {
		return nil, nil
	}
	type scored struct {
		ep    *types.Episode
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, ep := range candidates {
		ranked[i] = scored{ep: ep, score: r.score(ep)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		if !ranked[i].ep.StartTime.Equal(ranked[j].ep.StartTime) {
			return ranked[i].ep.StartTime.Before(ranked[j].ep.StartTime)
		}
		return ranked[i].ep.EpisodeID < ranked[j].ep.EpisodeID
	})
	toEvict := len(ranked) - keep
	victims := make([]string, 0, toEvict)
	for _, s := range ranked[:toEvict] {
		victims = append(victims, s.ep.EpisodeID)
	}
	return victims, nil
}

// None never evicts anything; used when MaxEpisodes is unbounded.
type None struct{}

func (None) SelectVictims(context.Context, []*types.Episode, int) ([]string, error) {
	return nil, nil
}
