package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func episodeAt(id string, t time.Time) *types.Episode {
	return &types.Episode{EpisodeID: id, StartTime: t}
}

func TestLRUEvictsOldestFirst(t *testing.T) {
	now := time.Now()
	candidates := []*types.Episode{
		episodeAt("a", now.Add(-3*time.Hour)),
		episodeAt("b", now.Add(-1*time.Hour)),
		episodeAt("c", now.Add(-2*time.Hour)),
	}
	victims, err := LRU{}.SelectVictims(context.Background(), candidates, 2)
	if err != nil {
		t.Fatalf("SelectVictims: %v", err)
	}
	if len(victims) != 1 || victims[0] != "a" {
		t.Errorf("expected [a], got %v", victims)
	}
}

func TestLRUNoEvictionUnderCapacity(t *testing.T) {
	now := time.Now()
	candidates := []*types.Episode{episodeAt("a", now)}
	victims, err := LRU{}.SelectVictims(context.Background(), candidates, 5)
	if err != nil {
		t.Fatalf("SelectVictims: %v", err)
	}
	if len(victims) != 0 {
		t.Errorf("expected no eviction, got %v", victims)
	}
}

func TestRelevanceWeightedPrefersLowRewardOldEpisodes(t *testing.T) {
	fixedNow := time.Now()
	policy := RelevanceWeighted{HalfLife: 24 * time.Hour, Now: func() time.Time { return fixedNow }}

	low := episodeAt("low", fixedNow.Add(-30*24*time.Hour))
	low.Reward = &types.RewardScore{Total: 0.1}

	high := episodeAt("high", fixedNow.Add(-time.Hour))
	high.Reward = &types.RewardScore{Total: 1.8}

	victims, err := policy.SelectVictims(context.Background(), []*types.Episode{low, high}, 1)
	if err != nil {
		t.Fatalf("SelectVictims: %v", err)
	}
	if len(victims) != 1 || victims[0] != "low" {
		t.Errorf("expected [low] evicted, got %v", victims)
	}
}

func TestNonePolicyNeverEvicts(t *testing.T) {
	candidates := []*types.Episode{episodeAt("a", time.Now())}
	victims, err := None{}.SelectVictims(context.Background(), candidates, 0)
	if err != nil {
		t.Fatalf("SelectVictims: %v", err)
	}
	if len(victims) != 0 {
		t.Errorf("expected no eviction from None policy, got %v", victims)
	}
}
