package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path, nil, "", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEpisode() *types.Episode {
	return &types.Episode{
		EpisodeID:       types.NewID(),
		TaskType:        types.TaskDebugging,
		TaskDescription: "fix the bug",
		Context:         types.TaskContext{Domain: "backend", Complexity: types.ComplexityModerate},
		StartTime:       time.Now().Add(-time.Minute),
		EndTime:         time.Now(),
		Outcome:         &types.Outcome{Kind: types.OutcomeSuccess},
		Reward:          &types.RewardScore{Total: 1.2},
	}
}

func TestStoreAndGetEpisode(t *testing.T) {
	s := setupTestStore(t)
	ep := sampleEpisode()
	ctx := context.Background()
	if err := s.StoreEpisode(ctx, ep); err != nil {
		t.Fatalf("StoreEpisode: %v", err)
	}
	got, err := s.GetEpisode(ctx, ep.EpisodeID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.TaskDescription != ep.TaskDescription {
		t.Errorf("task description = %q, want %q", got.TaskDescription, ep.TaskDescription)
	}
}

func TestGetEpisodeNotFound(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.GetEpisode(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing episode")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for compressibility")
	for _, algo := range []string{AlgoGzip, AlgoZstd, AlgoLZ4} {
		compressed, err := Compress(payload, algo, 1)
		if err != nil {
			t.Fatalf("Compress(%s): %v", algo, err)
		}
		decompressed, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress(%s): %v", algo, err)
		}
		if string(decompressed) != string(payload) {
			t.Errorf("%s round trip mismatch", algo)
		}
	}
}

func TestDecompressUncompressedPassthrough(t *testing.T) {
	payload := []byte("not compressed at all")
	out, err := Decompress(payload)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if string(out) != string(payload) {
		t.Errorf("expected passthrough, got %q", out)
	}
}

func TestCompressBelowMinSizeSkipped(t *testing.T) {
	payload := []byte("short")
	out, err := Compress(payload, AlgoGzip, 1000)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if string(out) != string(payload) {
		t.Error("expected payload below min size to pass through uncompressed")
	}
}

func TestCacheStoreWriteThroughReadBack(t *testing.T) {
	c := NewCacheStore()
	ep := sampleEpisode()
	ctx := context.Background()
	if err := c.StoreEpisode(ctx, ep); err != nil {
		t.Fatalf("StoreEpisode: %v", err)
	}
	got, err := c.GetEpisode(ctx, ep.EpisodeID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got == ep {
		t.Error("expected a clone, not the same pointer")
	}
	if got.EpisodeID != ep.EpisodeID {
		t.Errorf("episode_id mismatch")
	}
}

func TestQueryEpisodesSinceOrdering(t *testing.T) {
	c := NewCacheStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		ep := sampleEpisode()
		ep.StartTime = base.Add(time.Duration(i) * time.Minute)
		if err := c.StoreEpisode(ctx, ep); err != nil {
			t.Fatalf("StoreEpisode: %v", err)
		}
	}
	out, err := c.QueryEpisodesSince(ctx, base, 0)
	if err != nil {
		t.Fatalf("QueryEpisodesSince: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("expected 5 episodes, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].StartTime.Before(out[i-1].StartTime) {
			t.Errorf("episodes not in ascending time order at index %d", i)
		}
	}
}

type fakeEnforcer struct {
	victims []string
}

func (f *fakeEnforcer) SelectVictims(_ context.Context, candidates []*types.Episode, maxEpisodes int) ([]string, error) {
	return f.victims, nil
}

func TestStoreEpisodeWithCapacityEvicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	first := sampleEpisode()
	if err := s.StoreEpisode(ctx, first); err != nil {
		t.Fatalf("seed StoreEpisode: %v", err)
	}
	second := sampleEpisode()
	enforcer := &fakeEnforcer{victims: []string{first.EpisodeID}}
	evicted, err := s.StoreEpisodeWithCapacity(ctx, second, 1, enforcer)
	if err != nil {
		t.Fatalf("StoreEpisodeWithCapacity: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != first.EpisodeID {
		t.Fatalf("expected %s evicted, got %v", first.EpisodeID, evicted)
	}
	if _, err := s.GetEpisode(ctx, first.EpisodeID); err == nil {
		t.Error("expected evicted episode to be gone")
	}
	got, err := s.GetEpisode(ctx, second.EpisodeID)
	if err != nil || got == nil {
		t.Fatalf("expected new episode to be stored, err=%v", err)
	}
}

func TestTieredStoreReadThroughBackpopulates(t *testing.T) {
	durable := setupTestStore(t)
	cache := NewCacheStore()
	ts, err := NewTieredStore(durable, cache, 0, nil)
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	ep := sampleEpisode()
	ctx := context.Background()
	if err := durable.StoreEpisode(ctx, ep); err != nil {
		t.Fatalf("seed durable: %v", err)
	}
	if _, err := cache.GetEpisode(ctx, ep.EpisodeID); err == nil {
		t.Fatal("expected cache miss before read-through")
	}
	got, err := ts.GetEpisode(ctx, ep.EpisodeID)
	if err != nil {
		t.Fatalf("TieredStore.GetEpisode: %v", err)
	}
	if got.EpisodeID != ep.EpisodeID {
		t.Errorf("episode_id mismatch")
	}
	if _, err := cache.GetEpisode(ctx, ep.EpisodeID); err != nil {
		t.Error("expected cache to be back-populated after read-through")
	}
}

func TestTieredStoreCacheStatsTracksHitsMissesEvictions(t *testing.T) {
	durable := setupTestStore(t)
	cache := NewCacheStore()
	ts, err := NewTieredStore(durable, cache, 1, nil)
	if err != nil {
		t.Fatalf("NewTieredStore: %v", err)
	}
	ctx := context.Background()

	epA := sampleEpisode()
	if err := ts.StoreEpisode(ctx, epA); err != nil {
		t.Fatalf("StoreEpisode: %v", err)
	}

	if _, err := ts.GetEpisode(ctx, epA.EpisodeID); err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if stats := ts.CacheStats(); stats.Hits != 1 {
		t.Errorf("expected 1 hit after re-fetching a just-stored episode, got %+v", stats)
	}

	if _, err := ts.GetEpisode(ctx, "missing-id"); err == nil {
		t.Fatal("expected not-found error for unknown episode")
	}
	if stats := ts.CacheStats(); stats.Misses != 1 {
		t.Errorf("expected 1 miss after fetching an unknown episode, got %+v", stats)
	}

	epB := sampleEpisode()
	epB.EpisodeID = "episode-b"
	if err := ts.StoreEpisode(ctx, epB); err != nil {
		t.Fatalf("StoreEpisode: %v", err)
	}
	if stats := ts.CacheStats(); stats.Evictions != 1 {
		t.Errorf("expected storing a second episode into a size-1 LRU to evict the first, got %+v", stats)
	}
}
