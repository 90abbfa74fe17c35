package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/storage"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.NewSQLiteStore(path, nil, "", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.QualityThreshold = 0.1
	e := New(cfg, store, nil)
	return e
}

func runSuccessfulEpisode(t *testing.T, e *Engine, domain string) string {
	t.Helper()
	id := e.StartEpisode("implement REST API authentication", types.TaskContext{Domain: domain, Language: "go"}, types.TaskCodeGeneration)
	steps := []types.ExecutionStep{
		{Tool: "editor", Action: "decided to use JWT instead of sessions", Result: &types.StepResult{Kind: types.StepSuccess}},
		{Tool: "compiler", Action: "build", Result: &types.StepResult{Kind: types.StepError}},
		{Tool: "editor", Action: "fix syntax", Result: &types.StepResult{Kind: types.StepSuccess}},
		{Tool: "test-runner", Action: "run tests", Result: &types.StepResult{Kind: types.StepSuccess}},
		{Tool: "editor", Action: "cleanup", Result: &types.StepResult{Kind: types.StepSuccess}},
	}
	for _, s := range steps {
		if err := e.LogStep(id, s); err != nil {
			t.Fatalf("LogStep: %v", err)
		}
	}
	outcome := types.Outcome{Kind: types.OutcomeSuccess, Verdict: "all tests passing"}
	if err := e.CompleteEpisode(context.Background(), id, outcome); err != nil {
		t.Fatalf("CompleteEpisode: %v", err)
	}
	return id
}

func TestStartLogCompleteRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	id := runSuccessfulEpisode(t, e, "web")

	got, err := e.GetEpisode(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if !got.IsComplete() {
		t.Fatal("expected episode to be complete")
	}
	if got.Reward == nil || got.Reward.Total <= 0 {
		t.Errorf("expected positive reward, got %+v", got.Reward)
	}
	if got.Reflection == nil || len(got.Reflection.Successes) == 0 {
		t.Error("expected non-empty reflection successes")
	}
	if got.SalientFeatures == nil {
		t.Error("expected salient features to be extracted")
	}
}

func TestCompleteEpisodeRejectsBelowQualityThreshold(t *testing.T) {
	e := newTestEngine(t)
	e.quality.Threshold = 0.99

	id := e.StartEpisode("trivial task", types.TaskContext{Domain: "misc"}, types.TaskOther)
	outcome := types.Outcome{Kind: types.OutcomeSuccess}
	err := e.CompleteEpisode(context.Background(), id, outcome)
	if err == nil {
		t.Fatal("expected quality gate to reject a low-quality episode")
	}

	rejected, err := e.GetEpisode(context.Background(), id)
	if err != nil {
		t.Fatalf("expected rejected episode to still be retrievable, got error: %v", err)
	}
	if rejected.IsComplete() {
		t.Fatal("rejected episode must not be reported complete, per the quality gate's rejection-removes-all-trace contract")
	}
	if rejected.Outcome != nil {
		t.Fatal("rejected episode must not carry an outcome")
	}
}

func TestCompleteEpisodeNotFound(t *testing.T) {
	e := newTestEngine(t)
	err := e.CompleteEpisode(context.Background(), "missing-id", types.Outcome{Kind: types.OutcomeSuccess})
	if err == nil {
		t.Fatal("expected not-found error for unknown episode")
	}
}

func TestLogStepBatching(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.Batch = &config.BatchConfig{MaxStepsPerFlush: 2, FlushInterval: time.Hour}

	id := e.StartEpisode("batched task", types.TaskContext{Domain: "web"}, types.TaskCodeGeneration)
	if err := e.LogStep(id, types.ExecutionStep{Tool: "editor", Action: "a", Result: &types.StepResult{Kind: types.StepSuccess}}); err != nil {
		t.Fatalf("LogStep: %v", err)
	}

	e.mu.RLock()
	flushed := len(e.episodes[id].Steps)
	buffered := len(e.buffers[id])
	e.mu.RUnlock()
	if flushed != 0 || buffered != 1 {
		t.Fatalf("expected step buffered before threshold, got flushed=%d buffered=%d", flushed, buffered)
	}

	if err := e.LogStep(id, types.ExecutionStep{Tool: "editor", Action: "b", Result: &types.StepResult{Kind: types.StepSuccess}}); err != nil {
		t.Fatalf("LogStep: %v", err)
	}
	e.mu.RLock()
	flushed = len(e.episodes[id].Steps)
	e.mu.RUnlock()
	if flushed != 2 {
		t.Fatalf("expected buffer flushed at threshold, got %d steps", flushed)
	}
}

func TestGetEpisodeNotFound(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.GetEpisode(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown episode")
	}
}

func TestRetrieveRelevantContextAfterCompletion(t *testing.T) {
	e := newTestEngine(t)
	runSuccessfulEpisode(t, e, "web")

	results, err := e.RetrieveRelevantContext(context.Background(), "implement REST API authentication", types.TaskContext{Domain: "web", Language: "go"}, types.TaskCodeGeneration, 5)
	if err != nil {
		t.Fatalf("RetrieveRelevantContext: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one retrieved episode")
	}
}

func TestGetStatsCountsStoredEpisode(t *testing.T) {
	e := newTestEngine(t)
	runSuccessfulEpisode(t, e, "web")

	stats, err := e.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EpisodeCount != 1 {
		t.Errorf("expected 1 stored episode, got %d", stats.EpisodeCount)
	}
}

func TestPatternOccurrenceAccumulatesAcrossEpisodes(t *testing.T) {
	e := newTestEngine(t)
	runSuccessfulEpisode(t, e, "web")
	runSuccessfulEpisode(t, e, "web")

	patterns, err := e.store.ListPatterns(context.Background())
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}

	var maxOccurrence int
	for _, p := range patterns {
		if p.OccurrenceCount > maxOccurrence {
			maxOccurrence = p.OccurrenceCount
		}
	}
	if maxOccurrence < 2 {
		t.Errorf("expected a pattern mined identically from both episodes to accumulate occurrence_count >= 2, got max %d", maxOccurrence)
	}
}
