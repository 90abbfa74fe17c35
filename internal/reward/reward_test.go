package reward

import (
	"testing"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func successEpisode(domain string, steps int, duration time.Duration) *types.Episode {
	ep := &types.Episode{
		Context:   types.TaskContext{Domain: domain, Complexity: types.ComplexityModerate},
		StartTime: time.Now().Add(-duration),
		EndTime:   time.Now(),
		Outcome:   &types.Outcome{Kind: types.OutcomeSuccess},
	}
	for i := 0; i < steps; i++ {
		ep.Steps = append(ep.Steps, types.ExecutionStep{
			StepNumber: i + 1,
			Tool:       "tool",
			Action:     "act",
			Result:     &types.StepResult{Kind: types.StepSuccess},
		})
	}
	return ep
}

func TestCalculateFallsBackWithoutStats(t *testing.T) {
	calc := NewCalculator()
	ep := successEpisode("new-domain", 5, 20*time.Second)
	reward := calc.Calculate(ep, nil)
	if reward.Base != 1.0 {
		t.Errorf("base = %v, want 1.0", reward.Base)
	}
	if reward.Efficiency <= 0 {
		t.Errorf("efficiency = %v, want > 0", reward.Efficiency)
	}
}

func TestCalculateUnreliableStatsFallsBack(t *testing.T) {
	calc := NewCalculator()
	ep := successEpisode("test-domain", 5, 20*time.Second)
	stats := &DomainStats{EpisodeCount: 2, P50Duration: 25, P50StepCount: 7}
	reward := calc.Calculate(ep, stats)
	if reward.Base != 1.0 {
		t.Errorf("base = %v, want 1.0", reward.Base)
	}
}

func TestCalculateAdaptiveBetterThanMedian(t *testing.T) {
	calc := NewCalculator()
	ep := successEpisode("mature-domain", 20, 50*time.Second)
	stats := &DomainStats{EpisodeCount: 50, P50Duration: 100, P50StepCount: 30}
	reward := calc.Calculate(ep, stats)
	if reward.Efficiency <= 0.9 {
		t.Errorf("expected efficiency > 0.9 for better-than-median run, got %v", reward.Efficiency)
	}
}

func TestComplexityBonusOrdering(t *testing.T) {
	calc := NewCalculator()
	simple := successEpisode("d", 3, time.Second)
	simple.Context.Complexity = types.ComplexitySimple
	complex := successEpisode("d", 3, time.Second)
	complex.Context.Complexity = types.ComplexityComplex

	rSimple := calc.Calculate(simple, nil)
	rComplex := calc.Calculate(complex, nil)
	if rComplex.ComplexityBonus <= rSimple.ComplexityBonus {
		t.Errorf("expected complex bonus %v > simple bonus %v", rComplex.ComplexityBonus, rSimple.ComplexityBonus)
	}
}

func TestTotalClampedByFormula(t *testing.T) {
	calc := NewCalculator()
	ep := successEpisode("d", 3, time.Second)
	ep.Context.Complexity = types.ComplexityComplex
	ep.Outcome.Artifacts = []string{"test_coverage.html", "report.json", "bench.json"}
	reward := calc.Calculate(ep, nil)
	if reward.Total < 0 || reward.Total > 2 {
		t.Errorf("total should stay within [0, 2], got %v", reward.Total)
	}
}

func TestErrorRecoveryLearningBonus(t *testing.T) {
	calc := NewCalculator()
	ep := successEpisode("d", 0, time.Second)
	ep.Steps = []types.ExecutionStep{
		{StepNumber: 1, Tool: "a", Result: &types.StepResult{Kind: types.StepError}},
		{StepNumber: 2, Tool: "b", Result: &types.StepResult{Kind: types.StepSuccess}},
	}
	if !detectErrorRecovery(ep) {
		t.Error("expected error recovery to be detected")
	}
}

func TestBaselineTrackerPercentiles(t *testing.T) {
	tracker := NewBaselineTracker()
	for _, steps := range []int{10, 20, 30, 40, 50} {
		tracker.Record(successEpisode("d", steps, time.Duration(steps)*time.Second))
	}
	stats := tracker.Stats("d")
	if !stats.IsReliable() {
		t.Fatal("expected 5 episodes to be reliable")
	}
	if stats.P50StepCount != 30 {
		t.Errorf("p50 step count = %d, want 30", stats.P50StepCount)
	}
}
