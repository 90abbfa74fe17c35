package pattern

import (
	"testing"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func makeEpisode(domain string, toolSeq []string, withError bool) *types.Episode {
	now := time.Now()
	ep := &types.Episode{
		EpisodeID:       types.NewID(),
		Context:         types.TaskContext{Domain: domain, Language: "go"},
		TaskDescription: "decided to refactor the parser instead of rewriting it",
		StartTime:       now,
		EndTime:         now.Add(time.Minute),
		Outcome:         &types.Outcome{Kind: types.OutcomeSuccess},
	}
	for i, tool := range toolSeq {
		ep.Steps = append(ep.Steps, types.ExecutionStep{
			StepNumber: i + 1,
			Tool:       tool,
			Action:     "decided to use " + tool,
			Result:     &types.StepResult{Kind: types.StepSuccess},
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		})
	}
	if withError && len(ep.Steps) >= 2 {
		ep.Steps[0].Result = &types.StepResult{Kind: types.StepError, Message: "timeout"}
		ep.Steps[1].Tool = ep.Steps[0].Tool
		ep.Steps[1].Result = &types.StepResult{Kind: types.StepSuccess}
	}
	return ep
}

func TestExtractToolSequences(t *testing.T) {
	ep := makeEpisode("web", []string{"grep", "edit", "test"}, false)
	patterns := Extract(ep)
	var seqCount int
	for _, p := range patterns {
		if p.Kind == types.PatternToolSequence {
			seqCount++
		}
	}
	if seqCount == 0 {
		t.Fatal("expected at least one tool-sequence pattern")
	}
}

func TestExtractDecisionPoints(t *testing.T) {
	ep := makeEpisode("web", []string{"grep", "edit"}, false)
	patterns := Extract(ep)
	found := false
	for _, p := range patterns {
		if p.Kind == types.PatternDecisionPoint {
			found = true
		}
	}
	if !found {
		t.Fatal("expected decision-point pattern from cue phrase 'decided to'")
	}
}

func TestExtractErrorRecovery(t *testing.T) {
	ep := makeEpisode("web", []string{"grep", "grep"}, true)
	patterns := Extract(ep)
	found := false
	for _, p := range patterns {
		if p.Kind == types.PatternErrorRecovery {
			found = true
		}
	}
	if !found {
		t.Fatal("expected error-recovery pattern from adjacent error->success same-tool pair")
	}
}

func TestExtractContextPattern(t *testing.T) {
	ep := makeEpisode("web", []string{"grep"}, false)
	patterns := Extract(ep)
	found := false
	for _, p := range patterns {
		if p.Kind == types.PatternContext {
			found = true
			if len(p.ContextFeatures) == 0 {
				t.Error("expected non-empty context features")
			}
		}
	}
	if !found {
		t.Fatal("expected one context pattern")
	}
}

func TestHashToolSequenceStable(t *testing.T) {
	a := HashToolSequence([]string{"grep", "edit"})
	b := HashToolSequence([]string{"grep", "edit"})
	c := HashToolSequence([]string{"edit", "grep"})
	if a != b {
		t.Error("expected identical tool sequences to hash identically")
	}
	if a == c {
		t.Error("expected different ordering to hash differently")
	}
}

func TestDeduplicateSortsBySuccessRate(t *testing.T) {
	patterns := []*types.Pattern{
		{PatternID: "1", SuccessRate: 0.3},
		{PatternID: "2", SuccessRate: 0.9},
		{PatternID: "1", SuccessRate: 0.3},
	}
	out := Deduplicate(patterns)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique patterns, got %d", len(out))
	}
	if out[0].SuccessRate < out[1].SuccessRate {
		t.Error("expected descending success-rate order")
	}
}

func TestRankPrefersContextMatch(t *testing.T) {
	ctx := types.TaskContext{Domain: "web", Language: "go"}
	patterns := []*types.Pattern{
		{PatternID: "a", Context: types.TaskContext{Domain: "other"}, SuccessRate: 1.0, OccurrenceCount: 10},
		{PatternID: "b", Context: ctx, SuccessRate: 0.8, OccurrenceCount: 1},
	}
	ranked := Rank(patterns, ctx)
	if ranked[0].PatternID != "b" {
		t.Errorf("expected context-matching pattern ranked first, got %s", ranked[0].PatternID)
	}
}

func TestClusterToolSequencesMergesOccurrenceWeighted(t *testing.T) {
	patterns := []*types.Pattern{
		{PatternID: "1", Kind: types.PatternToolSequence, Tools: []string{"grep", "edit"}, SuccessRate: 0.5, OccurrenceCount: 1, Evidence: []string{"e1"}},
		{PatternID: "2", Kind: types.PatternToolSequence, Tools: []string{"grep", "edit"}, SuccessRate: 0.9, OccurrenceCount: 3, Evidence: []string{"e2"}},
	}
	out := Cluster(patterns)
	if len(out) != 1 {
		t.Fatalf("expected exact-key group collapsed to 1, got %d", len(out))
	}
	if out[0].OccurrenceCount != 4 {
		t.Errorf("expected occurrence counts summed to 4, got %d", out[0].OccurrenceCount)
	}
	wantSuccess := (0.5*1 + 0.9*3) / 4
	if out[0].SuccessRate != wantSuccess {
		t.Errorf("expected occurrence-weighted success rate %v, got %v", wantSuccess, out[0].SuccessRate)
	}
	if len(out[0].Evidence) != 2 {
		t.Errorf("expected evidence unioned to 2 entries, got %d", len(out[0].Evidence))
	}
}

func TestClusterErrorRecoveriesMerges(t *testing.T) {
	patterns := []*types.Pattern{
		{PatternID: "1", Kind: types.PatternErrorRecovery, ErrorType: "Timeout", RecoverySteps: []string{"retry"}, SuccessRate: 0.6, Evidence: []string{"e1"}},
		{PatternID: "2", Kind: types.PatternErrorRecovery, ErrorType: "timeout", RecoverySteps: []string{"retry", "backoff"}, SuccessRate: 1.0, Evidence: []string{"e2"}},
	}
	out := Cluster(patterns)
	if len(out) != 1 {
		t.Fatalf("expected same-error-type merge, got %d groups", len(out))
	}
	if len(out[0].RecoverySteps) != 2 {
		t.Errorf("expected deduped recovery steps of len 2, got %d", len(out[0].RecoverySteps))
	}
	if out[0].SuccessRate != 0.8 {
		t.Errorf("expected averaged success rate 0.8, got %v", out[0].SuccessRate)
	}
}

func TestClusterContextPatternsJaccard(t *testing.T) {
	patterns := []*types.Pattern{
		{PatternID: "1", Kind: types.PatternContext, ContextFeatures: []string{"domain:web", "language:go", "tag:a"}, SuccessRate: 0.5},
		{PatternID: "2", Kind: types.PatternContext, ContextFeatures: []string{"domain:web", "language:go", "tag:a", "tag:b"}, SuccessRate: 1.0},
		{PatternID: "3", Kind: types.PatternContext, ContextFeatures: []string{"domain:other"}, SuccessRate: 0.2},
	}
	out := Cluster(patterns)
	if len(out) != 2 {
		t.Fatalf("expected the two similar context patterns merged and the dissimilar one kept separate, got %d", len(out))
	}
}

func TestValidateSequencesPrecisionRecall(t *testing.T) {
	mined := [][]string{{"grep", "edit"}, {"build", "test"}}
	truth := [][]string{{"grep", "edit"}, {"deploy", "verify"}}
	result := ValidateSequences(mined, truth, 0.99)
	if result.TruePositives != 1 {
		t.Fatalf("expected 1 true positive, got %d", result.TruePositives)
	}
	if result.FalsePositives != 1 {
		t.Fatalf("expected 1 false positive, got %d", result.FalsePositives)
	}
	if result.FalseNegatives != 1 {
		t.Fatalf("expected 1 false negative, got %d", result.FalseNegatives)
	}
	if result.Precision != 0.5 || result.Recall != 0.5 {
		t.Errorf("expected precision=recall=0.5, got p=%v r=%v", result.Precision, result.Recall)
	}
	if result.F1 != 0.5 {
		t.Errorf("expected f1=0.5, got %v", result.F1)
	}
}

func TestValidateStringsWordOverlap(t *testing.T) {
	mined := []string{"connection timeout error"}
	truth := []string{"connection timeout occurred"}
	result := ValidateStrings(mined, truth, 0.3)
	if result.TruePositives != 1 {
		t.Fatalf("expected overlapping strings to match, got tp=%d", result.TruePositives)
	}
}

func TestValidateEmptyInputsNoDivideByZero(t *testing.T) {
	result := ValidateSequences(nil, nil, 0.7)
	if result.Precision != 0 || result.Recall != 0 || result.F1 != 0 {
		t.Error("expected zero-valued result for empty input, not NaN or panic")
	}
}
