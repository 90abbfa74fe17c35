package summarizer

import (
	"strings"
	"testing"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

func richContext() types.TaskContext {
	return types.TaskContext{
		Language:   "go",
		Framework:  "chi",
		Complexity: types.ComplexityModerate,
		Domain:     "authentication",
		Tags:       []string{"security", "async"},
	}
}

func TestSummarizeCompleteEpisode(t *testing.T) {
	ep := &types.Episode{
		EpisodeID:       "e1",
		TaskType:        types.TaskType("code_generation"),
		TaskDescription: "Implement user authentication",
		Context:         richContext(),
	}
	for i := 0; i < 5; i++ {
		ep.Steps = append(ep.Steps, types.ExecutionStep{
			StepNumber: i + 1, Tool: "tool", Action: "Action",
			Result: &types.StepResult{Kind: types.StepSuccess},
		})
	}
	ep.Outcome = &types.Outcome{Kind: types.OutcomeSuccess, Verdict: "Authentication implemented successfully"}
	ep.EndTime = time.Now()

	s := New()
	summary := s.Summarize(ep)

	if summary.EpisodeID != ep.EpisodeID {
		t.Errorf("expected episode id carried through")
	}
	if summary.SummaryText == "" {
		t.Fatal("expected non-empty summary text")
	}
	if !strings.Contains(summary.SummaryText, "Task:") || !strings.Contains(summary.SummaryText, "Outcome:") {
		t.Errorf("expected Task: and Outcome: markers, got %q", summary.SummaryText)
	}
	if len(summary.KeyConcepts) == 0 {
		t.Error("expected non-empty key concepts")
	}
	if len(summary.KeySteps) == 0 {
		t.Error("expected non-empty key steps")
	}
}

func TestExtractKeyConceptsFromContextAndDescription(t *testing.T) {
	ep := &types.Episode{
		TaskType:        types.TaskType("code_generation"),
		TaskDescription: "Implement JWT authentication with Redis caching",
		Context:         richContext(),
	}
	s := New()
	concepts := s.ExtractKeyConcepts(ep)

	want := []string{"authentication", "caching", "go", "chi", "security"}
	for _, w := range want {
		found := false
		for _, c := range concepts {
			if c == w {
				found = true
			}
		}
		if !found {
			t.Errorf("expected concept %q in %v", w, concepts)
		}
	}
	for _, c := range concepts {
		if strings.ToLower(c) != c {
			t.Errorf("expected normalized lowercase concept, got %q", c)
		}
	}
	if len(concepts) > MaxKeyConcepts {
		t.Errorf("expected at most %d concepts, got %d", MaxKeyConcepts, len(concepts))
	}
}

func TestExtractKeyStepsBoundedAndOrdered(t *testing.T) {
	ep := &types.Episode{}
	for i := 0; i < 10; i++ {
		ep.Steps = append(ep.Steps, types.ExecutionStep{
			StepNumber: i + 1, Tool: "tool", Action: "Action",
			Result: &types.StepResult{Kind: types.StepSuccess},
		})
	}
	s := New()
	steps := s.ExtractKeySteps(ep)
	if len(steps) > MaxKeySteps {
		t.Fatalf("expected at most %d key steps, got %d", MaxKeySteps, len(steps))
	}
	if !strings.Contains(steps[0], "Step 1") {
		t.Errorf("expected first step included, got %q", steps[0])
	}
	if !strings.Contains(steps[len(steps)-1], "Step 10") {
		t.Errorf("expected last step included, got %q", steps[len(steps)-1])
	}
}

func TestExtractKeyStepsPrioritizesErrors(t *testing.T) {
	ep := &types.Episode{}
	for i := 0; i < 3; i++ {
		ep.Steps = append(ep.Steps, types.ExecutionStep{
			StepNumber: i + 1, Tool: "tool", Action: "Action",
			Result: &types.StepResult{Kind: types.StepSuccess},
		})
	}
	ep.Steps = append(ep.Steps, types.ExecutionStep{
		StepNumber: 4, Tool: "validator", Action: "Validate input",
		Result: &types.StepResult{Kind: types.StepError, Message: "Validation failed"},
	})
	ep.Steps = append(ep.Steps, types.ExecutionStep{
		StepNumber: 5, Tool: "validator", Action: "Re-validate",
		Result: &types.StepResult{Kind: types.StepSuccess},
	})

	s := New()
	steps := s.ExtractKeySteps(ep)
	found := false
	for _, step := range steps {
		if strings.Contains(step, "Step 4") && strings.Contains(step, "[ERROR]") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected error step marked, got %v", steps)
	}
}

func TestExtractKeyStepsEmptyEpisode(t *testing.T) {
	s := New()
	steps := s.ExtractKeySteps(&types.Episode{})
	if len(steps) != 0 {
		t.Errorf("expected no key steps for empty episode, got %v", steps)
	}
}

func TestExtractKeyStepsSingleStep(t *testing.T) {
	ep := &types.Episode{Steps: []types.ExecutionStep{
		{StepNumber: 1, Tool: "tool", Action: "Action", Result: &types.StepResult{Kind: types.StepSuccess}},
	}}
	s := New()
	steps := s.ExtractKeySteps(ep)
	if len(steps) != 1 {
		t.Fatalf("expected exactly 1 key step, got %d", len(steps))
	}
	if !strings.Contains(steps[0], "Step 1") {
		t.Errorf("expected Step 1, got %q", steps[0])
	}
}

func TestSummaryLengthConstraint(t *testing.T) {
	ep := &types.Episode{TaskDescription: "Test task"}
	for i := 0; i < 100; i++ {
		ep.Steps = append(ep.Steps, types.ExecutionStep{
			StepNumber: i + 1, Tool: "tool", Action: "Very long action description number",
			Result: &types.StepResult{Kind: types.StepSuccess},
		})
	}
	ep.Outcome = &types.Outcome{Kind: types.OutcomeSuccess, Verdict: "Task completed successfully with many steps and lots of details"}

	s := New()
	text := s.GenerateSummaryText(ep)
	wordCount := len(strings.Fields(text))
	if wordCount > MaxSummaryWords+5 {
		t.Errorf("expected word count <= %d (+tolerance), got %d", MaxSummaryWords, wordCount)
	}
}

func TestSummaryWithSalientFeatures(t *testing.T) {
	ep := &types.Episode{
		TaskDescription: "Test task",
		SalientFeatures: &types.SalientFeatures{
			CriticalDecisions:     []string{"Chose async implementation"},
			ErrorRecoveryPatterns: []string{"Timeout -> Retry with backoff"},
			KeyInsights:           []string{"Builder pattern works well"},
		},
		Outcome: &types.Outcome{Kind: types.OutcomeSuccess, Verdict: "Implemented successfully"},
	}
	s := New()
	text := s.GenerateSummaryText(ep)
	if !strings.Contains(text, "Key decision:") {
		t.Errorf("expected key decision marker, got %q", text)
	}
	if !strings.Contains(text, "Recovery pattern:") {
		t.Errorf("expected recovery pattern marker, got %q", text)
	}
	if !strings.Contains(text, "Insight:") {
		t.Errorf("expected insight marker, got %q", text)
	}
}

func TestSummaryEdgeCaseEmptyEpisode(t *testing.T) {
	s := New()
	text := s.GenerateSummaryText(&types.Episode{})
	if text == "" {
		t.Fatal("expected non-empty summary even for an empty episode")
	}
	if !strings.Contains(text, "Task:") {
		t.Errorf("expected Task: marker, got %q", text)
	}
}
