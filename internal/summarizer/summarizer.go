// Package summarizer generates deterministic EpisodeSummary records: a
// bounded-length text digest, key concepts, and key execution steps, used
// both for human-readable recall and as the text a SalientFeatures-aware
// embedding pass indexes. Ported from SemanticSummarizer in the retrieved
// original_source tree (memory-core/tests/semantic_summary_test.rs
// documents its exact behavior; the implementation file itself was not
// retrieved, so this is built test-first from that spec).
package summarizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// MaxSummaryWords bounds generate_summary_text's output length, matching
// the original's 200-word cap (with "..." tolerance).
const MaxSummaryWords = 200

// MaxKeyConcepts bounds ExtractKeyConcepts' output length.
const MaxKeyConcepts = 20

// MaxKeySteps bounds ExtractKeySteps' output length.
const MaxKeySteps = 5

// Summarizer generates EpisodeSummary records from completed episodes.
type Summarizer struct{}

// New constructs a Summarizer. It carries no state or configuration.
func New() *Summarizer { return &Summarizer{} }

// Summarize builds a complete EpisodeSummary.
func (s *Summarizer) Summarize(ep *types.Episode) *types.EpisodeSummary {
	return &types.EpisodeSummary{
		EpisodeID:   ep.EpisodeID,
		SummaryText: s.GenerateSummaryText(ep),
		KeyConcepts: s.ExtractKeyConcepts(ep),
		KeySteps:    s.ExtractKeySteps(ep),
		CreatedAt:   ep.EndTime,
	}
}

// GenerateSummaryText builds a human-readable digest: task description,
// context, salient-feature highlights (decisions/recoveries/insights), and
// outcome — truncated to MaxSummaryWords words with a trailing "...".
func (s *Summarizer) GenerateSummaryText(ep *types.Episode) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Task: %s", ep.TaskDescription))

	if ep.Context.Domain != "" {
		parts = append(parts, fmt.Sprintf("Domain: %s", ep.Context.Domain))
	}
	if ep.Context.Language != "" {
		parts = append(parts, fmt.Sprintf("Language: %s", ep.Context.Language))
	}

	if ep.SalientFeatures != nil {
		for _, d := range ep.SalientFeatures.CriticalDecisions {
			parts = append(parts, fmt.Sprintf("Key decision: %s", d))
		}
		for _, r := range ep.SalientFeatures.ErrorRecoveryPatterns {
			parts = append(parts, fmt.Sprintf("Recovery pattern: %s", r))
		}
		for _, ins := range ep.SalientFeatures.KeyInsights {
			parts = append(parts, fmt.Sprintf("Insight: %s", ins))
		}
	}

	if ep.Outcome != nil {
		switch ep.Outcome.Kind {
		case types.OutcomeSuccess:
			parts = append(parts, fmt.Sprintf("Outcome: success - %s", ep.Outcome.Verdict))
		case types.OutcomePartialSuccess:
			parts = append(parts, fmt.Sprintf("Outcome: partial success - %s", ep.Outcome.Verdict))
		case types.OutcomeFailure:
			parts = append(parts, fmt.Sprintf("Outcome: failure - %s", ep.Outcome.Reason))
		}
	}

	text := strings.Join(parts, ". ")
	return truncateWords(text, MaxSummaryWords)
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// taskTypeConcept maps a TaskType to its concept-list label, matching the
// original's assertion that concepts include e.g. "code_generation".
func taskTypeConcept(tt types.TaskType) string {
	return string(tt)
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "with": {}, "for": {}, "and": {}, "or": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "using": {}, "via": {}, "use": {},
	"implement": {}, "implementing": {}, "create": {}, "creating": {}, "add": {},
	"build": {}, "building": {},
}

// ExtractKeyConcepts pulls normalized (lowercase), deduplicated keywords
// from the task description, context (language/framework/domain/tags),
// task type, and any salient features, capped at MaxKeyConcepts.
func (s *Summarizer) ExtractKeyConcepts(ep *types.Episode) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(word string) {
		word = strings.TrimFunc(strings.ToLower(word), func(r rune) bool {
			return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
		})
		if word == "" {
			return
		}
		if _, stop := stopWords[word]; stop {
			return
		}
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}

	for _, w := range strings.Fields(ep.TaskDescription) {
		add(w)
	}

	if ep.Context.Language != "" {
		add(ep.Context.Language)
	}
	if ep.Context.Framework != "" {
		add(ep.Context.Framework)
	}
	if ep.Context.Domain != "" {
		add(ep.Context.Domain)
	}
	for _, tag := range ep.Context.Tags {
		add(tag)
	}
	add(taskTypeConcept(ep.TaskType))

	if ep.SalientFeatures != nil {
		for _, d := range ep.SalientFeatures.CriticalDecisions {
			for _, w := range strings.Fields(d) {
				add(w)
			}
		}
		for _, ins := range ep.SalientFeatures.KeyInsights {
			for _, w := range strings.Fields(ins) {
				add(w)
			}
		}
	}

	if len(out) > MaxKeyConcepts {
		out = out[:MaxKeyConcepts]
	}
	return out
}

// ExtractKeySteps selects a representative subset of an episode's steps:
// the first step, the last step, and any error steps, capped at
// MaxKeySteps and kept in step-number order. Error steps are marked
// "[ERROR]" so downstream readers (and retrieval snippets) can spot
// recoveries at a glance.
func (s *Summarizer) ExtractKeySteps(ep *types.Episode) []string {
	if len(ep.Steps) == 0 {
		return nil
	}
	if len(ep.Steps) == 1 {
		return []string{formatStep(ep.Steps[0])}
	}

	selected := map[int]struct{}{0: {}, len(ep.Steps) - 1: {}}
	for i, step := range ep.Steps {
		if step.Result != nil && step.Result.Kind == types.StepError {
			selected[i] = struct{}{}
		}
	}

	indices := make([]int, 0, len(selected))
	for i := range selected {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	if len(indices) > MaxKeySteps {
		// Keep first, last, and as many error steps as fit between them.
		trimmed := []int{indices[0]}
		for _, i := range indices[1 : len(indices)-1] {
			if len(trimmed) >= MaxKeySteps-1 {
				break
			}
			trimmed = append(trimmed, i)
		}
		trimmed = append(trimmed, indices[len(indices)-1])
		indices = trimmed
	}

	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = formatStep(ep.Steps[idx])
	}
	return out
}

func formatStep(step types.ExecutionStep) string {
	marker := ""
	if step.Result != nil && step.Result.Kind == types.StepError {
		marker = " [ERROR]"
	}
	return fmt.Sprintf("Step %d: %s%s", step.StepNumber, step.Action, marker)
}
