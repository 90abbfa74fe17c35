package reasoning

import (
	"fmt"
	"strings"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// MaxReflectionEntryChars bounds each reflection entry's length (spec.md §4.4).
const MaxReflectionEntryChars = 120

// MaxReflectionEntriesPerCategory bounds each of successes/improvements/
// insights independently (spec.md §4.4).
const MaxReflectionEntriesPerCategory = 10

// ReflectionGenerator synthesizes a Reflection deterministically from an
// episode's step/outcome record — no LLM call, just structural analysis of
// what succeeded, what failed, and what the run implies about the domain.
// Grounded on the same step-result and tool-combination analysis
// ExtractSalientFeatures already performs in this package, generalized to
// produce human-readable sentences rather than structured fields, since the
// retrieved original_source tree's own reflection-generator file was not
// captured (only its call site in completion.rs, which this mirrors: called
// immediately after reward calculation, before semantic summarization).
type ReflectionGenerator struct{}

// NewReflectionGenerator constructs a ReflectionGenerator. It carries no
// configuration.
func NewReflectionGenerator() *ReflectionGenerator { return &ReflectionGenerator{} }

// Generate builds a Reflection from a completed episode's steps and outcome.
func (g *ReflectionGenerator) Generate(ep *types.Episode) *types.Reflection {
	r := &types.Reflection{}

	success, failed := countStepResults(ep)

	if ep.Outcome.IsSuccess() {
		r.Successes = append(r.Successes, truncateEntry(fmt.Sprintf("Completed task: %s", firstSentence(ep.Outcome.Verdict))))
	}
	if success > 0 {
		r.Successes = append(r.Successes, truncateEntry(fmt.Sprintf("%d of %d steps succeeded", success, len(ep.Steps))))
	}
	tools, counts := toolUsageCounts(ep)
	for _, tool := range tools {
		if counts[tool] > 1 {
			r.Successes = append(r.Successes, truncateEntry(fmt.Sprintf("Reused %s effectively across %d steps", tool, counts[tool])))
		}
	}

	if failed > 0 {
		r.Improvements = append(r.Improvements, truncateEntry(fmt.Sprintf("%d step(s) failed before completion", failed)))
	}
	if ep.Outcome.Kind == types.OutcomeFailure {
		r.Improvements = append(r.Improvements, truncateEntry(fmt.Sprintf("Did not complete: %s", firstSentence(ep.Outcome.Reason))))
	}
	if ep.Outcome.Kind == types.OutcomePartialSuccess {
		for _, f := range ep.Outcome.Failed {
			r.Improvements = append(r.Improvements, truncateEntry(fmt.Sprintf("Left incomplete: %s", f)))
		}
	}

	for i := 0; i+1 < len(ep.Steps); i++ {
		cur, next := ep.Steps[i], ep.Steps[i+1]
		if cur.Result != nil && cur.Result.Kind == types.StepError &&
			next.Result != nil && next.Result.Kind == types.StepSuccess {
			r.Insights = append(r.Insights, truncateEntry(fmt.Sprintf("Recovering from %s errors via %s works for this domain", cur.Tool, next.Tool)))
		}
	}
	if ep.Context.Domain != "" && ep.Outcome.IsSuccess() {
		r.Insights = append(r.Insights, truncateEntry(fmt.Sprintf("This approach generalizes to %s tasks", ep.Context.Domain)))
	}

	r.Successes = boundEntries(r.Successes)
	r.Improvements = boundEntries(r.Improvements)
	r.Insights = boundEntries(r.Insights)
	r.GeneratedAt = ep.EndTime
	return r
}

func truncateEntry(s string) string {
	if len(s) <= MaxReflectionEntryChars {
		return s
	}
	return s[:MaxReflectionEntryChars-3] + "..."
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func boundEntries(entries []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
		if len(out) >= MaxReflectionEntriesPerCategory {
			break
		}
	}
	return out
}

// toolUsageCounts returns tool counts along with first-occurrence order, so
// callers iterating the result stay deterministic across runs (map
// iteration order is not).
func toolUsageCounts(ep *types.Episode) (order []string, counts map[string]int) {
	counts = map[string]int{}
	for _, s := range ep.Steps {
		if counts[s.Tool] == 0 {
			order = append(order, s.Tool)
		}
		counts[s.Tool]++
	}
	return order, counts
}
