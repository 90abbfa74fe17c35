package semantic

import (
	"fmt"
	"strings"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// EpisodeToText renders an episode into the searchable text an embedding
// provider consumes, combining task description, context, a deduplicated
// tool list, the first few actions, and an outcome summary. Ported from
// SemanticService::episode_to_text in memory-core/src/embeddings/mod.rs.
func EpisodeToText(ep *types.Episode) string {
	var b strings.Builder
	b.WriteString(ep.TaskDescription)
	fmt.Fprintf(&b, ". domain: %s", ep.Context.Domain)
	if ep.Context.Language != "" {
		fmt.Fprintf(&b, ". language: %s", ep.Context.Language)
	}
	if ep.Context.Framework != "" {
		fmt.Fprintf(&b, ". framework: %s", ep.Context.Framework)
	}
	if len(ep.Context.Tags) > 0 {
		fmt.Fprintf(&b, ". tags: %s", strings.Join(ep.Context.Tags, ", "))
	}

	if len(ep.Steps) > 0 {
		seen := map[string]struct{}{}
		var tools []string
		for _, step := range ep.Steps {
			if _, ok := seen[step.Tool]; !ok {
				seen[step.Tool] = struct{}{}
				tools = append(tools, step.Tool)
			}
		}
		fmt.Fprintf(&b, ". tools used: %s", strings.Join(tools, ", "))

		limit := 3
		if len(ep.Steps) < limit {
			limit = len(ep.Steps)
		}
		actions := make([]string, limit)
		for i := 0; i < limit; i++ {
			actions[i] = ep.Steps[i].Action
		}
		fmt.Fprintf(&b, ". actions: %s", strings.Join(actions, ", "))
	}

	if ep.Outcome != nil {
		switch ep.Outcome.Kind {
		case types.OutcomeSuccess:
			fmt.Fprintf(&b, ". outcome: success - %s", ep.Outcome.Verdict)
		case types.OutcomePartialSuccess:
			fmt.Fprintf(&b, ". outcome: partial success - %s", ep.Outcome.Verdict)
		case types.OutcomeFailure:
			fmt.Fprintf(&b, ". outcome: failure - %s", ep.Outcome.Reason)
		}
	}

	return b.String()
}

// PatternToText renders a pattern into searchable text by kind, followed
// by its context. Ported from SemanticService::pattern_to_text.
func PatternToText(p *types.Pattern) string {
	var parts []string

	switch p.Kind {
	case types.PatternToolSequence:
		parts = append(parts, "Tool sequence: "+strings.Join(p.Tools, " -> "))
	case types.PatternDecisionPoint:
		parts = append(parts, fmt.Sprintf("Decision: if %s then %s", p.Condition, p.Action))
	case types.PatternErrorRecovery:
		parts = append(parts, fmt.Sprintf("Error recovery: %s -> %s", p.ErrorType, strings.Join(p.RecoverySteps, " -> ")))
	case types.PatternContext:
		parts = append(parts, fmt.Sprintf("Context pattern: %s suggests %s",
			strings.Join(p.ContextFeatures, ", "), p.RecommendedApproach))
	}

	parts = append(parts, "domain: "+p.Context.Domain)
	if p.Context.Language != "" {
		parts = append(parts, "language: "+p.Context.Language)
	}
	if len(p.Context.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(p.Context.Tags, ", "))
	}

	return strings.Join(parts, ". ")
}

// ContextToText renders a bare TaskContext into searchable text, used both
// as a pattern-search query and as part of QueryText.
func ContextToText(ctx types.TaskContext) string {
	var parts []string
	parts = append(parts, "domain: "+ctx.Domain)
	if ctx.Language != "" {
		parts = append(parts, "language: "+ctx.Language)
	}
	if ctx.Framework != "" {
		parts = append(parts, "framework: "+ctx.Framework)
	}
	if len(ctx.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(ctx.Tags, ", "))
	}
	parts = append(parts, "complexity: "+string(ctx.Complexity))
	return strings.Join(parts, ". ")
}

// QueryText combines a free-text query with its task context, used when
// searching for semantically similar episodes.
func QueryText(query string, ctx types.TaskContext) string {
	parts := []string{query}
	parts = append(parts, "domain: "+ctx.Domain)
	if ctx.Language != "" {
		parts = append(parts, "language: "+ctx.Language)
	}
	if ctx.Framework != "" {
		parts = append(parts, "framework: "+ctx.Framework)
	}
	if len(ctx.Tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(ctx.Tags, ", "))
	}
	return strings.Join(parts, ". ")
}
