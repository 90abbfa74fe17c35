// Package pattern mines, deduplicates, clusters, ranks, and validates the
// recurring structures (tool sequences, decision points, error recoveries,
// context patterns) that generalize across episodes. Clustering thresholds
// and the dispatch-by-kind structure below are grounded on
// memory-core/src/patterns/extractors/clustering.rs in the retrieved
// original_source tree.
package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// MinSequenceLength and MaxSequenceLength bound the ToolSequence window
// mined from each episode's step list (spec.md §4.6).
const (
	MinSequenceLength = 2
	MaxSequenceLength = 4
)

// HashToolSequence returns a stable content hash for a tool list: the first
// 16 hex digits of the SHA-256 of the tools joined with "|". SimilarityKey
// does not use it; tool-sequence similarity keys carry the joined tool
// names themselves.
func HashToolSequence(tools []string) string {
	joined := strings.Join(tools, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}

// Extract mines every pattern variant from one completed episode.
func Extract(ep *types.Episode) []*types.Pattern {
	var out []*types.Pattern
	out = append(out, extractToolSequences(ep)...)
	out = append(out, extractDecisionPoints(ep)...)
	out = append(out, extractErrorRecoveries(ep)...)
	if cp := extractContextPattern(ep); cp != nil {
		out = append(out, cp)
	}
	return out
}

func extractToolSequences(ep *types.Episode) []*types.Pattern {
	var out []*types.Pattern
	now := time.Now()
	success := ep.Outcome.IsSuccess()
	for length := MinSequenceLength; length <= MaxSequenceLength; length++ {
		for i := 0; i+length <= len(ep.Steps); i++ {
			tools := make([]string, length)
			var latency time.Duration
			for j := 0; j < length; j++ {
				tools[j] = ep.Steps[i+j].Tool
			}
			if length > 1 {
				latency = ep.Steps[i+length-1].Timestamp.Sub(ep.Steps[i].Timestamp)
			}
			successRate := 0.0
			if success {
				successRate = 1.0
			}
			out = append(out, &types.Pattern{
				PatternID:       types.NewID(),
				Kind:            types.PatternToolSequence,
				Context:         ep.Context,
				Tools:           tools,
				SuccessRate:     successRate,
				AvgLatency:      latency,
				OccurrenceCount: 1,
				Confidence:      successRate,
				CreatedAt:       now,
				UpdatedAt:       now,
				Evidence:        []string{ep.EpisodeID},
			})
		}
	}
	return out
}

var decisionCuePhrases = []string{
	"decided to", "chose", "opted for", "instead of", "switched to",
}

func extractDecisionPoints(ep *types.Episode) []*types.Pattern {
	var out []*types.Pattern
	now := time.Now()
	success := ep.Outcome.IsSuccess()
	for _, step := range ep.Steps {
		lower := strings.ToLower(step.Action)
		matched := false
		for _, cue := range decisionCuePhrases {
			if strings.Contains(lower, cue) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		stats := &types.OutcomeStats{}
		if success {
			stats.SuccessCount = 1
		} else {
			stats.FailureCount = 1
		}
		out = append(out, &types.Pattern{
			PatternID:    types.NewID(),
			Kind:         types.PatternDecisionPoint,
			Context:      ep.Context,
			Condition:    step.Action,
			Action:       step.Tool,
			OutcomeStats: stats,
			Confidence:   0.5,
			CreatedAt:    now,
			UpdatedAt:    now,
			Evidence:     []string{ep.EpisodeID},
		})
	}
	return out
}

func extractErrorRecoveries(ep *types.Episode) []*types.Pattern {
	var out []*types.Pattern
	now := time.Now()
	for i := 0; i+1 < len(ep.Steps); i++ {
		cur, next := ep.Steps[i], ep.Steps[i+1]
		if cur.Result == nil || cur.Result.Kind != types.StepError {
			continue
		}
		if next.Result == nil || next.Result.Kind != types.StepSuccess || next.Tool != cur.Tool {
			continue
		}
		out = append(out, &types.Pattern{
			PatternID:     types.NewID(),
			Kind:          types.PatternErrorRecovery,
			Context:       ep.Context,
			ErrorType:     cur.Result.Message,
			RecoverySteps: []string{next.Action},
			SuccessRate:   1.0,
			Confidence:    0.6,
			CreatedAt:     now,
			UpdatedAt:     now,
			Evidence:      []string{ep.EpisodeID},
		})
	}
	return out
}

func extractContextPattern(ep *types.Episode) *types.Pattern {
	if ep.Context.Domain == "" {
		return nil
	}
	now := time.Now()
	features := []string{"domain:" + ep.Context.Domain}
	if ep.Context.Language != "" {
		features = append(features, "language:"+ep.Context.Language)
	}
	if ep.Context.Framework != "" {
		features = append(features, "framework:"+ep.Context.Framework)
	}
	for _, tag := range ep.Context.Tags {
		features = append(features, "tag:"+tag)
	}
	successRate := 0.0
	if ep.Outcome.IsSuccess() {
		successRate = 1.0
	}
	approach := ep.TaskDescription
	if len(approach) > 120 {
		approach = approach[:120]
	}
	return &types.Pattern{
		PatternID:           types.NewID(),
		Kind:                types.PatternContext,
		Context:             ep.Context,
		ContextFeatures:     features,
		RecommendedApproach: approach,
		SuccessRate:         successRate,
		Confidence:          successRate,
		CreatedAt:           now,
		UpdatedAt:           now,
		Evidence:            []string{ep.EpisodeID},
	}
}

// SimilarityKey computes the collapse key spec.md line 113 defines as
// "type + normalized tools/condition/error/features + domain" — two
// patterns sharing a key are the same underlying regularity mined from
// different episodes and must be merged rather than kept as separate rows.
func SimilarityKey(p *types.Pattern) string {
	var body string
	switch p.Kind {
	case types.PatternToolSequence:
		body = strings.Join(p.Tools, "|")
	case types.PatternDecisionPoint:
		body = strings.ToLower(strings.TrimSpace(p.Condition))
	case types.PatternErrorRecovery:
		body = strings.ToLower(strings.TrimSpace(p.ErrorType))
	case types.PatternContext:
		features := append([]string(nil), p.ContextFeatures...)
		sort.Strings(features)
		body = strings.Join(features, "|")
	default:
		body = p.PatternID
	}
	return string(p.Kind) + "::" + body + "::" + p.Context.Domain
}

// Deduplicate collapses patterns sharing a SimilarityKey into a single
// entry: occurrence counts sum, success rate becomes the occurrence-weighted
// average across the merged members, and evidence (episode IDs) unions.
// Result is sorted by descending success rate.
func Deduplicate(patterns []*types.Pattern) []*types.Pattern {
	groups := map[string][]*types.Pattern{}
	var order []string
	for _, p := range patterns {
		key := SimilarityKey(p)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}
	out := make([]*types.Pattern, 0, len(order))
	for _, key := range order {
		out = append(out, mergeGroup(groups[key]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuccessRate > out[j].SuccessRate
	})
	return out
}

// mergeGroup folds a set of same-SimilarityKey patterns into one, keeping
// the oldest member's identity and defining fields (tools/condition/error
// are identical by construction of the key) while accumulating the
// occurrence-weighted statistics and evidence the rest contribute.
func mergeGroup(group []*types.Pattern) *types.Pattern {
	if len(group) == 1 {
		return group[0]
	}
	oldest := group[0]
	for _, p := range group[1:] {
		if p.CreatedAt.Before(oldest.CreatedAt) {
			oldest = p
		}
	}
	merged := *oldest
	totalOccurrences := 0
	weightedSuccess := 0.0
	latestUpdate := oldest.UpdatedAt
	for _, p := range group {
		occ := p.OccurrenceCount
		if occ <= 0 {
			occ = 1
		}
		totalOccurrences += occ
		weightedSuccess += p.SuccessRate * float64(occ)
		if p.UpdatedAt.After(latestUpdate) {
			latestUpdate = p.UpdatedAt
		}
	}
	merged.OccurrenceCount = totalOccurrences
	if totalOccurrences > 0 {
		merged.SuccessRate = weightedSuccess / float64(totalOccurrences)
	}
	merged.Confidence = merged.SuccessRate * math.Sqrt(math.Max(float64(totalOccurrences), 1))
	merged.UpdatedAt = latestUpdate
	merged.Evidence = mergeEvidence(group)
	return &merged
}

// Rank orders patterns by relevance_to_context * confidence, where
// confidence = success_rate * sqrt(occurrence_count).
func Rank(patterns []*types.Pattern, ctx types.TaskContext) []*types.Pattern {
	type scored struct {
		p     *types.Pattern
		score float64
	}
	ranked := make([]scored, len(patterns))
	for i, p := range patterns {
		confidence := p.SuccessRate * math.Sqrt(math.Max(float64(p.OccurrenceCount), 1))
		relevance := relevanceToContext(p, ctx)
		ranked[i] = scored{p: p, score: relevance * confidence}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]*types.Pattern, len(ranked))
	for i, s := range ranked {
		out[i] = s.p
	}
	return out
}

func relevanceToContext(p *types.Pattern, ctx types.TaskContext) float64 {
	score := 0.0
	if p.Context.Domain != "" && p.Context.Domain == ctx.Domain {
		score += 0.5
	}
	if p.Context.Language != "" && p.Context.Language == ctx.Language {
		score += 0.25
	}
	if p.Context.Framework != "" && p.Context.Framework == ctx.Framework {
		score += 0.25
	}
	if score == 0 {
		return 0.1 // patterns with no context overlap still rank, faintly
	}
	return score
}
