package pattern

import (
	"strings"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// ClusterSimilarityThreshold is the Jaccard-overlap cutoff for merging
// ContextPattern variants, ported from the original crate's 0.7 constant.
const ClusterSimilarityThreshold = 0.7

// Cluster groups patterns by kind and merges near-duplicates within each
// group, averaging success rates weighted by occurrence count and unioning
// evidence: ToolSequence/DecisionPoint merge by exact key; ErrorRecovery
// merges same error-type members; ContextPattern merges via a greedy
// Jaccard sweep at ClusterSimilarityThreshold.
func Cluster(patterns []*types.Pattern) []*types.Pattern {
	var toolSeqs, decisions, recoveries, contexts []*types.Pattern
	for _, p := range patterns {
		switch p.Kind {
		case types.PatternToolSequence:
			toolSeqs = append(toolSeqs, p)
		case types.PatternDecisionPoint:
			decisions = append(decisions, p)
		case types.PatternErrorRecovery:
			recoveries = append(recoveries, p)
		case types.PatternContext:
			contexts = append(contexts, p)
		}
	}

	var out []*types.Pattern
	out = append(out, clusterByExactKey(toolSeqs, func(p *types.Pattern) string {
		return strings.Join(p.Tools, "|")
	})...)
	out = append(out, clusterByExactKey(decisions, func(p *types.Pattern) string {
		return strings.ToLower(strings.TrimSpace(p.Condition))
	})...)
	out = append(out, clusterErrorRecoveries(recoveries)...)
	out = append(out, clusterContextPatterns(contexts)...)

	return Deduplicate(out)
}

// clusterByExactKey merges each exact-key group into one pattern via
// mergeGroup: occurrence counts sum, success rate becomes the
// occurrence-weighted average, and evidence unions.
func clusterByExactKey(patterns []*types.Pattern, keyFn func(*types.Pattern) string) []*types.Pattern {
	groups := map[string][]*types.Pattern{}
	var order []string
	for _, p := range patterns {
		key := keyFn(p)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}
	var out []*types.Pattern
	for _, key := range order {
		out = append(out, mergeGroup(groups[key]))
	}
	return out
}

func clusterErrorRecoveries(patterns []*types.Pattern) []*types.Pattern {
	groups := map[string][]*types.Pattern{}
	var order []string
	for _, p := range patterns {
		key := strings.ToLower(strings.TrimSpace(p.ErrorType))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}
	var out []*types.Pattern
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		out = append(out, mergeErrorRecoveries(group))
	}
	return out
}

func mergeErrorRecoveries(group []*types.Pattern) *types.Pattern {
	seenSteps := map[string]struct{}{}
	var steps []string
	for _, p := range group {
		for _, s := range p.RecoverySteps {
			if _, ok := seenSteps[s]; !ok {
				seenSteps[s] = struct{}{}
				steps = append(steps, s)
			}
		}
	}
	merged := mergeGroup(group)
	merged.RecoverySteps = steps
	return merged
}

func clusterContextPatterns(patterns []*types.Pattern) []*types.Pattern {
	remaining := append([]*types.Pattern(nil), patterns...)
	var out []*types.Pattern
	for len(remaining) > 0 {
		base := remaining[0]
		remaining = remaining[1:]
		similar := []*types.Pattern{base}
		var rest []*types.Pattern
		for _, p := range remaining {
			if jaccardSimilarity(base.ContextFeatures, p.ContextFeatures) > ClusterSimilarityThreshold {
				similar = append(similar, p)
			} else {
				rest = append(rest, p)
			}
		}
		remaining = rest
		out = append(out, mergeContextPatterns(similar))
	}
	return out
}

func jaccardSimilarity(a, b []string) float64 {
	setA := map[string]struct{}{}
	for _, v := range a {
		setA[v] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, v := range b {
		setB[v] = struct{}{}
	}
	intersection := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func mergeContextPatterns(group []*types.Pattern) *types.Pattern {
	if len(group) == 1 {
		return group[0]
	}
	seenFeatures := map[string]struct{}{}
	var features []string
	var approaches []string
	seenApproach := map[string]struct{}{}
	for _, p := range group {
		for _, f := range p.ContextFeatures {
			if _, ok := seenFeatures[f]; !ok {
				seenFeatures[f] = struct{}{}
				features = append(features, f)
			}
		}
		if _, ok := seenApproach[p.RecommendedApproach]; !ok {
			seenApproach[p.RecommendedApproach] = struct{}{}
			approaches = append(approaches, p.RecommendedApproach)
		}
	}
	merged := mergeGroup(group)
	merged.ContextFeatures = features
	merged.RecommendedApproach = strings.Join(approaches, "; ")
	return merged
}

func mergeEvidence(group []*types.Pattern) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range group {
		for _, e := range p.Evidence {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				out = append(out, e)
			}
		}
	}
	return out
}
