// Package reasoning implements the pre-storage reasoning stage: quality
// assessment that gates whether an episode is worth keeping at all, and
// salient-feature extraction that distills critical decisions, tool
// combinations, and recovery patterns out of a completed episode's steps.
//
// The quality-assessment bucket boundaries below are grounded on
// memory-core/src/pre_storage/quality/assessor.rs in the retrieved
// original_source tree: each sub-score is computed by the same step-count /
// tool-diversity / action-diversity buckets the original crate uses, not an
// independent reinterpretation of spec.md's prose.
package reasoning

import (
	"strings"

	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// QualityAssessor computes the weighted quality score gating episode storage.
type QualityAssessor struct {
	Weights   config.QualityWeights
	Threshold float64
}

// NewQualityAssessor builds an assessor from engine configuration.
func NewQualityAssessor(cfg config.Config) *QualityAssessor {
	return &QualityAssessor{Weights: cfg.QualityWeights, Threshold: cfg.QualityThreshold}
}

// Assess returns a quality score in [0,1].
func (a *QualityAssessor) Assess(ep *types.Episode) float64 {
	score := assessTaskComplexity(ep)*a.Weights.Complexity +
		assessStepDiversity(ep)*a.Weights.StepDiversity +
		assessErrorHandling(ep)*a.Weights.ErrorHandling +
		assessReflectionDepth(ep)*a.Weights.ReflectionDepth +
		assessPatternNovelty(ep)*a.Weights.PatternNovelty
	return types.Clamp(score, 0, 1)
}

// ShouldStore reports whether ep clears the configured quality threshold.
func (a *QualityAssessor) ShouldStore(ep *types.Episode) bool {
	return a.Assess(ep) >= a.Threshold
}

func assessTaskComplexity(ep *types.Episode) float64 {
	stepCount := len(ep.Steps)
	uniqueTools := map[string]struct{}{}
	for _, s := range ep.Steps {
		uniqueTools[s.Tool] = struct{}{}
	}
	stepScore := bucketScore(stepCount, []int{2, 5, 10, 20}, []float64{0.1, 0.25, 0.35, 0.45, 0.5})
	toolScore := bucketScore(len(uniqueTools), []int{1, 3, 6, 10}, []float64{0.1, 0.25, 0.35, 0.45, 0.5})
	return stepScore + toolScore
}

// bucketScore returns values[i] where thresholds[i-1] < n <= thresholds[i],
// values[0] for n <= thresholds[0], and the last value for n beyond all
// thresholds. thresholds must be ascending and len(values) == len(thresholds)+1.
func bucketScore(n int, thresholds []int, values []float64) float64 {
	for i, t := range thresholds {
		if n <= t {
			return values[i]
		}
	}
	return values[len(values)-1]
}

func assessStepDiversity(ep *types.Episode) float64 {
	if len(ep.Steps) == 0 {
		return 0
	}
	uniqueActions := map[string]struct{}{}
	for _, s := range ep.Steps {
		uniqueActions[s.Action] = struct{}{}
	}
	actionDiversity := float64(len(uniqueActions)) / float64(len(ep.Steps))

	successCount, errorCount := countStepResults(ep)
	var resultDiversity float64
	switch {
	case successCount > 0 && errorCount > 0:
		resultDiversity = 0.5
	case successCount > 0 || errorCount > 0:
		resultDiversity = 0.3
	}
	return types.Clamp(actionDiversity*0.6+resultDiversity*0.4, 0, 1)
}

func countStepResults(ep *types.Episode) (success, failed int) {
	for _, s := range ep.Steps {
		if s.Result == nil {
			continue
		}
		switch s.Result.Kind {
		case types.StepSuccess:
			success++
		case types.StepError:
			failed++
		}
	}
	return
}

func assessErrorHandling(ep *types.Episode) float64 {
	total := len(ep.Steps)
	if total == 0 {
		return 0.5
	}
	success, failed := countStepResults(ep)
	errorRate := float64(failed) / float64(total)
	switch {
	case errorRate == 0:
		return 0.9
	case errorRate < 0.2 && success > failed:
		return 1.0
	case errorRate < 0.4:
		return 0.6
	case errorRate < 0.6 && success > 0:
		return 0.4
	default:
		return 0.2
	}
}

func assessReflectionDepth(ep *types.Episode) float64 {
	if ep.Reflection == nil {
		return 0
	}
	total := len(ep.Reflection.Successes) + len(ep.Reflection.Improvements) + len(ep.Reflection.Insights)
	return bucketScore(total, []int{0, 2, 5, 10}, []float64{0, 0.3, 0.6, 0.8, 1.0})
}

func assessPatternNovelty(ep *types.Episode) float64 {
	total := len(ep.Patterns) + len(ep.Heuristics)
	return bucketScore(total, []int{0, 2, 5}, []float64{0.2, 0.5, 0.75, 1.0})
}

// decisionCuePhrases recognizes English phrasing that signals a deliberate
// choice between alternatives, mirroring the cue-phrase approach the
// retrieved pack's trajectory-to-recommendation pipeline uses.
var decisionCuePhrases = []string{
	"decided to", "chose", "opted for", "instead of", "switched to",
}

// ExtractSalientFeatures distills critical decisions, recurring tool
// combinations, error-recovery adjacencies, and reflection insights out of a
// completed episode.
func ExtractSalientFeatures(ep *types.Episode) *types.SalientFeatures {
	sf := &types.SalientFeatures{}

	for _, s := range ep.Steps {
		lower := strings.ToLower(s.Action)
		for _, cue := range decisionCuePhrases {
			if strings.Contains(lower, cue) {
				sf.CriticalDecisions = append(sf.CriticalDecisions, s.Action)
				break
			}
		}
	}

	sf.ToolCombinations = recurringToolPairs(ep.Steps)

	for i := 0; i+1 < len(ep.Steps); i++ {
		cur, next := ep.Steps[i], ep.Steps[i+1]
		if cur.Result != nil && cur.Result.Kind == types.StepError &&
			next.Result != nil && next.Result.Kind == types.StepSuccess {
			sf.ErrorRecoveryPatterns = append(sf.ErrorRecoveryPatterns,
				cur.Tool+" failed, recovered via "+next.Tool)
		}
	}

	if ep.Reflection != nil {
		sf.KeyInsights = append(sf.KeyInsights, ep.Reflection.Insights...)
	}

	return sf
}

// recurringToolPairs returns adjacent tool pairs that occur more than once,
// in first-occurrence order, deduplicated.
func recurringToolPairs(steps []types.ExecutionStep) [][]string {
	counts := map[string]int{}
	order := []string{}
	pairOf := map[string][]string{}
	for i := 0; i+1 < len(steps); i++ {
		pair := []string{steps[i].Tool, steps[i+1].Tool}
		key := pair[0] + "->" + pair[1]
		if counts[key] == 0 {
			order = append(order, key)
			pairOf[key] = pair
		}
		counts[key]++
	}
	var out [][]string
	for _, key := range order {
		if counts[key] > 1 {
			out = append(out, pairOf[key])
		}
	}
	return out
}
