// Package reward computes the scalar reward assigned to a completed
// episode, using either fixed thresholds or domain-adaptive baselines once
// enough history exists for a domain. The formula and every constant below
// are grounded on memory-core/src/reward/adaptive.rs in the retrieved
// original_source tree — this package ports its arithmetic into Go, not a
// reinterpretation of spec.md's prose description of the formula.
package reward

import (
	"math"
	"strconv"
	"strings"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// DomainStats is the reliability-gated per-domain baseline consulted by
// adaptive efficiency scoring. A domain needs at least minReliableEpisodes
// recorded episodes before its baseline is trusted over the fixed fallback.
type DomainStats struct {
	EpisodeCount  int
	P50Duration   float64 // seconds
	P50StepCount  int
}

const minReliableEpisodes = 5

// IsReliable reports whether this domain has enough history to trust its
// adaptive baseline over the fixed fallback.
func (d *DomainStats) IsReliable() bool {
	return d != nil && d.EpisodeCount >= minReliableEpisodes
}

// Calculator computes reward scores, optionally consulting per-domain
// statistics for adaptive efficiency.
type Calculator struct {
	FallbackDurationSecs float64
	FallbackStepCount    int
	DurationWeight       float64
	StepCountWeight      float64
}

// NewCalculator returns a calculator with the documented defaults (60s / 10
// steps fallback baseline, equal 0.5/0.5 weighting).
func NewCalculator() *Calculator {
	return &Calculator{
		FallbackDurationSecs: 60.0,
		FallbackStepCount:    10,
		DurationWeight:       0.5,
		StepCountWeight:      0.5,
	}
}

// Calculate computes the full reward breakdown for a completed episode.
func (c *Calculator) Calculate(ep *types.Episode, stats *DomainStats) *types.RewardScore {
	base := c.calculateBase(ep)

	var efficiency float64
	if stats.IsReliable() {
		efficiency = c.calculateAdaptiveEfficiency(ep, stats)
	} else {
		efficiency = c.calculateFixedEfficiency(ep)
	}

	complexityBonus := c.calculateComplexityBonus(ep)
	qualityMultiplier := c.calculateQualityMultiplier(ep)
	learningBonus := c.calculateLearningBonus(ep)

	total := types.Clamp(base*efficiency*complexityBonus*qualityMultiplier+learningBonus, 0, 2)

	return &types.RewardScore{
		Total:             total,
		Base:              base,
		Efficiency:        efficiency,
		ComplexityBonus:   complexityBonus,
		QualityMultiplier: qualityMultiplier,
		LearningBonus:     learningBonus,
	}
}

func (c *Calculator) calculateBase(ep *types.Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	switch ep.Outcome.Kind {
	case types.OutcomeSuccess:
		return 1.0
	case types.OutcomePartialSuccess:
		total := len(ep.Outcome.Completed) + len(ep.Outcome.Failed)
		if total == 0 {
			return 0.5
		}
		return float64(len(ep.Outcome.Completed)) / float64(total)
	default:
		return 0
	}
}

func durationSeconds(ep *types.Episode) (float64, bool) {
	if ep.EndTime.IsZero() || ep.StartTime.IsZero() {
		return 0, false
	}
	return ep.EndTime.Sub(ep.StartTime).Seconds(), true
}

func efficiencyScore(ratio float64) float64 {
	return 0.5 + math.Exp(-ratio/2.0)
}

func (c *Calculator) calculateAdaptiveEfficiency(ep *types.Episode, stats *DomainStats) float64 {
	durationScore := 1.0
	if secs, ok := durationSeconds(ep); ok {
		if secs <= 0 {
			return 1.5
		}
		baseline := math.Max(stats.P50Duration, 1.0)
		durationScore = efficiencyScore(secs / baseline)
	}

	stepCount := len(ep.Steps)
	if stepCount == 0 {
		return 0.5
	}
	baseline := stats.P50StepCount
	if baseline < 1 {
		baseline = 1
	}
	stepScore := efficiencyScore(float64(stepCount) / float64(baseline))

	combined := durationScore*c.DurationWeight + stepScore*c.StepCountWeight
	return types.Clamp(combined, 0.5, 1.5)
}

func (c *Calculator) calculateFixedEfficiency(ep *types.Episode) float64 {
	durationScore := 1.0
	if secs, ok := durationSeconds(ep); ok {
		if secs <= 0 {
			return 1.5
		}
		durationScore = efficiencyScore(secs / c.FallbackDurationSecs)
	}

	stepCount := len(ep.Steps)
	if stepCount == 0 {
		return 0.5
	}
	stepScore := efficiencyScore(float64(stepCount) / float64(c.FallbackStepCount))

	combined := durationScore*c.DurationWeight + stepScore*c.StepCountWeight
	return types.Clamp(combined, 0.5, 1.5)
}

func (c *Calculator) calculateComplexityBonus(ep *types.Episode) float64 {
	switch ep.Context.Complexity {
	case types.ComplexitySimple:
		return 1.0
	case types.ComplexityModerate:
		return 1.1
	case types.ComplexityComplex:
		return 1.2
	default:
		return 1.0
	}
}

func (c *Calculator) calculateQualityMultiplier(ep *types.Episode) float64 {
	quality := 1.0

	if ep.Outcome != nil && ep.Outcome.Kind == types.OutcomeSuccess {
		hasTestCoverage := false
		for _, a := range ep.Outcome.Artifacts {
			if containsFold(a, "coverage") || containsFold(a, "test") {
				hasTestCoverage = true
				break
			}
		}
		if hasTestCoverage {
			quality += 0.1
		}
		if len(ep.Outcome.Artifacts) >= 3 {
			quality += 0.05
		}
		if coverage, ok := parseFloatMeta(ep.Metadata, "test_coverage"); ok {
			switch {
			case coverage > 80:
				quality += 0.15
			case coverage > 60:
				quality += 0.1
			}
		}
	}

	total := len(ep.Steps)
	if total > 0 {
		_, failed := countStepResultsLocal(ep)
		errorRate := float64(failed) / float64(total)
		switch {
		case errorRate > 0.3:
			quality -= 0.2
		case errorRate > 0.1:
			quality -= 0.1
		case errorRate == 0:
			quality += 0.1
		}
	}

	if warnings, ok := ep.Metadata["lint_warnings"]; ok && warnings == "0" {
		quality += 0.05
	}

	return types.Clamp(quality, 0.5, 1.5)
}

func (c *Calculator) calculateLearningBonus(ep *types.Episode) float64 {
	bonus := 0.0

	patternCount := len(ep.Patterns)
	if patternCount > 0 {
		bonus += math.Min(float64(patternCount)*0.1, 0.3)
	}

	if novelty, ok := noveltyBonus(ep); ok {
		bonus += novelty
	}

	total := len(ep.Steps)
	if total > 0 {
		success, _ := countStepResultsLocal(ep)
		successRate := float64(success) / float64(total)
		switch {
		case successRate > 0.9 && total >= 5:
			bonus += 0.2
		case successRate == 1.0 && total >= 3:
			bonus += 0.15
		}
	}

	if detectErrorRecovery(ep) {
		bonus += 0.15
	}

	if secs, ok := durationSeconds(ep); ok && secs < 30 && total > 0 && total < 10 {
		bonus += 0.1
	}

	return math.Min(bonus, 0.5)
}

func noveltyBonus(ep *types.Episode) (float64, bool) {
	if len(ep.Steps) < 3 {
		return 0, false
	}
	unique := map[string]struct{}{}
	for _, s := range ep.Steps {
		unique[s.Tool] = struct{}{}
	}
	switch {
	case len(unique) >= 5:
		return 0.15, true
	case len(unique) >= 3:
		return 0.1, true
	default:
		return 0, false
	}
}

func detectErrorRecovery(ep *types.Episode) bool {
	for i := 0; i+1 < len(ep.Steps); i++ {
		cur, next := ep.Steps[i], ep.Steps[i+1]
		curFailed := cur.Result != nil && cur.Result.Kind == types.StepError
		nextOK := next.Result != nil && next.Result.Kind == types.StepSuccess
		if curFailed && nextOK {
			return true
		}
	}
	return false
}

func countStepResultsLocal(ep *types.Episode) (success, failed int) {
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

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func parseFloatMeta(meta map[string]string, key string) (float64, bool) {
	raw, ok := meta[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
