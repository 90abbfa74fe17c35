package reward

import (
	"sort"

	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// BaselineTracker accumulates per-domain episode statistics so the
// Calculator can use adaptive efficiency baselines once a domain has
// enough recorded history.
type BaselineTracker struct {
	byDomain map[string][]*types.Episode
}

// NewBaselineTracker returns an empty tracker.
func NewBaselineTracker() *BaselineTracker {
	return &BaselineTracker{byDomain: make(map[string][]*types.Episode)}
}

// Record adds a completed episode to its domain's history.
func (t *BaselineTracker) Record(ep *types.Episode) {
	if ep.Context.Domain == "" {
		return
	}
	t.byDomain[ep.Context.Domain] = append(t.byDomain[ep.Context.Domain], ep)
}

// Stats computes the current DomainStats for domain from recorded history.
func (t *BaselineTracker) Stats(domain string) *DomainStats {
	episodes := t.byDomain[domain]
	if len(episodes) == 0 {
		return &DomainStats{}
	}
	durations := make([]float64, 0, len(episodes))
	steps := make([]int, 0, len(episodes))
	for _, ep := range episodes {
		if secs, ok := durationSeconds(ep); ok {
			durations = append(durations, secs)
		}
		steps = append(steps, len(ep.Steps))
	}
	sort.Float64s(durations)
	sort.Ints(steps)
	return &DomainStats{
		EpisodeCount: len(episodes),
		P50Duration:  percentileFloat(durations, 0.5),
		P50StepCount: percentileInt(steps, 0.5),
	}
}

func percentileFloat(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func percentileInt(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
