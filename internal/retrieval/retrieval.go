// Package retrieval implements hierarchical context retrieval: a cheap
// pre-filter, a four-level weighted score (domain/task-type context match,
// recency, and optional semantic similarity), and an MMR diversity pass
// over the top candidates. The pre-filter and context/description
// similarity formulas are ported from is_relevant_episode and
// calculate_relevance_score in memory-core/src/memory/retrieval.rs of the
// retrieved original_source tree; the fourth (semantic) level and the MMR
// diversity stage are this engine's generalization beyond the original's
// three-factor (reward/context/description) scoring, wiring in the
// internal/semantic package spec.md's hierarchical retrieval calls for.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// Query bundles a retrieval request's inputs.
type Query struct {
	TaskDescription string
	Context         types.TaskContext
	Limit           int
}

// SemanticScorer is the subset of *semantic.Service retrieval needs,
// narrowed to avoid a hard dependency on the concrete embedding service —
// a deployment with embedding disabled can pass nil.
type SemanticScorer interface {
	EpisodeSimilarity(ctx context.Context, query string, taskCtx types.TaskContext, episodeID string) (float64, error)
}

// IsRelevant reports whether an episode passes the cheap pre-filter:
// domain match, language match, framework match, tag overlap, or
// description keyword overlap (words longer than 3 characters). Ported
// from is_relevant_episode.
func IsRelevant(ep *types.Episode, q Query) bool {
	if ep.Context.Domain != "" && ep.Context.Domain == q.Context.Domain {
		return true
	}
	if ep.Context.Language != "" && ep.Context.Language == q.Context.Language {
		return true
	}
	if ep.Context.Framework != "" && ep.Context.Framework == q.Context.Framework {
		return true
	}
	if hasCommonTag(ep.Context.Tags, q.Context.Tags) {
		return true
	}
	return hasCommonWord(q.TaskDescription, ep.TaskDescription)
}

func hasCommonTag(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	for _, t := range a {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func hasCommonWord(query, other string) bool {
	otherLower := strings.ToLower(other)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) <= 3 {
			continue
		}
		if strings.Contains(otherLower, w) {
			return true
		}
	}
	return false
}

// contextMatchScore scores domain/language/framework/tag overlap in
// [0, 1], matching calculate_relevance_score's context_score component
// (0.4 domain + 0.3 language + 0.2 framework + 0.1/tag, capped at 1.0 here
// since this is later reweighted by config.RetrievalWeights.Domain rather
// than hardcoded to the original's 40% budget).
func contextMatchScore(ep *types.Episode, q Query) float64 {
	score := 0.0
	if ep.Context.Domain != "" && ep.Context.Domain == q.Context.Domain {
		score += 0.4
	}
	if ep.Context.Language != "" && ep.Context.Language == q.Context.Language {
		score += 0.3
	}
	if ep.Context.Framework != "" && ep.Context.Framework == q.Context.Framework {
		score += 0.2
	}
	common := 0
	tagSet := make(map[string]struct{}, len(q.Context.Tags))
	for _, t := range q.Context.Tags {
		tagSet[t] = struct{}{}
	}
	for _, t := range ep.Context.Tags {
		if _, ok := tagSet[t]; ok {
			common++
		}
	}
	score += 0.1 * float64(common)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// taskTypeMatchScore is a binary exact-match signal between the query
// context's implied task type and the episode's recorded task type. The
// query carries no explicit TaskType field (spec.md's retrieve call takes
// a free-text description plus TaskContext), so callers that know the
// target task type should pass it in via taskType; an empty taskType
// degrades this level to 0 for every candidate, letting the other three
// levels carry the ranking.
func taskTypeMatchScore(ep *types.Episode, taskType types.TaskType) float64 {
	if taskType == "" {
		return 0
	}
	if ep.TaskType == taskType {
		return 1.0
	}
	return 0
}

// descriptionSimilarity scores word-overlap between query and episode
// descriptions in [0, 1], matching calculate_relevance_score's
// description-similarity component.
func descriptionSimilarity(query, other string) float64 {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}
	otherLower := strings.ToLower(other)
	common := 0
	for _, w := range words {
		if len(w) <= 3 {
			continue
		}
		if strings.Contains(otherLower, w) {
			common++
		}
	}
	return float64(common) / float64(len(words))
}

// temporalScore decays with age using the same half-life convention as
// internal/capacity's RelevanceWeighted policy, so "temporal" retrieval
// ranking and capacity-eviction scoring use one consistent notion of
// recency across the engine.
func temporalScore(ep *types.Episode, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = 14 * 24 * time.Hour
	}
	age := now.Sub(ep.StartTime)
	if age < 0 {
		age = 0
	}
	exponent := age.Hours() / halfLife.Hours()
	return math.Exp2(-exponent)
}

// Scored pairs an episode with its combined relevance score and score
// breakdown, returned so callers (and tests) can see why a result ranked
// where it did.
type Scored struct {
	Episode  *types.Episode
	Domain   float64
	TaskType float64
	Temporal float64
	Semantic float64
	Total    float64
}

// Retrieve pre-filters, scores, ranks, and diversifies episodes for a
// query. taskType may be empty (see taskTypeMatchScore). semanticSvc may
// be nil, in which case the semantic level is the token-Jaccard similarity
// between the query and episode task descriptions.
func Retrieve(ctx context.Context, episodes []*types.Episode, q Query, taskType types.TaskType, weights config.RetrievalWeights, halfLife time.Duration, diversityLambda float64, semanticSvc SemanticScorer, now time.Time) []Scored {
	var candidates []*types.Episode
	for _, ep := range episodes {
		if !ep.IsComplete() {
			continue
		}
		if IsRelevant(ep, q) {
			candidates = append(candidates, ep)
		}
	}

	scored := make([]Scored, 0, len(candidates))
	for _, ep := range candidates {
		domain := contextMatchScore(ep, q)
		tt := taskTypeMatchScore(ep, taskType)
		temporal := temporalScore(ep, now, halfLife)
		// L4 uses cosine similarity through the semantic scorer when one is
		// configured; otherwise (or on a scorer error) it falls back to
		// token-Jaccard text similarity between query and task description,
		// per spec.
		sem := tagJaccard(strings.Fields(strings.ToLower(q.TaskDescription)), strings.Fields(strings.ToLower(ep.TaskDescription)))
		if semanticSvc != nil {
			if s, err := semanticSvc.EpisodeSimilarity(ctx, q.TaskDescription, q.Context, ep.EpisodeID); err == nil {
				sem = s
			}
		}
		// Blend a description-overlap floor into the domain level so
		// episodes admitted purely via description keyword match (no
		// context overlap) still score above zero, matching the
		// original's description-similarity contribution.
		descFloor := descriptionSimilarity(q.TaskDescription, ep.TaskDescription) * 0.3
		if descFloor > domain {
			domain = (domain + descFloor) / 2
		}

		total := weights.Domain*domain + weights.TaskType*tt + weights.Temporal*temporal + weights.Semantic*sem
		scored = append(scored, Scored{Episode: ep, Domain: domain, TaskType: tt, Temporal: temporal, Semantic: sem, Total: total})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Total > scored[j].Total })

	return diversify(scored, q.Limit, diversityLambda)
}

// diversify applies Maximal Marginal Relevance: repeatedly picks the
// remaining candidate maximizing lambda*relevance - (1-lambda)*max
// similarity to an already-selected item, using tag-set Jaccard overlap
// as the similarity proxy (cheap, and doesn't require an embedding
// service to be configured).
func diversify(scored []Scored, limit int, lambda float64) []Scored {
	if limit <= 0 || limit >= len(scored) {
		limit = len(scored)
	}
	if lambda <= 0 {
		lambda = 0.7
	}
	if len(scored) == 0 {
		return nil
	}

	selected := make([]Scored, 0, limit)
	remaining := append([]Scored(nil), scored...)

	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0
		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				sim := tagJaccard(cand.Episode.Context.Tags, sel.Episode.Context.Tags)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*cand.Total - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := map[string]struct{}{}
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, t := range b {
		setB[t] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// RetrieveRelevantHeuristics scores heuristics by confidence * context
// relevance, matching calculate_heuristic_relevance: domain mention in
// the condition string scores 1.0, language 0.8, framework 0.5, each
// matching tag 0.3, with a 0.1 floor for heuristics mentioning none of
// them (still weakly relevant) — then filters to score > 0, ranks by
// confidence * relevance descending, and truncates to limit.
func RetrieveRelevantHeuristics(heuristics []*types.Heuristic, ctx types.TaskContext, limit int) []*types.Heuristic {
	type scored struct {
		h     *types.Heuristic
		score float64
	}
	var out []scored
	for _, h := range heuristics {
		relevance := heuristicRelevance(h, ctx)
		weighted := h.Confidence * relevance
		if weighted > 0 {
			out = append(out, scored{h: h, score: weighted})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	result := make([]*types.Heuristic, len(out))
	for i, s := range out {
		result[i] = s.h
	}
	return result
}

func heuristicRelevance(h *types.Heuristic, ctx types.TaskContext) float64 {
	condition := strings.ToLower(h.Condition)
	score := 0.0
	if ctx.Domain != "" && strings.Contains(condition, strings.ToLower(ctx.Domain)) {
		score += 1.0
	}
	if ctx.Language != "" && strings.Contains(condition, strings.ToLower(ctx.Language)) {
		score += 0.8
	}
	if ctx.Framework != "" && strings.Contains(condition, strings.ToLower(ctx.Framework)) {
		score += 0.5
	}
	for _, tag := range ctx.Tags {
		if strings.Contains(condition, strings.ToLower(tag)) {
			score += 0.3
		}
	}
	if score == 0 {
		score = 0.1
	}
	return score
}
