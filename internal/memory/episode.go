package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d-o-hub/episodic-memory-engine/internal/memerr"
	"github.com/d-o-hub/episodic-memory-engine/internal/nats"
	"github.com/d-o-hub/episodic-memory-engine/internal/pattern"
	"github.com/d-o-hub/episodic-memory-engine/internal/reasoning"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// maxEpisodeSteps bounds how many steps a single episode may accumulate.
// The retrieved original_source tree calls out to its own
// validate_episode_size in memory-core/src/memory/validation.rs, which was
// not among the files captured for this pack; this bound is a controlled
// extrapolation of that call site rather than a port of its body, sized
// generously above anything a real agent trajectory would produce.
const maxEpisodeSteps = 10000

// maxEpisodeDescriptionChars bounds the free-text task description.
const maxEpisodeDescriptionChars = 8192

// StartEpisode opens a new in-progress episode and returns its ID. The
// episode is held in memory until CompleteEpisode is called; nothing is
// written to durable storage yet.
func (e *Engine) StartEpisode(taskDescription string, taskCtx types.TaskContext, taskType types.TaskType) string {
	ep := &types.Episode{
		EpisodeID:       types.NewID(),
		TaskType:        taskType,
		TaskDescription: taskDescription,
		Context:         taskCtx,
		StartTime:       time.Now(),
	}

	e.mu.Lock()
	e.episodes[ep.EpisodeID] = ep
	e.mu.Unlock()

	return ep.EpisodeID
}

// LogStep records one execution step against an in-progress episode. When
// batching is configured (cfg.Batch != nil) steps accumulate in a buffer and
// are flushed into the episode once MaxStepsPerFlush is reached or, when
// FlushInterval is positive, once FlushInterval has passed since the last
// flush (or since the episode started). Both checks run lazily on each
// LogStep call rather than on a background timer goroutine, so the engine
// never leaks a per-episode goroutine waiting on FlushInterval.
func (e *Engine) LogStep(episodeID string, step types.ExecutionStep) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ep, ok := e.episodes[episodeID]
	if !ok {
		return memerr.NotFoundf("episode %s not found", episodeID)
	}
	if ep.IsComplete() {
		return memerr.InvalidStatef("episode %s is already complete", episodeID)
	}

	if e.cfg.Batch == nil {
		step.StepNumber = len(ep.Steps) + 1
		ep.Steps = append(ep.Steps, step)
		return nil
	}

	buf := append(e.buffers[episodeID], step)
	e.buffers[episodeID] = buf
	last, flushedBefore := e.lastFlush[episodeID]
	if !flushedBefore {
		last = ep.StartTime
	}
	intervalElapsed := e.cfg.Batch.FlushInterval > 0 && time.Since(last) >= e.cfg.Batch.FlushInterval
	if len(buf) >= e.cfg.Batch.MaxStepsPerFlush || intervalElapsed {
		e.flushBufferLocked(episodeID)
	}
	return nil
}

// flushBufferLocked appends any buffered steps for episodeID onto the
// episode and clears the buffer. Caller must hold e.mu.
func (e *Engine) flushBufferLocked(episodeID string) {
	buf := e.buffers[episodeID]
	if len(buf) == 0 {
		return
	}
	ep, ok := e.episodes[episodeID]
	if !ok {
		delete(e.buffers, episodeID)
		return
	}
	for _, s := range buf {
		s.StepNumber = len(ep.Steps) + 1
		ep.Steps = append(ep.Steps, s)
	}
	delete(e.buffers, episodeID)
	e.lastFlush[episodeID] = time.Now()
}

func validateEpisodeSize(ep *types.Episode) error {
	if len(ep.Steps) > maxEpisodeSteps {
		return memerr.ValidationFailedf("episode %s has %d steps, exceeds limit of %d", ep.EpisodeID, len(ep.Steps), maxEpisodeSteps)
	}
	if len(ep.TaskDescription) > maxEpisodeDescriptionChars {
		return memerr.ValidationFailedf("episode %s task description exceeds %d characters", ep.EpisodeID, maxEpisodeDescriptionChars)
	}
	return nil
}

// CompleteEpisode runs the full completion pipeline against an in-progress
// episode: flush buffered steps, validate, gate on quality, extract salient
// features, score reward, generate a reflection, optionally summarize,
// enforce capacity and persist, embed, extract patterns, and publish a
// lifecycle event. Ordering is ported from memory-core/src/memory/
// completion.rs's complete_episode. Validation, the quality gate, and the
// capacity-enforcing store return an error on failure; the optional stages
// (summary storage, embedding, pattern extraction, event publishing) are
// best-effort: a failure there is logged or ignored and the pipeline
// continues.
func (e *Engine) CompleteEpisode(ctx context.Context, episodeID string, outcome types.Outcome) error {
	e.mu.Lock()
	e.flushBufferLocked(episodeID)
	live, ok := e.episodes[episodeID]
	if !ok {
		e.mu.Unlock()
		return memerr.NotFoundf("episode %s not found", episodeID)
	}
	if live.IsComplete() {
		e.mu.Unlock()
		return memerr.InvalidStatef("episode %s is already complete", episodeID)
	}
	// Work against a clone until validation and the quality gate pass, so a
	// rejection leaves the live map entry untouched: GetEpisode must not see
	// a half-completed episode spec.md §9 says should vanish without trace.
	ep := live.Clone()
	e.mu.Unlock()

	ep.EndTime = time.Now()
	ep.Outcome = &outcome

	if err := validateEpisodeSize(ep); err != nil {
		return err
	}

	quality := e.quality.Assess(ep)
	if quality < e.quality.Threshold {
		return memerr.ValidationFailedf("episode %s scored %.2f quality, below threshold %.2f", episodeID, quality, e.quality.Threshold)
	}

	ep.SalientFeatures = reasoning.ExtractSalientFeatures(ep)

	stats := e.baseline.Stats(ep.Context.Domain)
	ep.Reward = e.rewardCalc.Calculate(ep, stats)
	e.baseline.Record(ep)

	ep.Reflection = e.reflector.Generate(ep)

	if e.cfg.EnableSummarization {
		summary := e.summarizer.Summarize(ep)
		if summary != nil {
			if err := e.store.StoreEpisodeSummary(ctx, summary); err != nil {
				e.logger.Warn("failed to store episode summary", zap.String("episode_id", episodeID), zap.Error(err))
			}
		}
	}

	evicted, err := e.store.StoreEpisodeWithCapacity(ctx, ep, e.cfg.MaxEpisodes, e.policy)
	if err != nil {
		return memerr.StorageErrorf(err, "failed to store episode %s", episodeID)
	}
	for _, victimID := range evicted {
		e.forgetEpisode(victimID)
		if e.semantic.Enabled() {
			e.semantic.ForgetEpisode(victimID)
		}
		_ = e.bus.PublishEpisodeEvicted(nats.EpisodeEvictedMessage{EpisodeID: victimID, Policy: string(e.cfg.EvictionPolicy)})
	}

	if e.semantic.Enabled() {
		if err := e.semantic.EmbedEpisode(ctx, ep); err != nil {
			e.logger.Warn("failed to embed episode", zap.String("episode_id", episodeID), zap.Error(err))
		}
	}

	e.mu.Lock()
	e.episodes[episodeID] = ep
	e.mu.Unlock()

	patternCount := 0
	if e.extractionQueue != nil {
		e.extractionQueue.Enqueue(episodeID)
	} else {
		patternCount, err = e.extractPatternsForEpisode(ctx, episodeID)
		if err != nil {
			e.logger.Warn("failed to extract patterns", zap.String("episode_id", episodeID), zap.Error(err))
		}
	}

	_ = e.bus.PublishEpisodeCompleted(nats.EpisodeCompletedMessage{
		EpisodeID: episodeID,
		Domain:    ep.Context.Domain,
		TaskType:  string(ep.TaskType),
		Reward:    ep.Reward.Total,
		Stored:    true,
	})
	_ = patternCount

	return nil
}

// forgetEpisode removes an evicted episode from the in-memory working set.
func (e *Engine) forgetEpisode(episodeID string) {
	e.mu.Lock()
	delete(e.episodes, episodeID)
	delete(e.buffers, episodeID)
	delete(e.lastFlush, episodeID)
	e.mu.Unlock()
}

// GetEpisode returns a completed or in-progress episode. The in-memory
// working set is authoritative for active and recently-completed episodes;
// durable storage is consulted only when the engine holds no working copy
// (e.g. after a restart).
func (e *Engine) GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error) {
	e.mu.RLock()
	ep, ok := e.episodes[episodeID]
	e.mu.RUnlock()
	if ok {
		return ep.Clone(), nil
	}

	ep, err := e.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// extractPatternsForEpisode mines, clusters, deduplicates, and persists
// patterns for one completed episode. It satisfies queue.Extractor (via
// queue.ExtractorFunc) so it can run either synchronously from
// CompleteEpisode or asynchronously off the extraction queue.
//
// Clustering and dedup happen at two scopes: pattern.Cluster first merges
// near-duplicates mined within this episode's own batch (C6's required
// "dedup, clustering, ranking, validation" stage, spec.md line 113), then
// each surviving pattern is matched against already-stored patterns sharing
// its pattern.SimilarityKey so occurrence_count and success_rate keep
// accumulating across episodes instead of resetting to 1 every time the
// same regularity is mined again.
func (e *Engine) extractPatternsForEpisode(ctx context.Context, episodeID string) (int, error) {
	ep, err := e.GetEpisode(ctx, episodeID)
	if err != nil {
		return 0, err
	}

	mined := pattern.Extract(ep)
	if len(mined) == 0 {
		return 0, nil
	}
	mined = pattern.Cluster(mined)

	existing, err := e.store.ListPatterns(ctx)
	if err != nil {
		e.logger.Warn("failed to list existing patterns for cross-episode merge", zap.Error(err))
		existing = nil
	}
	byKey := make(map[string]*types.Pattern, len(existing))
	for _, p := range existing {
		byKey[pattern.SimilarityKey(p)] = p
	}

	ids := make([]string, 0, len(mined))
	for _, p := range mined {
		if match, ok := byKey[pattern.SimilarityKey(p)]; ok {
			p = pattern.Deduplicate([]*types.Pattern{match, p})[0]
			p.PatternID = match.PatternID
		}
		if err := e.store.StorePattern(ctx, p); err != nil {
			e.logger.Warn("failed to store pattern", zap.String("pattern_id", p.PatternID), zap.Error(err))
			continue
		}
		ids = append(ids, p.PatternID)
		if e.semantic.Enabled() {
			if err := e.semantic.EmbedPattern(ctx, p); err != nil {
				e.logger.Warn("failed to embed pattern", zap.String("pattern_id", p.PatternID), zap.Error(err))
			}
		}
	}

	if len(ids) > 0 {
		e.mu.Lock()
		if live, ok := e.episodes[episodeID]; ok {
			live.Patterns = append(live.Patterns, ids...)
		}
		e.mu.Unlock()
	}

	return len(ids), nil
}
