// Package memory is the episodic memory engine's façade: the single
// entry point composing every other package (reasoning, reward, pattern,
// storage, retrieval, semantic, summarizer, queue, nats) into the
// lifecycle spec.md describes — start an episode, log steps, complete it
// through the full learning pipeline, and retrieve relevant context,
// patterns, and heuristics for a new task.
//
// Grounded on memory-core/src/memory/completion.rs and
// memory-core/src/memory/retrieval.rs in the retrieved original_source
// tree for pipeline ordering, and on the teacher's own constructor-
// injects-collaborators style (its SelfLearningMemory equivalent was the
// now-deleted OperationalDB/LearningDB pair in interfaces.go) for how the
// façade is wired together from configuration.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d-o-hub/episodic-memory-engine/internal/capacity"
	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/nats"
	"github.com/d-o-hub/episodic-memory-engine/internal/queue"
	"github.com/d-o-hub/episodic-memory-engine/internal/reasoning"
	"github.com/d-o-hub/episodic-memory-engine/internal/reward"
	"github.com/d-o-hub/episodic-memory-engine/internal/semantic"
	"github.com/d-o-hub/episodic-memory-engine/internal/storage"
	"github.com/d-o-hub/episodic-memory-engine/internal/summarizer"
	"github.com/d-o-hub/episodic-memory-engine/internal/types"
)

// Engine is the self-learning episodic memory engine. It is safe for
// concurrent use by multiple goroutines.
type Engine struct {
	cfg    config.Config
	store  storage.DurableStore
	logger *zap.Logger

	quality         *reasoning.QualityAssessor
	rewardCalc      *reward.Calculator
	baseline        *reward.BaselineTracker
	reflector       *reasoning.ReflectionGenerator
	summarizer      *summarizer.Summarizer
	semantic        *semantic.Service
	policy          capacity.Policy
	extractionQueue *queue.Queue
	bus             *nats.EventBus

	mu        sync.RWMutex
	episodes  map[string]*types.Episode
	buffers   map[string][]types.ExecutionStep
	lastFlush map[string]time.Time
}

// New constructs an Engine from configuration and a durable store.
// store is typically a *storage.TieredStore composing a durable backend
// with an in-memory cache, but any DurableStore implementation works
// (tests commonly substitute a fake).
func New(cfg config.Config, store storage.DurableStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		quality:    reasoning.NewQualityAssessor(cfg),
		rewardCalc: reward.NewCalculator(),
		baseline:   reward.NewBaselineTracker(),
		reflector:  reasoning.NewReflectionGenerator(),
		summarizer: summarizer.New(),
		semantic:   semantic.NewService(cfg.Embedding, logger),
		policy:     capacityPolicy(cfg),
		episodes:   make(map[string]*types.Episode),
		buffers:    make(map[string][]types.ExecutionStep),
		lastFlush:  make(map[string]time.Time),
	}

	if cfg.Concurrency.AsyncPatterns {
		qcfg := queue.Config{
			WorkerCount:  cfg.Concurrency.WorkerCount,
			PollInterval: cfg.Concurrency.PollInterval,
			MaxQueueSize: cfg.Concurrency.MaxQueueSize,
		}
		e.extractionQueue = queue.New(qcfg, queue.ExtractorFunc(e.extractPatternsForEpisode), logger, e.onPatternsExtracted)
	}

	return e
}

func capacityPolicy(cfg config.Config) capacity.Policy {
	switch cfg.EvictionPolicy {
	case config.EvictionLRU:
		return capacity.LRU{}
	case config.EvictionRelevanceWeighted:
		return capacity.RelevanceWeighted{HalfLife: cfg.RelevanceHalfLife}
	default:
		return capacity.None{}
	}
}

// SetEventBus wires an optional event bus for episode-lifecycle
// notifications. A nil bus (the default) makes every publish call a
// no-op — the engine never requires a reachable message broker.
func (e *Engine) SetEventBus(bus *nats.EventBus) {
	e.bus = bus
	e.semantic.SetEventBus(bus)
}

// Start launches the async pattern-extraction worker pool, if configured.
// Safe to call even when async extraction is disabled (no-op).
func (e *Engine) Start(ctx context.Context) {
	if e.extractionQueue != nil {
		e.extractionQueue.Start(ctx)
	}
}

// Close shuts down the async extraction queue (if running) and the
// underlying store.
func (e *Engine) Close() error {
	if e.extractionQueue != nil {
		e.extractionQueue.Shutdown()
	}
	return e.store.Close()
}

func (e *Engine) onPatternsExtracted(episodeID string, patternCount int) {
	e.logger.Info("async pattern extraction complete", zap.String("episode_id", episodeID), zap.Int("pattern_count", patternCount))
	_ = e.bus.PublishPatternsExtracted(episodeID, nats.PatternsExtractedMessage{PatternCount: patternCount})
}
