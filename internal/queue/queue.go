// Package queue runs asynchronous pattern extraction off the hot
// completion path: episodes are enqueued by episode ID and a fixed pool of
// workers drains the queue, extracting and storing patterns in the
// background. Ported from the worker-loop/shutdown-flag/wait_until_empty
// structure of memory-core/src/learning/queue/extraction.rs in the
// retrieved original_source tree, replacing tokio::spawn/Mutex<VecDeque>
// with a buffered Go channel and sync.WaitGroup, and tracing::instrument
// logging with the teacher's zap.Logger idiom.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Defaults mirror the original crate's DEFAULT_WORKER_COUNT,
// DEFAULT_POLL_INTERVAL_MS, and DEFAULT_MAX_QUEUE_SIZE constants.
const (
	DefaultWorkerCount  = 4
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxQueueSize = 1000
)

// Config controls worker count, backpressure, and poll cadence.
type Config struct {
	WorkerCount  int
	PollInterval time.Duration
	MaxQueueSize int // <= 0 means a channel buffer of 4*DefaultMaxQueueSize and no capacity warning
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:  DefaultWorkerCount,
		PollInterval: DefaultPollInterval,
		MaxQueueSize: DefaultMaxQueueSize,
	}
}

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	TotalEnqueued   int64
	TotalProcessed  int64
	TotalFailed     int64
	CurrentSize     int
	ActiveWorkers   int
}

// Extractor processes one episode ID, extracting and persisting its
// patterns, and reports how many patterns were produced.
type Extractor interface {
	ExtractForEpisode(ctx context.Context, episodeID string) (patternCount int, err error)
}

// Queue is a bounded FIFO of episode IDs drained by a fixed worker pool.
// A single worker ever touches a given episode ID at a time, because each
// ID only occupies one queue slot and workers pull from the same channel.
type Queue struct {
	cfg       Config
	extractor Extractor
	logger    *zap.Logger

	items chan string

	mu   sync.Mutex
	size int

	enqueued atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	onProcessed func(episodeID string, patternCount int)
}

// New constructs a Queue. onProcessed, if non-nil, is invoked after every
// successful extraction (used to drive an optional event-bus notification).
func New(cfg Config, extractor Extractor, logger *zap.Logger, onProcessed func(string, int)) *Queue {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := cfg.MaxQueueSize
	if capacity <= 0 {
		capacity = DefaultMaxQueueSize * 4 // generous buffer for "unbounded" mode
	}
	return &Queue{
		cfg:         cfg,
		extractor:   extractor,
		logger:      logger,
		items:       make(chan string, capacity),
		shutdown:    make(chan struct{}),
		onProcessed: onProcessed,
	}
}

// Enqueue adds an episode ID to the queue. If the queue is at its
// configured capacity, the episode is still enqueued but a warning is
// logged — soft backpressure, matching the original's "queue at capacity"
// warning-without-rejection behavior. Once the channel buffer is full, the
// send blocks until a worker takes an item.
func (q *Queue) Enqueue(episodeID string) {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()

	if q.cfg.MaxQueueSize > 0 && size >= q.cfg.MaxQueueSize {
		q.logger.Warn("pattern extraction queue at capacity",
			zap.Int("queue_size", size),
			zap.Int("max_size", q.cfg.MaxQueueSize))
	}

	q.mu.Lock()
	q.size++
	q.mu.Unlock()
	q.enqueued.Add(1)

	q.items <- episodeID
	q.logger.Debug("enqueued episode for pattern extraction", zap.String("episode_id", episodeID))
}

// Start launches the configured number of workers. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("starting pattern extraction workers", zap.Int("worker_count", q.cfg.WorkerCount))
	for i := 0; i < q.cfg.WorkerCount; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, i)
	}
}

func (q *Queue) workerLoop(ctx context.Context, workerID int) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.shutdown:
			q.logger.Info("worker shutting down gracefully", zap.Int("worker_id", workerID))
			return
		case <-ctx.Done():
			return
		case episodeID := <-q.items:
			q.process(ctx, workerID, episodeID)
		case <-ticker.C:
			// idle tick; loop back to re-check shutdown/ctx
		}
	}
}

func (q *Queue) process(ctx context.Context, workerID int, episodeID string) {
	q.mu.Lock()
	if q.size > 0 {
		q.size--
	}
	q.mu.Unlock()

	q.logger.Debug("processing episode", zap.Int("worker_id", workerID), zap.String("episode_id", episodeID))

	count, err := q.extractor.ExtractForEpisode(ctx, episodeID)
	if err != nil {
		q.failed.Add(1)
		q.logger.Error("pattern extraction failed",
			zap.Int("worker_id", workerID), zap.String("episode_id", episodeID), zap.Error(err))
		return
	}

	q.processed.Add(1)
	q.logger.Debug("extracted patterns",
		zap.Int("worker_id", workerID), zap.String("episode_id", episodeID), zap.Int("pattern_count", count))
	if q.onProcessed != nil {
		q.onProcessed(episodeID, count)
	}
}

// Stats returns a snapshot of queue activity.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return Stats{
		TotalEnqueued:  q.enqueued.Load(),
		TotalProcessed: q.processed.Load(),
		TotalFailed:    q.failed.Load(),
		CurrentSize:    size,
		ActiveWorkers:  q.cfg.WorkerCount,
	}
}

// Size returns the current queue depth.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Shutdown signals all workers to stop after their current item and
// blocks until they exit.
func (q *Queue) Shutdown() {
	q.once.Do(func() {
		q.logger.Info("initiating pattern extraction queue shutdown")
		close(q.shutdown)
	})
	q.wg.Wait()
}

// WaitUntilEmpty polls queue depth until it reaches zero or timeout elapses.
func (q *Queue) WaitUntilEmpty(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if q.Size() == 0 {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return q.Size() == 0
}

// episodeExtractorFunc adapts a plain function to the Extractor interface,
// used by the memory façade to wire the C6 pattern package without a
// separate adapter type.
type episodeExtractorFunc func(ctx context.Context, episodeID string) (int, error)

func (f episodeExtractorFunc) ExtractForEpisode(ctx context.Context, episodeID string) (int, error) {
	return f(ctx, episodeID)
}

// ExtractorFunc wraps a function as an Extractor.
func ExtractorFunc(f func(ctx context.Context, episodeID string) (int, error)) Extractor {
	return episodeExtractorFunc(f)
}
