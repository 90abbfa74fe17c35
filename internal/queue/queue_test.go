package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnqueueProcessesAndReportsStats(t *testing.T) {
	var mu sync.Mutex
	var processedIDs []string

	extractor := ExtractorFunc(func(ctx context.Context, episodeID string) (int, error) {
		mu.Lock()
		processedIDs = append(processedIDs, episodeID)
		mu.Unlock()
		return 3, nil
	})

	var notified []string
	q := New(Config{WorkerCount: 2, PollInterval: 10 * time.Millisecond, MaxQueueSize: 10}, extractor, nil, func(id string, count int) {
		mu.Lock()
		notified = append(notified, id)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue("ep-1")
	q.Enqueue("ep-2")

	if !q.WaitUntilEmpty(2 * time.Second) {
		t.Fatal("expected queue to drain")
	}
	q.Shutdown()

	stats := q.Stats()
	if stats.TotalEnqueued != 2 {
		t.Errorf("expected 2 enqueued, got %d", stats.TotalEnqueued)
	}
	if stats.TotalProcessed != 2 {
		t.Errorf("expected 2 processed, got %d", stats.TotalProcessed)
	}
	if stats.TotalFailed != 0 {
		t.Errorf("expected 0 failed, got %d", stats.TotalFailed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processedIDs) != 2 {
		t.Errorf("expected both episodes processed, got %v", processedIDs)
	}
	if len(notified) != 2 {
		t.Errorf("expected onProcessed called for both episodes, got %v", notified)
	}
}

func TestExtractionFailureCountsAsFailedNotProcessed(t *testing.T) {
	extractor := ExtractorFunc(func(ctx context.Context, episodeID string) (int, error) {
		return 0, context.DeadlineExceeded
	})
	q := New(Config{WorkerCount: 1, PollInterval: 10 * time.Millisecond}, extractor, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue("ep-1")
	if !q.WaitUntilEmpty(2 * time.Second) {
		t.Fatal("expected queue to drain even on failure")
	}
	q.Shutdown()

	stats := q.Stats()
	if stats.TotalFailed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.TotalFailed)
	}
	if stats.TotalProcessed != 0 {
		t.Errorf("expected 0 processed, got %d", stats.TotalProcessed)
	}
}

func TestShutdownIsIdempotentAndBlocksUntilWorkersExit(t *testing.T) {
	extractor := ExtractorFunc(func(ctx context.Context, episodeID string) (int, error) { return 0, nil })
	q := New(Config{WorkerCount: 2, PollInterval: 5 * time.Millisecond}, extractor, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Shutdown()
	q.Shutdown() // must not panic or double-close
}

func TestDefaultConfigAppliedForZeroValues(t *testing.T) {
	extractor := ExtractorFunc(func(ctx context.Context, episodeID string) (int, error) { return 0, nil })
	q := New(Config{}, extractor, nil, nil)
	if q.cfg.WorkerCount != DefaultWorkerCount {
		t.Errorf("expected default worker count, got %d", q.cfg.WorkerCount)
	}
	if q.cfg.PollInterval != DefaultPollInterval {
		t.Errorf("expected default poll interval, got %v", q.cfg.PollInterval)
	}
}
