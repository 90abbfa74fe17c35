package nats

import "time"

// Subject patterns for the episodic memory engine's optional event bus.
// A deployment without a NATS server simply never constructs a Client;
// nothing in the core engine requires one.
const (
	// SubjectEpisodeCompleted fires once an episode finishes the
	// completion pipeline and has been durably stored.
	SubjectEpisodeCompleted = "memory.episode.completed"

	// SubjectPatternsExtracted fires after the async pattern-extraction
	// queue finishes processing one episode.
	SubjectPatternsExtracted = "memory.episode.%s.patterns_extracted"

	// SubjectAllPatternsExtracted subscribes to every episode's
	// pattern-extraction completion.
	SubjectAllPatternsExtracted = "memory.episode.*.patterns_extracted"

	// SubjectEpisodeEvicted fires when the capacity manager evicts an
	// episode to stay under the configured MaxEpisodes bound.
	SubjectEpisodeEvicted = "memory.episode.evicted"

	// SubjectCircuitBreakerStateChange fires whenever the embedding
	// service's circuit breaker trips or recovers.
	SubjectCircuitBreakerStateChange = "memory.embedding.circuit_breaker"
)

// EpisodeCompletedMessage announces that an episode finished its
// completion pipeline (quality assessment, reward scoring, durable write).
type EpisodeCompletedMessage struct {
	EpisodeID string    `json:"episode_id"`
	Domain    string    `json:"domain"`
	TaskType  string    `json:"task_type"`
	Reward    float64   `json:"reward"`
	Stored    bool      `json:"stored"`
	Timestamp time.Time `json:"timestamp"`
}

// PatternsExtractedMessage announces that the async queue finished
// extracting patterns for one episode.
type PatternsExtractedMessage struct {
	EpisodeID    string    `json:"episode_id"`
	PatternCount int       `json:"pattern_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// EpisodeEvictedMessage announces that capacity enforcement removed an
// episode from durable storage.
type EpisodeEvictedMessage struct {
	EpisodeID string    `json:"episode_id"`
	Policy    string    `json:"policy"`
	Timestamp time.Time `json:"timestamp"`
}

// CircuitBreakerStateChangeMessage announces an embedding-provider circuit
// breaker transitioning between closed/open/half-open.
type CircuitBreakerStateChangeMessage struct {
	Provider  string    `json:"provider"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}
