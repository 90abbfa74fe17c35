package nats

import (
	"fmt"
	"time"
)

// EventBus wraps a Client with typed publish helpers for the engine's
// lifecycle notifications. A nil *EventBus is valid and every method on it
// becomes a no-op, so callers can wire it unconditionally and only pay for
// it when a NATS URL was actually configured.
type EventBus struct {
	client *Client
}

// NewEventBus wraps an existing Client. Passing a nil client yields a
// no-op bus.
func NewEventBus(client *Client) *EventBus {
	return &EventBus{client: client}
}

func (b *EventBus) PublishEpisodeCompleted(msg EpisodeCompletedMessage) error {
	if b == nil || b.client == nil {
		return nil
	}
	msg.Timestamp = timeNow()
	return b.client.PublishJSON(SubjectEpisodeCompleted, msg)
}

func (b *EventBus) PublishPatternsExtracted(episodeID string, msg PatternsExtractedMessage) error {
	if b == nil || b.client == nil {
		return nil
	}
	msg.Timestamp = timeNow()
	return b.client.PublishJSON(fmt.Sprintf(SubjectPatternsExtracted, episodeID), msg)
}

func (b *EventBus) PublishEpisodeEvicted(msg EpisodeEvictedMessage) error {
	if b == nil || b.client == nil {
		return nil
	}
	msg.Timestamp = timeNow()
	return b.client.PublishJSON(SubjectEpisodeEvicted, msg)
}

func (b *EventBus) PublishCircuitBreakerStateChange(msg CircuitBreakerStateChangeMessage) error {
	if b == nil || b.client == nil {
		return nil
	}
	msg.Timestamp = timeNow()
	return b.client.PublishJSON(SubjectCircuitBreakerStateChange, msg)
}

func timeNow() time.Time { return time.Now() }
