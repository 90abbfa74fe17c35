package nats

import "testing"

func TestNilEventBusPublishesAreNoOps(t *testing.T) {
	var bus *EventBus

	if err := bus.PublishEpisodeCompleted(EpisodeCompletedMessage{EpisodeID: "e1"}); err != nil {
		t.Errorf("expected nil-bus publish to no-op, got %v", err)
	}
	if err := bus.PublishPatternsExtracted("e1", PatternsExtractedMessage{PatternCount: 2}); err != nil {
		t.Errorf("expected nil-bus publish to no-op, got %v", err)
	}
	if err := bus.PublishEpisodeEvicted(EpisodeEvictedMessage{EpisodeID: "e1"}); err != nil {
		t.Errorf("expected nil-bus publish to no-op, got %v", err)
	}
	if err := bus.PublishCircuitBreakerStateChange(CircuitBreakerStateChangeMessage{Provider: "local"}); err != nil {
		t.Errorf("expected nil-bus publish to no-op, got %v", err)
	}
}

func TestEventBusWithNilClientIsNoOp(t *testing.T) {
	bus := NewEventBus(nil)
	if err := bus.PublishEpisodeCompleted(EpisodeCompletedMessage{EpisodeID: "e1"}); err != nil {
		t.Errorf("expected wrapped-nil-client publish to no-op, got %v", err)
	}
}
