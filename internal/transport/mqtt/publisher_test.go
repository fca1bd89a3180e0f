package mqtt

import (
	"errors"
	"testing"

	"github.com/achupryn/atvbridge/internal/tv"
)

func TestPublishUpdateNotConnected(t *testing.T) {
	publisher := NewPublisher("tcp://localhost:1883", "atvbridge-test", "atvbridge/test")

	err := publisher.PublishUpdate(tv.Update{Available: true, State: tv.StatePlaying})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before Connect, got %v", err)
	}
}

func TestTopics(t *testing.T) {
	publisher := NewPublisher("tcp://localhost:1883", "atvbridge-test", "atvbridge/living-room")

	if got := publisher.stateTopic(); got != "atvbridge/living-room/state" {
		t.Errorf("state topic = %q", got)
	}
	if got := publisher.availabilityTopic(); got != "atvbridge/living-room/availability" {
		t.Errorf("availability topic = %q", got)
	}
	if got := publisher.statusTopic(); got != "atvbridge/living-room/bridge/status" {
		t.Errorf("status topic = %q", got)
	}
}
