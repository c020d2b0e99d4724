package replan

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/capitan"
	capitantesting "github.com/zoobzio/capitan/testing"
)

// getStringField extracts a string field value from a captured event.
func getStringField(event capitantesting.CapturedEvent, keyName string) string {
	for _, f := range event.Fields {
		if f.Key().Name() == keyName {
			if v, ok := f.Value().(string); ok {
				return v
			}
		}
	}
	return ""
}

// getIntField extracts an int field value from a captured event.
func getIntField(event capitantesting.CapturedEvent, keyName string) int {
	for _, f := range event.Fields {
		if f.Key().Name() == keyName {
			if v, ok := f.Value().(int); ok {
				return v
			}
		}
	}
	return 0
}

// TestStreamRetryEvent verifies StreamRetry emission when a round runs out.
func TestStreamRetryEvent(t *testing.T) {
	capture := capitantesting.NewEventCapture()
	listener := capitan.Hook(StreamRetry, capture.Handler())
	defer listener.Close()

	g := Compose(counting(), func(context.Context, int) (int, bool) { return 0, false },
		ComposeOptions{Name: "retry-event", MaxAttempts: 4, MaxSuccesses: -1, MaxFailures: -1})
	g.Next(context.Background())

	if !capture.WaitForCount(1, time.Second) {
		t.Fatal("expected StreamRetry event")
	}
	var found bool
	for _, e := range capture.Events() {
		if getStringField(e, FieldStream.Name()) != "retry-event" {
			continue
		}
		found = true
		if got := getIntField(e, FieldMaxAttempts.Name()); got != 4 {
			t.Errorf("expected max_attempts 4, got %d", got)
		}
	}
	if !found {
		t.Error("expected an event for stream retry-event")
	}
}

// TestBeliefUpdatedEvent verifies the placeholder update is reported.
func TestBeliefUpdatedEvent(t *testing.T) {
	capture := capitantesting.NewEventCapture()
	listener := capitan.Hook(BeliefUpdated, capture.Handler())
	defer listener.Close()

	rp := &RelPose{Body: "signal-block", Support: "counter"}
	dist := &SurfaceDist{Body: "signal-block", Surface: "counter", Dist: UniformDist([]*RelPose{rp, {Body: "signal-block"}})}
	got, err := UpdateBelief(context.Background(), NewBelief(dist), "signal-block", dist, "counter", Observation{Object: "signal-block", Pose: rp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != rp {
		t.Error("expected the observed pose back")
	}

	if !capture.WaitForCount(1, time.Second) {
		t.Fatal("expected BeliefUpdated event")
	}
	events := capture.Events()
	if obj := getStringField(events[0], FieldObject.Name()); obj != "signal-block" {
		t.Errorf("expected object 'signal-block', got %q", obj)
	}
	if p := getStringField(events[0], FieldProbability.Name()); p != "0.5" {
		t.Errorf("expected probability '0.5', got %q", p)
	}
	if ph := getStringField(events[0], FieldPlaceholder.Name()); ph != "true" {
		t.Errorf("expected placeholder 'true', got %q", ph)
	}
}

func TestUpdateBeliefRejectsMismatch(t *testing.T) {
	_, err := UpdateBelief(context.Background(), nil, "block", nil, "counter", Observation{Object: "cup", Pose: &RelPose{}})
	if err == nil {
		t.Fatal("expected a contract violation")
	}
}

func TestFormatFloat(t *testing.T) {
	if got := formatFloat(0.25); got != "0.25" {
		t.Errorf("expected '0.25', got %q", got)
	}
	if got := formatFloat(1.0 / 3); got != "0.333333" {
		t.Errorf("expected '0.333333', got %q", got)
	}
}
