package events

import (
	"testing"
	"time"

	"github.com/mlpilot/mlpilot/internal/run"
)

func TestBus_TopicDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	runCh := bus.Subscribe(TopicRun, 4)
	taskCh := bus.Subscribe(TopicTask, 4)

	bus.Publish(TopicRun, PhaseChangedEvent{
		Run:  "run-1",
		From: run.PhaseValidating,
		To:   run.PhasePlanning,
	})

	select {
	case ev := <-runCh:
		if ev.EventType() != EventTypePhaseChanged {
			t.Errorf("expected phase event, got %s", ev.EventType())
		}
		if ev.RunID() != "run-1" {
			t.Errorf("expected run-1, got %s", ev.RunID())
		}
	case <-time.After(time.Second):
		t.Fatal("run subscriber received nothing")
	}

	select {
	case ev := <-taskCh:
		t.Fatalf("task subscriber received run event: %v", ev)
	default:
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	allCh := bus.SubscribeAll(4)

	bus.Publish(TopicRun, RunCompletedEvent{Run: "run-1", PlanID: "plan-1"})
	bus.Publish(TopicTask, TaskDispatchedEvent{Run: "run-1", TaskID: "t-1"})

	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
		case <-time.After(time.Second):
			t.Fatalf("all-topic subscriber missed event %d", i)
		}
	}
}

func TestBus_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicRun, 1)
	bus.Publish(TopicRun, RunCompletedEvent{Run: "run-1"})

	done := make(chan struct{})
	go func() {
		bus.Publish(TopicRun, RunCompletedEvent{Run: "run-2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}

	if ev := <-ch; ev.RunID() != "run-1" {
		t.Errorf("expected the buffered event to survive, got %s", ev.RunID())
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(TopicRun, 1)

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("expected subscriber channel closed")
	}

	// Publishing after close must not panic.
	bus.Publish(TopicRun, RunCompletedEvent{Run: "run-1"})
}
