package events

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan ProcessExitEvent) ProcessExitEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return ProcessExitEvent{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	got := make(chan ProcessExitEvent, 1)

	unsub := Subscribe(bus, func(e ProcessExitEvent) { got <- e })
	defer unsub()

	bus.Publish(ProcessExitEvent{StreamID: "s1", ExitCode: 1})

	e := waitFor(t, got)
	if e.StreamID != "s1" || e.ExitCode != 1 {
		t.Errorf("received %+v", e)
	}
}

func TestSubscribeReceivesOnlyMatchingType(t *testing.T) {
	bus := New()
	got := make(chan ProcessExitEvent, 2)

	unsub := Subscribe(bus, func(e ProcessExitEvent) { got <- e })
	defer unsub()

	bus.Publish(StreamAddedEvent{StreamID: "other"})
	bus.Publish(ProcessExitEvent{StreamID: "s2"})

	e := waitFor(t, got)
	if e.StreamID != "s2" {
		t.Errorf("received %+v, want stream s2", e)
	}
	select {
	case extra := <-got:
		t.Errorf("unexpected extra event %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	got := make(chan ProcessExitEvent, 1)

	unsub := Subscribe(bus, func(e ProcessExitEvent) { got <- e })
	unsub()

	bus.Publish(ProcessExitEvent{StreamID: "s3"})

	select {
	case e := <-got:
		t.Errorf("received %+v after unsubscribe", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[StreamStatusEvent](bus, ch)
	defer unsub()

	for i := 0; i < 5; i++ {
		bus.Publish(StreamStatusEvent{StreamID: "s4", Status: "running"})
	}

	// At least one event arrives; overflow is silently dropped.
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered to channel")
	}
}
