package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"streamgate/internal/events"
	"streamgate/internal/store"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestObserveCountsCrashes(t *testing.T) {
	bus := events.New()
	records := []store.Record{{ID: "s1", Status: store.StatusRunning}}
	unsub := Observe(bus, func() []store.Record { return records })
	defer unsub()

	before := testutil.ToFloat64(crashRestartsTotal.WithLabelValues("s1"))

	bus.Publish(events.ProcessExitEvent{StreamID: "s1", ExitCode: 1})
	waitFor(t, func() bool {
		return testutil.ToFloat64(crashRestartsTotal.WithLabelValues("s1")) == before+1
	}, "crash counter did not increment")

	// Requested exits are not crashes
	bus.Publish(events.ProcessExitEvent{StreamID: "s1", ExitCode: 0, Requested: true})
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(crashRestartsTotal.WithLabelValues("s1")); got != before+1 {
		t.Errorf("crash counter = %v, want %v", got, before+1)
	}
}

func TestObserveStatusGauge(t *testing.T) {
	bus := events.New()
	records := []store.Record{
		{ID: "a", Status: store.StatusRunning},
		{ID: "b", Status: store.StatusRunning},
		{ID: "c", Status: store.StatusFailed},
	}
	unsub := Observe(bus, func() []store.Record { return records })
	defer unsub()

	if got := testutil.ToFloat64(streamsByStatus.WithLabelValues("running")); got != 2 {
		t.Errorf("running gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(streamsByStatus.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed gauge = %v, want 1", got)
	}

	records = records[:1]
	bus.Publish(events.StreamRemovedEvent{StreamID: "b"})
	waitFor(t, func() bool {
		return testutil.ToFloat64(streamsByStatus.WithLabelValues("running")) == 1
	}, "gauge did not refresh on removal")
}

func TestTokenRefreshCounter(t *testing.T) {
	bus := events.New()
	unsub := Observe(bus, func() []store.Record { return nil })
	defer unsub()

	before := testutil.ToFloat64(tokenRefreshesTotal.WithLabelValues("error"))
	bus.Publish(events.TokenRefreshedEvent{StreamID: "s1", Error: "resolver timed out"})
	waitFor(t, func() bool {
		return testutil.ToFloat64(tokenRefreshesTotal.WithLabelValues("error")) == before+1
	}, "error refresh counter did not increment")
}

func TestTranscoderStats(t *testing.T) {
	SetTranscoderStats("s9", 12.5, 2048)
	if got := testutil.ToFloat64(transcoderCPU.WithLabelValues("s9")); got != 12.5 {
		t.Errorf("cpu gauge = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(transcoderRSS.WithLabelValues("s9")); got != 2048 {
		t.Errorf("rss gauge = %v, want 2048", got)
	}
	ClearTranscoderStats("s9")
}
