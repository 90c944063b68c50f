package logging

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Write(Entry{Message: fmt.Sprintf("msg-%d", i)})
	}

	if rb.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rb.Len())
	}

	got := rb.Snapshot()
	want := []string{"msg-2", "msg-3", "msg-4"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("entry %d = %q, want %q", i, got[i].Message, w)
		}
	}
}

func TestRingBufferEmpty(t *testing.T) {
	rb := NewRingBuffer(4)
	if got := rb.Snapshot(); got != nil {
		t.Errorf("Snapshot() on empty buffer = %v, want nil", got)
	}
}

func TestBufferHandlerCapturesModuleAndAttrs(t *testing.T) {
	rb := NewRingBuffer(10)
	var cbEntries []Entry
	h := NewBufferHandler(rb, slog.LevelInfo, func(e Entry) { cbEntries = append(cbEntries, e) })

	logger := slog.New(h).With("module", "supervisor")
	logger.Info("process started", "stream_id", "abc123", "pid", 42)

	entries := rb.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("buffered %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "supervisor" {
		t.Errorf("Module = %q, want supervisor", e.Module)
	}
	if e.Message != "process started" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Attributes["stream_id"] != "abc123" {
		t.Errorf("stream_id attr = %v", e.Attributes["stream_id"])
	}
	if len(cbEntries) != 1 {
		t.Errorf("callback invoked %d times, want 1", len(cbEntries))
	}
}

func TestBufferHandlerLevelFilter(t *testing.T) {
	rb := NewRingBuffer(10)
	h := NewBufferHandler(rb, slog.LevelWarn, nil)

	logger := slog.New(h)
	logger.Info("filtered")
	logger.Warn("kept")

	entries := rb.Snapshot()
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Fatalf("entries = %+v, want only the warn line", entries)
	}
}

func TestBufferHandlerFlattensGroups(t *testing.T) {
	rb := NewRingBuffer(10)
	h := NewBufferHandler(rb, slog.LevelDebug, nil)

	logger := slog.New(h)
	logger.Info("tick", slog.Group("backoff", slog.Int("attempt", 2)), "took", 5*time.Millisecond)

	e := rb.Snapshot()[0]
	if e.Attributes["backoff.attempt"] != int64(2) {
		t.Errorf("backoff.attempt = %v (%T)", e.Attributes["backoff.attempt"], e.Attributes["backoff.attempt"])
	}
	if e.Attributes["took"] != "5ms" {
		t.Errorf("took = %v", e.Attributes["took"])
	}
}

func TestFanoutHandlerDuplicates(t *testing.T) {
	rb1 := NewRingBuffer(5)
	rb2 := NewRingBuffer(5)
	f := NewFanoutHandler(NewBufferHandler(rb1, slog.LevelInfo, nil), NewBufferHandler(rb2, slog.LevelInfo, nil))

	if err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if rb1.Len() != 1 || rb2.Len() != 1 {
		t.Errorf("buffers have %d/%d entries, want 1/1", rb1.Len(), rb2.Len())
	}
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger("testmodule")
	b := GetLogger("testmodule")
	if a != b {
		t.Error("GetLogger returned different instances for the same module")
	}
}
