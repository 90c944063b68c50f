package logging

import (
	"sync"
	"time"
)

// Entry is a single log line held in the ring buffer.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer is a fixed-capacity circular buffer of log entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]Entry, size)}
}

// Write appends an entry, overwriting the oldest when full.
func (b *RingBuffer) Write(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Snapshot returns all buffered entries in chronological order.
func (b *RingBuffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}
	out := make([]Entry, 0, b.count)
	if b.count < len(b.entries) {
		out = append(out, b.entries[:b.count]...)
	} else {
		out = append(out, b.entries[b.head:]...)
		out = append(out, b.entries[:b.head]...)
	}
	return out
}

// Len returns the number of buffered entries.
func (b *RingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
