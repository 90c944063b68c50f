package events

// Event type identifiers for kelindar/event.
const (
	TypeProcessExit uint32 = iota + 1
	TypeStreamAdded
	TypeStreamRemoved
	TypeStreamStatus
	TypeTokenRefreshed
	TypeLogEntry
)

// Event is the interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessExitEvent is published by the supervisor when a transcoder process
// exits. Requested distinguishes an operator-initiated stop from a crash.
type ProcessExitEvent struct {
	StreamID  string `json:"stream_id"`
	ExitCode  int    `json:"exit_code"`
	Requested bool   `json:"requested"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for ProcessExitEvent.
func (e ProcessExitEvent) Type() uint32 { return TypeProcessExit }

// StreamAddedEvent is published when a stream is registered.
type StreamAddedEvent struct {
	StreamID  string `json:"stream_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind" example:"direct" doc:"Stream kind: direct or platform"`
	SourceURL string `json:"source_url"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StreamAddedEvent.
func (e StreamAddedEvent) Type() uint32 { return TypeStreamAdded }

// StreamRemovedEvent is published when a stream is deleted.
type StreamRemovedEvent struct {
	StreamID  string `json:"stream_id"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StreamRemovedEvent.
func (e StreamRemovedEvent) Type() uint32 { return TypeStreamRemoved }

// StreamStatusEvent is published on every stream status transition.
type StreamStatusEvent struct {
	StreamID  string `json:"stream_id"`
	Status    string `json:"status" example:"running" doc:"New stream status"`
	Reason    string `json:"reason,omitempty" doc:"Human-readable transition reason"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StreamStatusEvent.
func (e StreamStatusEvent) Type() uint32 { return TypeStreamStatus }

// TokenRefreshedEvent is published after a scheduled or manual token
// re-resolution attempt for a platform stream.
type TokenRefreshedEvent struct {
	StreamID  string `json:"stream_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for TokenRefreshedEvent.
func (e TokenRefreshedEvent) Type() uint32 { return TypeTokenRefreshed }

// LogEntryEvent carries a log line to SSE subscribers.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
