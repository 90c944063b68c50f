// Package logging provides slog-based structured logging with per-module
// levels, an in-memory ring buffer for the SSE log stream, and systemd
// journal output when running under journald.
//
// Initialize once at startup, then grab module loggers anywhere:
//
//	logging.Initialize(logging.Config{Level: "info", Format: "text"})
//	logger := logging.GetLogger("manager").With("stream_id", id)
//
// Module-specific levels override the global level:
//
//	[logging]
//	level = "info"
//	[logging.modules]
//	supervisor = "debug"
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const bufferCapacity = 1000

// Config holds logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"` // "text" or "json"
	Modules map[string]string `toml:"modules"`
}

// EntryCallback is invoked for every buffered log entry. It lets the event
// bus forward logs to SSE clients without an import cycle.
type EntryCallback func(entry Entry)

var (
	mu           sync.RWMutex
	cfg          Config
	initialized  bool
	buffer       *RingBuffer
	entryCb      EntryCallback
	moduleLogs   = make(map[string]*slog.Logger)
	moduleLevels = make(map[string]*slog.LevelVar)
)

// Initialize sets up the logging system. Loggers created before Initialize
// are rebuilt so they pick up the configured format, levels, and buffer.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	initialized = true
	buffer = NewRingBuffer(bufferCapacity)

	for module, lv := range moduleLevels {
		lv.Set(levelFor(module))
		moduleLogs[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}

	root := &slog.LevelVar{}
	root.Set(levelFor(""))
	slog.SetDefault(slog.New(newHandler(cfg.Format, root)))
}

// GetLogger returns the logger for a module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := moduleLogs[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLogs[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	lv.Set(levelFor(module))

	format := "text"
	if initialized {
		format = cfg.Format
	}
	l := slog.New(newHandler(format, lv)).With("module", module)
	moduleLogs[module] = l
	moduleLevels[module] = lv
	return l
}

// SetLevel changes a module's level at runtime.
func SetLevel(module, level string) {
	mu.Lock()
	defer mu.Unlock()
	if lv, ok := moduleLevels[module]; ok {
		lv.Set(parseLevel(level))
	}
}

// Buffer returns the ring buffer of recent log entries.
func Buffer() *RingBuffer {
	mu.RLock()
	defer mu.RUnlock()
	return buffer
}

// SetEntryCallback registers a callback invoked for each new log entry.
func SetEntryCallback(cb EntryCallback) {
	mu.Lock()
	defer mu.Unlock()
	entryCb = cb
}

// levelFor resolves the effective level for a module (caller holds mu).
func levelFor(module string) slog.Level {
	if !initialized {
		return slog.LevelInfo
	}
	if module != "" {
		if s, ok := cfg.Modules[module]; ok {
			return parseLevel(s)
		}
	}
	return parseLevel(cfg.Level)
}

// newHandler builds the handler chain: stdout, journald when available, and
// the ring buffer (caller holds mu).
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := []slog.Handler{stdout}
	if journalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	if buffer != nil {
		handlers = append(handlers, NewBufferHandler(buffer, level, func(e Entry) {
			mu.RLock()
			cb := entryCb
			mu.RUnlock()
			if cb != nil {
				cb(e)
			}
		}))
	}

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewFanoutHandler(handlers...)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
