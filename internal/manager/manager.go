// Package manager orchestrates stream lifecycles: it validates and
// classifies sources, persists records, drives the process supervisor,
// and runs per-stream background work for token refresh and crash
// recovery.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"streamgate/internal/events"
	"streamgate/internal/resolver"
	"streamgate/internal/store"
	"streamgate/internal/supervisor"
)

// Options wire the manager's collaborators.
type Options struct {
	Store      store.Store
	Supervisor supervisor.Supervisor
	Resolver   resolver.Resolver
	Bus        *events.Bus
	Logger     *slog.Logger
	Policy     Policy

	// HLSRoot is the base directory; each stream writes segments into
	// HLSRoot/<id>.
	HLSRoot string
}

// Manager is the stream lifecycle orchestrator. All status mutations
// happen here, serialized per stream ID.
type Manager struct {
	store   store.Store
	sup     supervisor.Supervisor
	resolve resolver.Resolver
	bus     *events.Bus
	logger  *slog.Logger
	policy  Policy
	hlsRoot string
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	addMu sync.Mutex // serializes duplicate check + insert on AddStream

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	tasks   map[string]*streamTask
	crashes map[string][]time.Time // unrequested exits per stream

	unsub func()
}

// streamTask holds the cancellation scope for one stream's background
// work: its token-refresh loop and any pending restart backoff.
type streamTask struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a manager and subscribes it to supervisor exit events.
func New(opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:   opts.Store,
		sup:     opts.Supervisor,
		resolve: opts.Resolver,
		bus:     opts.Bus,
		logger:  opts.Logger,
		policy:  opts.Policy.withDefaults(),
		hlsRoot: opts.HLSRoot,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		locks:   make(map[string]*sync.Mutex),
		tasks:   make(map[string]*streamTask),
		crashes: make(map[string][]time.Time),
	}
	m.unsub = events.Subscribe(m.bus, func(e events.ProcessExitEvent) {
		go m.handleExit(e)
	})
	return m
}

// Recover loads persisted state and brings direct streams back up.
// Platform streams stay stopped: their tokens are assumed expired and
// need an explicit restart. A corrupt state file degrades to an empty
// store.
func (m *Manager) Recover() {
	if err := m.store.Load(); err != nil {
		m.logger.Error("State file unreadable, starting with empty store",
			"code", CodePersistenceFailed, "error", err)
	}

	for _, rec := range m.store.List() {
		if rec.Kind != resolver.KindDirect {
			m.logger.Info("Platform stream loaded as stopped, restart to resume", "stream_id", rec.ID)
			continue
		}
		m.wg.Add(1)
		go func(id string) {
			defer m.wg.Done()
			if _, err := m.RestartStream(m.ctx, id); err != nil {
				m.logger.Error("Failed to restore stream", "stream_id", id, "error", err)
			}
		}(rec.ID)
	}
}

// Close stops all background work and supervised processes.
func (m *Manager) Close() {
	m.cancel()
	if m.unsub != nil {
		m.unsub()
	}
	m.sup.StopAll()
	m.wg.Wait()
}

// AddStream registers a new stream and starts its transcoder. Platform
// URLs are resolved synchronously before the record exists.
func (m *Manager) AddStream(ctx context.Context, name, sourceURL string) (store.Record, error) {
	kind := resolver.Classify(sourceURL)
	if kind == resolver.KindInvalid {
		return store.Record{}, newError(CodeInvalidURL, "unsupported or malformed URL %q", sourceURL)
	}

	resolved := sourceURL
	var lastRefresh time.Time
	if kind == resolver.KindPlatform {
		r, err := m.resolve.Resolve(ctx, sourceURL)
		if err != nil {
			return store.Record{}, wrapError(CodeResolutionFailed, err, "could not resolve %q", sourceURL)
		}
		resolved = r
		lastRefresh = m.now()
	}

	if name == "" {
		name = deriveName(sourceURL)
	}

	m.addMu.Lock()
	for _, existing := range m.store.List() {
		if existing.SourceURL == sourceURL {
			m.addMu.Unlock()
			return store.Record{}, newError(CodeAlreadyExists, "stream for %q already exists as %s", sourceURL, existing.ID)
		}
	}

	id := shortuuid.New()
	rec := store.Record{
		ID:            id,
		Name:          name,
		SourceURL:     sourceURL,
		ResolvedURL:   resolved,
		Kind:          kind,
		Status:        store.StatusStarting,
		OutputDir:     filepath.Join(m.hlsRoot, id),
		CreatedAt:     m.now(),
		LastRefreshAt: lastRefresh,
	}
	m.persist(rec)
	m.addMu.Unlock()

	unlock := m.lockStream(id)
	defer unlock()

	m.bus.Publish(events.StreamAddedEvent{
		StreamID:  id,
		Name:      name,
		Kind:      string(kind),
		SourceURL: sourceURL,
		Timestamp: m.timestamp(),
	})

	if err := m.startProcess(rec); err != nil {
		rec.Status = store.StatusFailed
		m.persist(rec)
		m.publishStatus(rec, "transcoder failed to start")
		return rec, wrapError(CodeLaunchFailed, err, "transcoder failed to start for %s", id)
	}

	rec.Status = store.StatusRunning
	m.persist(rec)
	m.publishStatus(rec, "started")
	m.startTasks(rec)
	return rec, nil
}

// RemoveStream stops the stream's transcoder, cancels its background
// work, and deletes the record. The output directory is retained.
func (m *Manager) RemoveStream(id string) error {
	unlock := m.lockStream(id)
	defer unlock()

	if _, ok := m.store.Get(id); !ok {
		m.mu.Lock()
		delete(m.locks, id)
		m.mu.Unlock()
		return newError(CodeNotFound, "no stream %s", id)
	}

	m.cancelTask(id)
	if err := m.sup.Stop(id); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		m.logger.Warn("Failed to stop transcoder on remove", "stream_id", id, "error", err)
	}

	if err := m.store.Remove(id); err != nil {
		m.logger.Error("State persist failed", "code", CodePersistenceFailed, "stream_id", id, "error", err)
	}

	// IDs are never reused, so the lock entry can go with the record.
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	m.bus.Publish(events.StreamRemovedEvent{StreamID: id, Timestamp: m.timestamp()})
	m.logger.Info("Stream removed", "stream_id", id)
	return nil
}

// RestartStream replaces the stream's transcoder process, keeping id,
// name, and source URL. Platform streams re-resolve their token first.
// An explicit restart resets the crash history.
func (m *Manager) RestartStream(ctx context.Context, id string) (store.Record, error) {
	unlock := m.lockStream(id)
	defer unlock()

	rec, ok := m.store.Get(id)
	if !ok {
		return store.Record{}, newError(CodeNotFound, "no stream %s", id)
	}

	if rec.Kind == resolver.KindPlatform {
		resolved, err := m.resolve.Resolve(ctx, rec.SourceURL)
		if err != nil {
			return rec, wrapError(CodeResolutionFailed, err, "could not re-resolve %q", rec.SourceURL)
		}
		rec.ResolvedURL = resolved
		rec.LastRefreshAt = m.now()
	}

	m.cancelTask(id)
	if err := m.sup.Stop(id); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		m.logger.Warn("Failed to stop transcoder on restart", "stream_id", id, "error", err)
	}

	m.mu.Lock()
	m.crashes[id] = nil
	m.mu.Unlock()

	rec.RestartCount = 0
	rec.Status = store.StatusStarting
	m.persist(rec)
	m.publishStatus(rec, "restarting")

	if err := m.startProcess(rec); err != nil {
		rec.Status = store.StatusFailed
		m.persist(rec)
		m.publishStatus(rec, "transcoder failed to start")
		return rec, wrapError(CodeLaunchFailed, err, "transcoder failed to start for %s", id)
	}

	rec.Status = store.StatusRunning
	m.persist(rec)
	m.publishStatus(rec, "restarted")
	m.startTasks(rec)
	return rec, nil
}

// ListStreams returns all records in insertion order. Never blocks on
// in-flight start/stop work.
func (m *Manager) ListStreams() []store.Record {
	return m.store.List()
}

// GetStream returns one record by ID.
func (m *Manager) GetStream(id string) (store.Record, error) {
	rec, ok := m.store.Get(id)
	if !ok {
		return store.Record{}, newError(CodeNotFound, "no stream %s", id)
	}
	return rec, nil
}

// Stats returns live process stats for a running stream.
func (m *Manager) Stats(id string) (supervisor.Stats, error) {
	if _, ok := m.store.Get(id); !ok {
		return supervisor.Stats{}, newError(CodeNotFound, "no stream %s", id)
	}
	stats, err := m.sup.Stats(id)
	if err != nil {
		return supervisor.Stats{}, err
	}
	return stats, nil
}

// startProcess asks the supervisor to launch the stream's transcoder.
// Must hold the stream lock.
func (m *Manager) startProcess(rec store.Record) error {
	return m.sup.Start(rec.ID, supervisor.StartSpec{
		InputURL:     rec.ResolvedURL,
		OutputDir:    rec.OutputDir,
		UseBrowserUA: rec.Kind == resolver.KindPlatform,
	})
}

func (m *Manager) persist(rec store.Record) {
	if err := m.store.Upsert(rec); err != nil {
		m.logger.Error("State persist failed", "code", CodePersistenceFailed, "stream_id", rec.ID, "error", err)
	}
}

func (m *Manager) publishStatus(rec store.Record, reason string) {
	m.bus.Publish(events.StreamStatusEvent{
		StreamID:  rec.ID,
		Status:    string(rec.Status),
		Reason:    reason,
		Timestamp: m.timestamp(),
	})
}

func (m *Manager) timestamp() string {
	return m.now().UTC().Format(time.RFC3339)
}

// lockStream serializes operations on one stream ID and returns the
// unlock function.
func (m *Manager) lockStream(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

var namePattern = regexp.MustCompile(`^https?://`)

// deriveName extracts a readable label from a URL when the caller did
// not provide one.
func deriveName(url string) string {
	name := namePattern.ReplaceAllString(url, "")
	name, _, _ = strings.Cut(name, "?")
	parts := strings.Split(strings.TrimRight(name, "/"), "/")
	if len(parts) > 1 {
		name = parts[len(parts)-1]
	} else {
		name = parts[0]
	}
	name = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}
	if name == "" {
		return "Unnamed Stream"
	}
	return name
}
