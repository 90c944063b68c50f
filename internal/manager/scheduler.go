package manager

import (
	"context"
	"time"

	"streamgate/internal/events"
	"streamgate/internal/resolver"
	"streamgate/internal/store"
)

// startTasks (re)creates the stream's background task scope and, for
// platform streams, starts the token-refresh loop. Must hold the
// stream lock.
func (m *Manager) startTasks(rec store.Record) {
	m.mu.Lock()
	if t, ok := m.tasks[rec.ID]; ok {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.tasks[rec.ID] = &streamTask{ctx: ctx, cancel: cancel}
	m.mu.Unlock()

	if rec.Kind == resolver.KindPlatform {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.refreshLoop(ctx, rec.ID)
		}()
	}
}

// taskCtx returns the stream's current task context, creating a scope
// if none exists (a crashed stream restored at startup, for example).
func (m *Manager) taskCtx(id string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[id]; ok {
		return t.ctx
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.tasks[id] = &streamTask{ctx: ctx, cancel: cancel}
	return ctx
}

// cancelTask stops the stream's refresh loop and any pending backoff.
func (m *Manager) cancelTask(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[id]; ok {
		t.cancel()
		delete(m.tasks, id)
	}
	delete(m.crashes, id)
}

// handleExit reacts to an unrequested transcoder exit by applying the
// restart policy: exponential backoff, bounded attempts within a
// rolling window, then a terminal failed status.
func (m *Manager) handleExit(e events.ProcessExitEvent) {
	if e.Requested {
		return
	}
	id := e.StreamID

	unlock := m.lockStream(id)
	rec, ok := m.store.Get(id)
	if !ok || rec.Status == store.StatusStopped || rec.Status == store.StatusFailed {
		unlock()
		return
	}

	now := m.now()
	m.mu.Lock()
	crashes := append(m.crashes[id], now)
	pruned := crashes[:0]
	for _, t := range crashes {
		if now.Sub(t) <= m.policy.RestartWindow {
			pruned = append(pruned, t)
		}
	}
	m.crashes[id] = pruned
	attempt := len(pruned)
	m.mu.Unlock()

	if attempt > m.policy.MaxRestarts {
		m.logger.Error("Restart budget exhausted, giving up",
			"code", CodeCrashLoop, "stream_id", id, "exits_in_window", attempt)
		rec.Status = store.StatusFailed
		m.persist(rec)
		m.publishStatus(rec, "crash loop: restart budget exhausted")
		m.cancelTask(id)
		unlock()
		return
	}

	rec.RestartCount++
	rec.Status = store.StatusStarting
	m.persist(rec)
	m.publishStatus(rec, "crashed, restarting")

	delay := m.policy.backoffFor(attempt)
	ctx := m.taskCtx(id)
	unlock()

	m.logger.Info("Restarting after crash",
		"stream_id", id, "exit_code", e.ExitCode, "attempt", attempt, "backoff", delay)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	unlock = m.lockStream(id)
	defer unlock()

	rec, ok = m.store.Get(id)
	if !ok || rec.Status != store.StatusStarting {
		// Removed, stopped, or explicitly restarted while we waited.
		return
	}

	if err := m.startProcess(rec); err != nil {
		m.logger.Error("Restart attempt failed", "stream_id", id, "attempt", attempt, "error", err)
		// Feed the failure back through the same policy.
		go m.handleExit(events.ProcessExitEvent{StreamID: id, ExitCode: -1, Timestamp: m.timestamp()})
		return
	}

	rec.Status = store.StatusRunning
	m.persist(rec)
	m.publishStatus(rec, "recovered after crash")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.confirmRecovery(ctx, id)
	}()
}

// confirmRecovery resets the crash history once a restarted transcoder
// has stayed up for the confirmation period.
func (m *Manager) confirmRecovery(ctx context.Context, id string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.policy.RecoveryAfter):
	}

	if !m.sup.IsAlive(id) {
		return
	}

	unlock := m.lockStream(id)
	defer unlock()

	rec, ok := m.store.Get(id)
	if !ok || rec.Status != store.StatusRunning {
		return
	}

	m.mu.Lock()
	m.crashes[id] = nil
	m.mu.Unlock()

	if rec.RestartCount != 0 {
		rec.RestartCount = 0
		m.persist(rec)
	}
	m.logger.Info("Stream recovered", "stream_id", id)
}

// refreshLoop re-resolves a platform stream's token before it expires
// and swaps the transcoder onto the fresh URL. One loop per stream so
// a slow resolver call never delays other streams.
func (m *Manager) refreshLoop(ctx context.Context, id string) {
	for {
		rec, ok := m.store.Get(id)
		if !ok || rec.Kind != resolver.KindPlatform {
			return
		}

		wait := time.Until(m.policy.refreshDue(rec.LastRefreshAt))
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := m.refreshToken(ctx, id); err != nil {
			// Keep the stream running on its old URL and retry well
			// before the token expires.
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.policy.TokenMargin / 2):
			}
		}
	}
}

// refreshToken performs one resolve-and-swap. The resolver call runs
// outside the stream lock; only the process swap is serialized.
func (m *Manager) refreshToken(ctx context.Context, id string) error {
	rec, ok := m.store.Get(id)
	if !ok {
		return nil
	}

	resolved, err := m.resolve.Resolve(ctx, rec.SourceURL)
	if err != nil {
		m.logger.Warn("Token refresh failed, keeping current URL",
			"code", CodeResolutionFailed, "stream_id", id, "error", err)
		m.bus.Publish(events.TokenRefreshedEvent{
			StreamID: id, Success: false, Error: err.Error(), Timestamp: m.timestamp(),
		})
		return err
	}

	unlock := m.lockStream(id)
	defer unlock()

	rec, ok = m.store.Get(id)
	if !ok {
		return nil
	}

	rec.ResolvedURL = resolved
	rec.LastRefreshAt = m.now()
	m.persist(rec)

	if rec.Status == store.StatusRunning {
		if err := m.sup.Stop(id); err != nil {
			m.logger.Warn("Failed to stop transcoder for refresh", "stream_id", id, "error", err)
		}
		if err := m.startProcess(rec); err != nil {
			rec.Status = store.StatusFailed
			m.persist(rec)
			m.publishStatus(rec, "transcoder failed to start after token refresh")
			return wrapError(CodeLaunchFailed, err, "transcoder failed to start for %s", id)
		}
	}

	m.logger.Info("Token refreshed", "stream_id", id)
	m.bus.Publish(events.TokenRefreshedEvent{
		StreamID: id, Success: true, Timestamp: m.timestamp(),
	})
	return nil
}
