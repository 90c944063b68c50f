package supervisor

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchSegments restarts the transcoder when segment output stalls. A
// transcoder whose upstream died sometimes keeps running without
// producing segments; filesystem activity in the output dir is the
// liveness signal.
func (s *ffmpegSupervisor) watchSegments(id, dir string, m *managed) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("Segment watcher unavailable", "stream_id", id, "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		s.logger.Warn("Failed to watch output dir", "stream_id", id, "error", err)
		return
	}

	interval := s.opts.StallTimeout / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	started := time.Now()
	lastActivity := started

	for {
		select {
		case <-m.proc.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				if isSegmentFile(ev.Name) {
					lastActivity = time.Now()
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Segment watcher error", "stream_id", id, "error", err)

		case <-ticker.C:
			limit := s.opts.StallTimeout
			if since := time.Since(started); since < s.opts.StartupGrace {
				// The first segment can take a while on slow sources.
				limit = s.opts.StartupGrace
			}
			if time.Since(lastActivity) > limit {
				s.logger.Warn("No segment activity, stopping transcoder",
					"stream_id", id, "stalled_for", time.Since(lastActivity).Round(time.Second))
				// Counts as a crash, not a requested stop, so the
				// manager's restart policy kicks in.
				m.proc.Stop()
				return
			}
		}
	}
}

func isSegmentFile(name string) bool {
	return strings.HasSuffix(name, ".ts") || strings.HasSuffix(name, ".m3u8")
}
