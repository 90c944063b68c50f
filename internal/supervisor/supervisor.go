// Package supervisor runs one transcoder process per stream, watches
// segment output for stalls, and publishes exit events on the bus.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	gopsproc "github.com/shirou/gopsutil/v3/process"

	"streamgate/internal/events"
	"streamgate/internal/ffmpeg"
	"streamgate/internal/process"
)

var (
	// ErrAlreadyRunning is returned by Start when the stream already has
	// a live transcoder.
	ErrAlreadyRunning = errors.New("transcoder already running")

	// ErrNotRunning is returned when the stream has no live transcoder.
	ErrNotRunning = errors.New("transcoder not running")
)

// Options configure transcoder processes.
type Options struct {
	HLS             ffmpeg.HLSOptions
	GracefulTimeout time.Duration // SIGINT grace before SIGKILL, default 5s
	KillTimeout     time.Duration // wait after SIGKILL, default 5s
	StallTimeout    time.Duration // no segment activity before restart, 0 disables
	StartupGrace    time.Duration // extra slack before the first segment, default 30s
}

func (o Options) withDefaults() Options {
	if o.GracefulTimeout <= 0 {
		o.GracefulTimeout = 5 * time.Second
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = 5 * time.Second
	}
	if o.StallTimeout > 0 && o.StartupGrace <= 0 {
		o.StartupGrace = 30 * time.Second
	}
	return o
}

// StartSpec describes one transcoder launch.
type StartSpec struct {
	InputURL     string
	OutputDir    string
	UseBrowserUA bool // resolved platform URLs need a browser User-Agent
}

// Stats is a point-in-time snapshot of a running transcoder.
type Stats struct {
	PID        int           `json:"pid"`
	CPUPercent float64       `json:"cpu_percent"`
	MemoryRSS  uint64        `json:"memory_rss"`
	Uptime     time.Duration `json:"uptime"`
}

// Supervisor manages transcoder processes by stream ID.
type Supervisor interface {
	// Start launches a transcoder for the stream. Returns
	// ErrAlreadyRunning if one is still alive.
	Start(id string, spec StartSpec) error

	// Stop terminates the stream's transcoder and waits for it to
	// exit. The resulting exit event carries Requested=true.
	Stop(id string) error

	// IsAlive reports whether the stream has a live transcoder.
	IsAlive(id string) bool

	// Stats returns resource usage of the stream's transcoder.
	Stats(id string) (Stats, error)

	// StopAll terminates every running transcoder and waits.
	StopAll()
}

// managed tracks one running transcoder.
type managed struct {
	proc          *process.Process
	startedAt     time.Time
	stopRequested atomic.Bool
}

type ffmpegSupervisor struct {
	opts         Options
	bus          *events.Bus
	logger       *slog.Logger
	outputLogger *slog.Logger

	mu    sync.Mutex
	procs map[string]*managed
	wg    sync.WaitGroup
}

// New creates a transcoder supervisor. outputLogger receives the
// transcoder's own log lines (typically a module="ffmpeg" logger).
func New(opts Options, bus *events.Bus, logger, outputLogger *slog.Logger) Supervisor {
	return &ffmpegSupervisor{
		opts:         opts.withDefaults(),
		bus:          bus,
		logger:       logger,
		outputLogger: outputLogger,
		procs:        make(map[string]*managed),
	}
}

func (s *ffmpegSupervisor) Start(id string, spec StartSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.procs[id]; exists {
		select {
		case <-prev.proc.Done():
			// Exited but the exit handler has not removed it yet.
		default:
			return ErrAlreadyRunning
		}
	}

	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	hls := s.opts.HLS
	hls.UseBrowserUA = spec.UseBrowserUA
	argv := ffmpeg.BuildHLSArgs(spec.InputURL, spec.OutputDir, hls)

	proc := process.New(id, argv, s.logger)
	proc.SetTimeouts(s.opts.GracefulTimeout, s.opts.KillTimeout)
	if s.outputLogger != nil {
		proc.SetLogParser(s.outputLogger.With("stream_id", id), ffmpeg.ParseLogLevel)
	}

	if err := proc.Start(); err != nil {
		return err
	}

	m := &managed{proc: proc, startedAt: time.Now()}
	s.procs[id] = m

	if s.opts.StallTimeout > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchSegments(id, spec.OutputDir, m)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.awaitExit(id, m)
	}()

	return nil
}

// awaitExit blocks until the transcoder exits, then removes it from the
// table and publishes the exit event.
func (s *ffmpegSupervisor) awaitExit(id string, m *managed) {
	<-m.proc.Done()
	code := m.proc.ExitCode()

	s.mu.Lock()
	if s.procs[id] == m {
		delete(s.procs, id)
	}
	s.mu.Unlock()

	requested := m.stopRequested.Load()
	s.logger.Info("Transcoder exited", "stream_id", id, "exit_code", code, "requested", requested)

	s.bus.Publish(events.ProcessExitEvent{
		StreamID:  id,
		ExitCode:  code,
		Requested: requested,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *ffmpegSupervisor) Stop(id string) error {
	s.mu.Lock()
	m, exists := s.procs[id]
	s.mu.Unlock()

	if !exists {
		return ErrNotRunning
	}

	m.stopRequested.Store(true)
	m.proc.Stop()
	return nil
}

func (s *ffmpegSupervisor) IsAlive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.procs[id]
	if !exists {
		return false
	}
	select {
	case <-m.proc.Done():
		return false
	default:
		return true
	}
}

func (s *ffmpegSupervisor) Stats(id string) (Stats, error) {
	s.mu.Lock()
	m, exists := s.procs[id]
	s.mu.Unlock()

	if !exists {
		return Stats{}, ErrNotRunning
	}

	stats := Stats{
		PID:    m.proc.PID(),
		Uptime: time.Since(m.startedAt),
	}

	proc, err := gopsproc.NewProcess(int32(stats.PID))
	if err != nil {
		return stats, nil
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.MemoryRSS = mem.RSS
	}

	return stats, nil
}

func (s *ffmpegSupervisor) StopAll() {
	s.mu.Lock()
	running := make([]*managed, 0, len(s.procs))
	for _, m := range s.procs {
		running = append(running, m)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range running {
		wg.Add(1)
		go func(m *managed) {
			defer wg.Done()
			m.stopRequested.Store(true)
			m.proc.Stop()
		}(m)
	}
	wg.Wait()

	// Wait for exit events to flush.
	s.wg.Wait()
}
