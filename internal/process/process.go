package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// KilledExitCode is reported when the subprocess had to be force-killed
// after the graceful shutdown timeout (128 + SIGKILL).
const KilledExitCode = 137

// OutputHandler receives output lines from the subprocess.
// Implementations can forward output to the event bus, keep a tail
// buffer for diagnostics, etc.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from process output.
type LogParser func(line string) (level, msg string)

// Process supervises a single subprocess.
type Process struct {
	id   string
	argv []string
	cmd  *exec.Cmd

	logger        *slog.Logger
	outputLogger  *slog.Logger // logger for process output (nil = use logger)
	logParser     LogParser    // parses process output for log level (nil = no parsing)
	outputHandler OutputHandler

	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	exitCode int // valid once done is closed
}

// New creates a process supervisor for the given argv. The first element
// is the binary, the rest its arguments.
func New(id string, argv []string, logger *slog.Logger) *Process {
	return &Process{
		id:              id,
		argv:            argv,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="ffmpeg").
// The parser extracts log level from process-specific output formats.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.outputLogger = logger
	p.logParser = parser
}

// SetOutputHandler sets a handler receiving each output line.
func (p *Process) SetOutputHandler(handler OutputHandler) {
	p.outputHandler = handler
}

// SetTimeouts overrides the graceful shutdown and kill timeouts.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Start launches the subprocess and begins streaming its output.
// It returns immediately; exit is reported via Done and ExitCode.
func (p *Process) Start() error {
	if len(p.argv) == 0 {
		return fmt.Errorf("empty command")
	}

	p.cmd = exec.Command(p.argv[0], p.argv[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.argv[0], err)
	}

	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "binary", p.argv[0])

	outputDone := make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- p.cmd.Wait()
	}()

	go p.monitor(waitErr, outputDone)
	return nil
}

// monitor waits for the subprocess to exit or for a stop request,
// escalating SIGINT to SIGKILL on timeout. It closes done when the
// process is fully finished and output is drained.
func (p *Process) monitor(waitErr <-chan error, outputDone <-chan struct{}) {
	select {
	case err := <-waitErr:
		p.exitCode = exitCodeFromError(err)
		if err != nil && p.exitCode == 1 {
			p.logger.Error("Process exited with error", "id", p.id, "error", err)
		}
	case <-p.stopCh:
		p.sendStopSignal()
		select {
		case err := <-waitErr:
			p.exitCode = exitCodeFromError(err)
		case <-time.After(p.gracefulTimeout):
			p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
			p.kill()
			select {
			case <-waitErr:
			case <-time.After(p.killTimeout):
				p.logger.Error("Process did not exit after kill signal", "id", p.id)
			}
			p.exitCode = KilledExitCode
		}
	}

	<-outputDone
	<-outputDone
	close(p.done)
}

// Stop requests shutdown and blocks until the process has exited.
// Safe to call multiple times and after the process already exited.
func (p *Process) Stop() int {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done
	return p.exitCode
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the process exit code. Only valid after Done is closed.
func (p *Process) ExitCode() int {
	return p.exitCode
}

// PID returns the subprocess pid, or 0 if it never started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Sending SIGINT to process", "id", p.id, "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

func (p *Process) kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil {
		// "os: process already finished" is OK - process exited between timeout and kill
		if !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "id", p.id, "error", err)
		}
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput streams output from the subprocess into the configured
// logger, using the LogParser to extract log levels when set.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}
