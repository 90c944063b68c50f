package process

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProcess creates a Process with short timeouts for testing.
func newTestProcess(argv ...string) *Process {
	p := New("test", argv, testLogger())
	p.SetTimeouts(100*time.Millisecond, 100*time.Millisecond)
	return p
}

// waitDone waits for the process to exit, fails the test on timeout.
func waitDone(t *testing.T, p *Process, timeout time.Duration) int {
	t.Helper()
	select {
	case <-p.Done():
		return p.ExitCode()
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
		return -1
	}
}

func TestProcessExit(t *testing.T) {
	p := newTestProcess("true")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if code := waitDone(t, p, 1*time.Second); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestProcessExitCode(t *testing.T) {
	p := newTestProcess("sh", "-c", "exit 42")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if code := waitDone(t, p, 1*time.Second); code != 42 {
		t.Errorf("exit code = %d, want 42", code)
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess("sh", "-c", "trap 'exit 0' INT TERM; while :; do sleep 0.1; done")
	p.SetTimeouts(500*time.Millisecond, 100*time.Millisecond)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if code := p.Stop(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess("sh", "-c", "trap '' INT; sleep 10")
	p.SetTimeouts(50*time.Millisecond, 100*time.Millisecond)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if code := p.Stop(); code != KilledExitCode {
		t.Errorf("exit code = %d, want %d", code, KilledExitCode)
	}
}

func TestStopAfterExit(t *testing.T) {
	p := newTestProcess("true")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 1*time.Second)

	// Stop after the process exited must not block or panic.
	if code := p.Stop(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestStopTwice(t *testing.T) {
	p := newTestProcess("sleep", "10")
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	p.Stop() // no-op
}

func TestStartEmptyCommand(t *testing.T) {
	p := newTestProcess()
	if err := p.Start(); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestStartNonExistentBinary(t *testing.T) {
	p := newTestProcess("/nonexistent/command/that/does/not/exist")
	if err := p.Start(); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestPID(t *testing.T) {
	p := newTestProcess("sleep", "10")
	if p.PID() != 0 {
		t.Error("PID before start should be 0")
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.PID() == 0 {
		t.Error("PID after start should be non-zero")
	}
	p.Stop()
}

func TestOutputHandler(t *testing.T) {
	lines := make(chan string, 8)
	p := newTestProcess("sh", "-c", "echo line1; echo line2")
	p.SetOutputHandler(chanHandler(lines))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 1*time.Second)

	if got := len(lines); got < 2 {
		t.Errorf("expected at least 2 lines, got %d", got)
	}
}

func TestLogParserLevels(t *testing.T) {
	p := newTestProcess("sh", "-c", `echo "[error] err"; echo "[warning] warn"; echo "[debug] dbg"; echo plain`)
	p.SetLogParser(testLogger(), func(line string) (string, string) {
		if len(line) > 2 && line[0] == '[' {
			end := 1
			for end < len(line) && line[end] != ']' {
				end++
			}
			return line[1:end], line
		}
		return "info", line
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if code := waitDone(t, p, 1*time.Second); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

type chanHandler chan string

func (h chanHandler) HandleLine(_, line string) {
	select {
	case h <- line:
	default:
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ffmpeg -i input.mp4 out.m3u8", []string{"ffmpeg", "-i", "input.mp4", "out.m3u8"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`echo hello\ world`, []string{"echo", "hello world"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{"", nil},
	}

	for _, tc := range tests {
		got, err := Split(tc.in)
		if err != nil {
			t.Errorf("Split(%q) error: %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("Split(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("Split(%q) = %v, want %v", tc.in, got, tc.want)
				break
			}
		}
	}
}

func TestSplitUnclosedQuote(t *testing.T) {
	if _, err := Split(`echo "unclosed`); err == nil {
		t.Error("expected error for unclosed quote")
	}
}
