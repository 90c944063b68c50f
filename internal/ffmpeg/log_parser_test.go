package ffmpeg

import "testing"

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"plain info", "[info] Opening input", "info", "Opening input"},
		{"error", "[error] Connection refused", "error", "Connection refused"},
		{"warning", "[warning] deprecated pixel format", "warning", "deprecated pixel format"},
		{"component then level", "[hls @ 0x5612] [info] Opening segment for writing", "info", "[hls @ 0x5612] Opening segment for writing"},
		{"component only", "[hls @ 0x5612] Opening segment", "info", "[hls @ 0x5612] Opening segment"},
		{"no bracket", "frame=  120 fps= 30", "info", "frame=  120 fps= 30"},
		{"empty", "", "info", ""},
		{"unterminated bracket", "[info incomplete", "info", "[info incomplete"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			level, msg := ParseLogLevel(tc.line)
			if level != tc.wantLevel {
				t.Errorf("level = %q, want %q", level, tc.wantLevel)
			}
			if msg != tc.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tc.wantMsg)
			}
		})
	}
}
