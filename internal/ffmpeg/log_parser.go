package ffmpeg

import "strings"

// ParseLogLevel extracts the log level from an ffmpeg output line.
// With -loglevel level+info ffmpeg writes "[info] message" or
// "[component @ 0x...] [level] message". The level bracket is stripped
// from the returned message; a component prefix is kept.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]
	if isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			if isLogLevel(rest[1:nextEnd]) {
				return rest[1:nextEnd], component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
