package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Resolver resolves a platform page URL to a direct media URL.
type Resolver interface {
	Resolve(ctx context.Context, platformURL string) (string, error)
}

// Options configure the external resolver tools.
type Options struct {
	YtDlpBinary      string        // default "yt-dlp"
	StreamlinkBinary string        // default "streamlink"
	Timeout          time.Duration // per-tool timeout, default 20s
}

func (o Options) withDefaults() Options {
	if o.YtDlpBinary == "" {
		o.YtDlpBinary = "yt-dlp"
	}
	if o.StreamlinkBinary == "" {
		o.StreamlinkBinary = "streamlink"
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	return o
}

// ExecResolver shells out to yt-dlp (YouTube) or streamlink (Twitch and
// everything else) to obtain a direct media URL.
type ExecResolver struct {
	opts   Options
	logger *slog.Logger
}

// NewExecResolver creates a resolver backed by external tools.
func NewExecResolver(opts Options, logger *slog.Logger) *ExecResolver {
	return &ExecResolver{opts: opts.withDefaults(), logger: logger}
}

// Resolve returns a direct media URL for platformURL. YouTube URLs go
// through yt-dlp with a streamlink fallback; all others use streamlink.
func (r *ExecResolver) Resolve(ctx context.Context, platformURL string) (string, error) {
	if IsYouTube(platformURL) {
		resolved, err := r.runYtDlp(ctx, platformURL)
		if err == nil {
			return resolved, nil
		}
		r.logger.Warn("yt-dlp resolution failed, trying streamlink", "url", platformURL, "error", err)
	}

	return r.runStreamlink(ctx, platformURL)
}

func (r *ExecResolver) runYtDlp(ctx context.Context, url string) (string, error) {
	out, err := r.run(ctx, r.opts.YtDlpBinary, "-f", "best", "--print", "urls", "--no-warnings", url)
	if err != nil {
		return "", err
	}

	resolved, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(resolved, "http") {
		return "", fmt.Errorf("yt-dlp returned no usable URL for %s", url)
	}

	r.logger.Info("Resolved via yt-dlp", "url", url, "resolved", truncate(resolved, 120))
	return resolved, nil
}

func (r *ExecResolver) runStreamlink(ctx context.Context, url string) (string, error) {
	out, err := r.run(ctx, r.opts.StreamlinkBinary, "--stream-url", url, "best")
	if err != nil {
		return "", err
	}

	resolved := strings.TrimSpace(out)
	if !strings.HasPrefix(resolved, "http") {
		return "", fmt.Errorf("streamlink returned no usable URL for %s", url)
	}

	r.logger.Info("Resolved via streamlink", "url", url, "resolved", truncate(resolved, 120))
	return resolved, nil
}

// run executes a resolver tool with the configured timeout and returns
// its stdout.
func (r *ExecResolver) run(ctx context.Context, binary string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%s timed out after %s", binary, r.opts.Timeout)
		}
		return "", fmt.Errorf("%s: %w: %s", binary, err, truncate(strings.TrimSpace(stderr.String()), 200))
	}

	return stdout.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
