// Package cmd holds auxiliary CLI commands mounted under the main binary.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"streamgate/internal/logging"
	"streamgate/internal/resolver"
)

// CreateResolveCmd creates the resolve command: a one-shot lookup of
// the playable URL behind a platform page, using the same tools the
// server uses. Handy for checking yt-dlp/streamlink before adding a
// stream.
func CreateResolveCmd() *cobra.Command {
	var ytDlp string
	var streamlink string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "resolve [url]",
		Short: "Resolve a platform URL to its playable stream URL",
		Long: `Runs the token resolution step for a platform URL (YouTube, Twitch, ...) ` +
			`and prints the direct stream URL it yields. Direct rtsp/rtmp/http URLs are printed unchanged.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			rawURL := args[0]

			logging.Initialize(logging.Config{Level: "warn", Format: "text"})
			logger := logging.GetLogger("resolver")

			switch resolver.Classify(rawURL) {
			case resolver.KindInvalid:
				fmt.Fprintf(os.Stderr, "unsupported URL: %s\n", rawURL)
				os.Exit(1)
			case resolver.KindDirect:
				fmt.Println(rawURL)
				return
			}

			res := resolver.NewExecResolver(resolver.Options{
				YtDlpBinary:      ytDlp,
				StreamlinkBinary: streamlink,
				Timeout:          timeout,
			}, logger)

			ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
			defer cancel()

			resolved, err := res.Resolve(ctx, rawURL)
			if err != nil {
				fmt.Fprintf(os.Stderr, "resolution failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(resolved)
		},
	}

	cmd.Flags().StringVar(&ytDlp, "yt-dlp", "yt-dlp", "yt-dlp binary")
	cmd.Flags().StringVar(&streamlink, "streamlink", "streamlink", "streamlink binary")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "per-tool timeout")

	return cmd
}
