package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"streamgate/cmd"
	"streamgate/internal/api"
	"streamgate/internal/config"
	"streamgate/internal/events"
	"streamgate/internal/ffmpeg"
	"streamgate/internal/logging"
	"streamgate/internal/manager"
	"streamgate/internal/metrics"
	"streamgate/internal/process"
	"streamgate/internal/resolver"
	"streamgate/internal/store"
	"streamgate/internal/supervisor"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Streams settings
	StateFile string `help:"Stream state file" default:"streams.json" toml:"streams.state_file" env:"STREAMS_STATE_FILE"`
	HLSRoot   string `help:"Directory for HLS output" default:"hls" toml:"streams.hls_root" env:"STREAMS_HLS_ROOT"`

	// Transcoder settings
	FFmpegBinary    string `help:"ffmpeg binary" default:"ffmpeg" toml:"transcode.ffmpeg_binary" env:"TRANSCODE_FFMPEG_BINARY"`
	SegmentSeconds  int    `help:"HLS segment length in seconds" default:"2" toml:"transcode.segment_seconds" env:"TRANSCODE_SEGMENT_SECONDS"`
	PlaylistEntries int    `help:"HLS playlist size" default:"10" toml:"transcode.playlist_entries" env:"TRANSCODE_PLAYLIST_ENTRIES"`
	StallTimeout    string `help:"Restart a transcoder after this long without segment output, 0 disables" default:"30s" toml:"transcode.stall_timeout" env:"TRANSCODE_STALL_TIMEOUT"`
	GracefulTimeout string `help:"Grace period between SIGINT and SIGKILL on stop" default:"5s" toml:"transcode.graceful_timeout" env:"TRANSCODE_GRACEFUL_TIMEOUT"`
	KillTimeout     string `help:"Wait after SIGKILL before giving up on a stop" default:"5s" toml:"transcode.kill_timeout" env:"TRANSCODE_KILL_TIMEOUT"`
	ExtraArgs       string `help:"Extra ffmpeg arguments inserted before the encoding flags" default:"" toml:"transcode.extra_args" env:"TRANSCODE_EXTRA_ARGS"`

	// Resolver settings
	YtDlpBinary      string `help:"yt-dlp binary" default:"yt-dlp" toml:"resolver.yt_dlp" env:"RESOLVER_YT_DLP"`
	StreamlinkBinary string `help:"streamlink binary" default:"streamlink" toml:"resolver.streamlink" env:"RESOLVER_STREAMLINK"`
	ResolverTimeout  string `help:"Per-tool resolution timeout" default:"20s" toml:"resolver.timeout" env:"RESOLVER_TIMEOUT"`

	// Crash recovery settings
	BackoffBase       string  `help:"First restart delay" default:"3s" toml:"recovery.backoff_base" env:"RECOVERY_BACKOFF_BASE"`
	BackoffMultiplier float64 `help:"Restart delay multiplier" default:"2" toml:"recovery.backoff_multiplier" env:"RECOVERY_BACKOFF_MULTIPLIER"`
	BackoffMax        string  `help:"Restart delay cap" default:"30s" toml:"recovery.backoff_max" env:"RECOVERY_BACKOFF_MAX"`
	MaxRestarts       int     `help:"Max automatic restarts within the window" default:"5" toml:"recovery.max_restarts" env:"RECOVERY_MAX_RESTARTS"`
	RestartWindow     string  `help:"Crash counting window" default:"10m" toml:"recovery.restart_window" env:"RECOVERY_RESTART_WINDOW"`
	RecoveryAfter     string  `help:"Uptime before the restart counter resets" default:"60s" toml:"recovery.recovery_after" env:"RECOVERY_RECOVERY_AFTER"`

	// Token refresh settings
	TokenLifetime string `help:"Assumed platform token lifetime" default:"60m" toml:"tokens.lifetime" env:"TOKENS_LIFETIME"`
	TokenMargin   string `help:"Refresh this long before expiry" default:"10m" toml:"tokens.margin" env:"TOKENS_MARGIN"`

	// Metrics settings
	MetricsInterval string `help:"Transcoder resource sampling interval" default:"15s" toml:"metrics.sample_interval" env:"METRICS_SAMPLE_INTERVAL"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingManager    string `help:"Manager logging level" default:"info" toml:"logging.manager" env:"LOGGING_MANAGER"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingFFmpeg     string `help:"Transcoder output logging level" default:"warn" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingResolver   string `help:"Resolver logging level" default:"info" toml:"logging.resolver" env:"LOGGING_RESOLVER"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

// duration parses s, falling back to def on bad input.
func duration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.Load(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"manager":    opts.LoggingManager,
				"supervisor": opts.LoggingSupervisor,
				"ffmpeg":     opts.LoggingFFmpeg,
				"resolver":   opts.LoggingResolver,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
			},
		})

		logger := logging.GetLogger("main")

		// Event bus for in-process lifecycle events
		eventBus := events.New()

		// Mirror log entries onto the bus so SSE clients get them live
		logging.SetEntryCallback(func(e logging.Entry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		})

		stateStore := store.NewJSON(opts.StateFile)

		extraArgs, argsErr := process.Split(opts.ExtraArgs)
		if argsErr != nil {
			logger.Error("Invalid transcode.extra_args", "error", argsErr)
			os.Exit(1)
		}

		sup := supervisor.New(supervisor.Options{
			HLS: ffmpeg.HLSOptions{
				Binary:          opts.FFmpegBinary,
				SegmentSeconds:  opts.SegmentSeconds,
				PlaylistEntries: opts.PlaylistEntries,
				ExtraArgs:       extraArgs,
			},
			StallTimeout:    duration(opts.StallTimeout, 30*time.Second),
			GracefulTimeout: duration(opts.GracefulTimeout, 5*time.Second),
			KillTimeout:     duration(opts.KillTimeout, 5*time.Second),
		}, eventBus, logging.GetLogger("supervisor"), logging.GetLogger("ffmpeg"))

		res := resolver.NewExecResolver(resolver.Options{
			YtDlpBinary:      opts.YtDlpBinary,
			StreamlinkBinary: opts.StreamlinkBinary,
			Timeout:          duration(opts.ResolverTimeout, 20*time.Second),
		}, logging.GetLogger("resolver"))

		mgr := manager.New(manager.Options{
			Store:      stateStore,
			Supervisor: sup,
			Resolver:   res,
			Bus:        eventBus,
			Logger:     logging.GetLogger("manager"),
			HLSRoot:    opts.HLSRoot,
			Policy: manager.Policy{
				BackoffBase:       duration(opts.BackoffBase, 3*time.Second),
				BackoffMultiplier: opts.BackoffMultiplier,
				BackoffMax:        duration(opts.BackoffMax, 30*time.Second),
				MaxRestarts:       opts.MaxRestarts,
				RestartWindow:     duration(opts.RestartWindow, 10*time.Minute),
				RecoveryAfter:     duration(opts.RecoveryAfter, time.Minute),
				TokenLifetime:     duration(opts.TokenLifetime, time.Hour),
				TokenMargin:       duration(opts.TokenMargin, 10*time.Minute),
			},
		})

		unobserve := metrics.Observe(eventBus, mgr.ListStreams)
		samplerCtx, stopSampler := context.WithCancel(context.Background())

		server := api.NewServer(&api.Options{
			Manager:           mgr,
			EventBus:          eventBus,
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			HLSRoot:           opts.HLSRoot,
			PrometheusHandler: metrics.Handler(),
		})

		hooks.OnStart(func() {
			// Bring persisted streams back before accepting requests
			mgr.Recover()

			go metrics.RunSampler(samplerCtx, duration(opts.MetricsInterval, 15*time.Second), mgr.ListStreams, mgr.Stats)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			stopSampler()
			unobserve()

			// Stops all transcoders and waits for exit events to settle
			mgr.Close()
		})
	})

	cli.Root().AddCommand(cmd.CreateResolveCmd())

	cli.Run()
}
