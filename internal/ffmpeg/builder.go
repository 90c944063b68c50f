// Package ffmpeg builds transcoder command lines for live-source ingest and
// parses ffmpeg log output.
package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Browser-like User-Agent; some resolved platform URLs reject the ffmpeg
// default agent.
const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"

// PlaylistName is the HLS index file written into each stream's output dir.
const PlaylistName = "stream.m3u8"

// SegmentPattern is the segment filename template passed to ffmpeg.
const SegmentPattern = "seg_%03d.ts"

// HLSOptions control the generated HLS output flags.
type HLSOptions struct {
	Binary          string   // ffmpeg binary, default "ffmpeg"
	SegmentSeconds  int      // -hls_time, default 2
	PlaylistEntries int      // -hls_list_size, default 10
	UseBrowserUA    bool     // send a browser User-Agent (resolved platform URLs)
	ExtraArgs       []string // inserted before the encoding flags
}

func (o HLSOptions) withDefaults() HLSOptions {
	if o.Binary == "" {
		o.Binary = "ffmpeg"
	}
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = 2
	}
	if o.PlaylistEntries <= 0 {
		o.PlaylistEntries = 10
	}
	return o
}

// BuildHLSArgs returns the full transcoder argv for ingesting inputURL and
// writing a rolling HLS playlist into outputDir. Input flags depend on the
// URL scheme: http(s) inputs get reconnect flags, rtsp inputs are forced
// onto TCP transport.
func BuildHLSArgs(inputURL, outputDir string, opts HLSOptions) []string {
	opts = opts.withDefaults()

	args := []string{opts.Binary}
	args = append(args, inputArgs(inputURL, opts)...)
	args = append(args, opts.ExtraArgs...)
	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-g", "30",
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", opts.SegmentSeconds),
		"-hls_list_size", fmt.Sprintf("%d", opts.PlaylistEntries),
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", filepath.Join(outputDir, SegmentPattern),
		filepath.Join(outputDir, PlaylistName),
	)
	return args
}

// inputArgs returns scheme-specific flags plus "-i <url>".
func inputArgs(inputURL string, opts HLSOptions) []string {
	var args []string

	switch {
	case strings.HasPrefix(inputURL, "rtsp://"):
		args = append(args, "-rtsp_transport", "tcp")
	case strings.HasPrefix(inputURL, "http://"), strings.HasPrefix(inputURL, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "10",
		)
		if opts.UseBrowserUA {
			args = append(args, "-user_agent", browserUA)
		}
	}

	return append(args, "-i", inputURL)
}
