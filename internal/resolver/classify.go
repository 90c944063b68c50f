// Package resolver classifies source URLs and resolves platform URLs
// (Twitch, YouTube) to direct media URLs using external tools.
package resolver

import (
	"net/url"
	"strings"
)

// Kind classifies a source URL.
type Kind string

const (
	KindDirect   Kind = "direct"   // ingestible as-is
	KindPlatform Kind = "platform" // needs resolution before ingest
	KindInvalid  Kind = "invalid"  // unsupported scheme or unparseable
)

var directSchemes = map[string]bool{
	"rtsp":  true,
	"rtmp":  true,
	"rtmps": true,
	"http":  true,
	"https": true,
}

var platformHosts = []string{
	"twitch.tv",
	"youtube.com",
	"youtu.be",
}

// Classify reports whether rawURL is a direct source, a platform page
// needing resolution, or unsupported.
func Classify(rawURL string) Kind {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return KindInvalid
	}

	scheme := strings.ToLower(u.Scheme)
	if !directSchemes[scheme] {
		return KindInvalid
	}

	if scheme == "http" || scheme == "https" {
		host := strings.ToLower(u.Hostname())
		for _, p := range platformHosts {
			if host == p || strings.HasSuffix(host, "."+p) {
				return KindPlatform
			}
		}
	}

	return KindDirect
}

// IsYouTube reports whether rawURL points at YouTube. YouTube URLs are
// resolved with yt-dlp, everything else falls through to streamlink.
func IsYouTube(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range []string{"youtube.com", "youtu.be"} {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}
