package api

import (
	"time"

	"streamgate/internal/store"
)

// StreamData is the API representation of one stream.
type StreamData struct {
	ID           string    `json:"id" example:"cUQo38LWkkfkvaXj5jRGMb" doc:"Stream identifier"`
	Name         string    `json:"name" example:"front door" doc:"User-supplied label"`
	SourceURL    string    `json:"source_url" example:"rtsp://cam.local/door" doc:"Original input URL"`
	Kind         string    `json:"kind" example:"direct" doc:"Stream kind: direct or platform"`
	Status       string    `json:"status" example:"running" doc:"Lifecycle status"`
	PlaylistURL  string    `json:"playlist_url" example:"/streams/cUQo38LWkkfkvaXj5jRGMb/stream.m3u8" doc:"Relative HLS playlist URL"`
	CreatedAt    time.Time `json:"created_at"`
	RestartCount int       `json:"restart_count" doc:"Automatic restarts since last confirmed recovery"`
}

// StreamListData wraps the stream listing.
type StreamListData struct {
	Streams []StreamData `json:"streams"`
	Count   int          `json:"count"`
}

// StreamListResponse is the list-streams response envelope.
type StreamListResponse struct {
	Body StreamListData
}

// StreamResponse is the single-stream response envelope.
type StreamResponse struct {
	Body StreamData
}

// StreamRequest is the create-stream request.
type StreamRequest struct {
	Body struct {
		Name string `json:"name,omitempty" example:"front door" doc:"Optional label; derived from the URL when blank"`
		URL  string `json:"url" example:"rtsp://cam.local/door" doc:"Source URL: rtsp/rtmp/http(s) or a platform page URL"`
	}
}

// StreamStatusData is the runtime status of one stream.
type StreamStatusData struct {
	ID         string  `json:"id"`
	Status     string  `json:"status" example:"running"`
	PID        int     `json:"pid,omitempty" doc:"Transcoder pid, 0 when not running"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemoryRSS  uint64  `json:"memory_rss,omitempty"`
	UptimeSec  float64 `json:"uptime_seconds,omitempty"`
}

// StreamStatusResponse is the stream-status response envelope.
type StreamStatusResponse struct {
	Body StreamStatusData
}

// HealthData is the health check payload.
type HealthData struct {
	Status string `json:"status" example:"ok"`
}

// HealthResponse is the health check envelope.
type HealthResponse struct {
	Body HealthData
}

// VersionData mirrors version.Info for the API.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// VersionResponse is the version endpoint envelope.
type VersionResponse struct {
	Body VersionData
}

// recordToAPI converts a stream record to its API shape.
func recordToAPI(rec store.Record) StreamData {
	return StreamData{
		ID:           rec.ID,
		Name:         rec.Name,
		SourceURL:    rec.SourceURL,
		Kind:         string(rec.Kind),
		Status:       string(rec.Status),
		PlaylistURL:  "/streams/" + rec.ID + "/stream.m3u8",
		CreatedAt:    rec.CreatedAt,
		RestartCount: rec.RestartCount,
	}
}
