package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"streamgate/internal/manager"
	"streamgate/internal/supervisor"
)

// registerStreamRoutes registers all stream lifecycle endpoints.
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "Get all configured streams in insertion order",
		Tags:        []string{"streams"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*StreamListResponse, error) {
		records := s.manager.ListStreams()
		streams := make([]StreamData, len(records))
		for i, rec := range records {
			streams[i] = recordToAPI(rec)
		}
		return &StreamListResponse{
			Body: StreamListData{Streams: streams, Count: len(streams)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "create-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams",
		Summary:     "Create Stream",
		Description: "Register a new stream and start transcoding it to HLS",
		Tags:        []string{"streams"},
		Errors:      []int{400, 401, 409, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *StreamRequest) (*StreamResponse, error) {
		rec, err := s.manager.AddStream(ctx, input.Body.Name, input.Body.URL)
		if err != nil {
			return nil, mapStreamError(err)
		}
		return &StreamResponse{Body: recordToAPI(rec)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Get Stream",
		Description: "Get details of a specific stream",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		StreamID string `path:"stream_id" doc:"Stream identifier"`
	}) (*StreamResponse, error) {
		rec, err := s.manager.GetStream(input.StreamID)
		if err != nil {
			return nil, mapStreamError(err)
		}
		return &StreamResponse{Body: recordToAPI(rec)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-stream",
		Method:      http.MethodDelete,
		Path:        "/api/streams/{stream_id}",
		Summary:     "Delete Stream",
		Description: "Stop a stream's transcoder and remove it permanently",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		StreamID string `path:"stream_id" doc:"Stream identifier"`
	}) (*struct{}, error) {
		if err := s.manager.RemoveStream(input.StreamID); err != nil {
			return nil, mapStreamError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/{stream_id}/restart",
		Summary:     "Restart Stream",
		Description: "Replace the stream's transcoder process; platform streams re-resolve their token first",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 500, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		StreamID string `path:"stream_id" doc:"Stream identifier"`
	}) (*StreamResponse, error) {
		rec, err := s.manager.RestartStream(ctx, input.StreamID)
		if err != nil {
			return nil, mapStreamError(err)
		}
		return &StreamResponse{Body: recordToAPI(rec)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream-status",
		Method:      http.MethodGet,
		Path:        "/api/streams/{stream_id}/status",
		Summary:     "Get Stream Status",
		Description: "Get runtime status and transcoder resource usage",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		StreamID string `path:"stream_id" doc:"Stream identifier"`
	}) (*StreamStatusResponse, error) {
		rec, err := s.manager.GetStream(input.StreamID)
		if err != nil {
			return nil, mapStreamError(err)
		}

		status := StreamStatusData{ID: rec.ID, Status: string(rec.Status)}
		if stats, err := s.manager.Stats(rec.ID); err == nil {
			status.PID = stats.PID
			status.CPUPercent = stats.CPUPercent
			status.MemoryRSS = stats.MemoryRSS
			status.UptimeSec = stats.Uptime.Seconds()
		} else if !errors.Is(err, supervisor.ErrNotRunning) {
			return nil, mapStreamError(err)
		}

		return &StreamStatusResponse{Body: status}, nil
	})
}

// mapStreamError maps lifecycle errors to HTTP errors.
func mapStreamError(err error) error {
	switch manager.CodeOf(err) {
	case manager.CodeInvalidURL:
		return huma.Error400BadRequest(err.Error(), err)
	case manager.CodeAlreadyExists:
		return huma.Error409Conflict(err.Error(), err)
	case manager.CodeNotFound:
		return huma.Error404NotFound(err.Error(), err)
	case manager.CodeResolutionFailed:
		return huma.Error502BadGateway(err.Error(), err)
	case manager.CodeLaunchFailed, manager.CodePersistenceFailed, manager.CodeCrashLoop:
		return huma.Error500InternalServerError(err.Error(), err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
