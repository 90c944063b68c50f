package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"streamgate/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time event stream for stream lifecycle, transcoder exits, and token refreshes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"stream-added":    events.StreamAddedEvent{},
		"stream-removed":  events.StreamRemovedEvent{},
		"stream-status":   events.StreamStatusEvent{},
		"process-exit":    events.ProcessExitEvent{},
		"token-refreshed": events.TokenRefreshedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamAddedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamRemovedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamStatusEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessExitEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TokenRefreshedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
