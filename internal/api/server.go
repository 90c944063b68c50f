// Package api exposes the stream lifecycle over HTTP: a JSON API with
// OpenAPI docs, SSE event and log streams, Prometheus metrics, and the
// HLS output itself.
package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"streamgate/internal/events"
	"streamgate/internal/logging"
	"streamgate/internal/manager"
)

// Options configure the API server.
type Options struct {
	Manager      *manager.Manager
	EventBus     *events.Bus
	AuthUsername string
	AuthPassword string

	// HLSRoot is served read-only under /streams/ for playback.
	HLSRoot string

	// PrometheusHandler, when set, is mounted at /metrics without auth.
	PrometheusHandler http.Handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	manager    *manager.Manager
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("StreamGate API", "1.0.0")
	config.Info.Description = "Live stream ingest and HLS re-streaming API"
	// Empty servers list makes OpenAPI use relative paths, working with any host.
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		manager:  opts.Manager,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	// HLS playback: playlist and segments straight off disk.
	if opts.HLSRoot != "" {
		mux.Handle("GET /streams/", http.StripPrefix("/streams/", noDirListing(http.FileServer(http.Dir(opts.HLSRoot)))))
	}

	server.registerRoutes()
	return server
}

// Start starts the HTTP server on the specified address.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Mux returns the underlying ServeMux, mainly for tests.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.registerSystemRoutes()
	s.registerStreamRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}

// basicAuthMiddleware enforces HTTP basic authentication. SSE clients
// that cannot set headers may pass base64 credentials in ?auth=.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		deny := func(msg string) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="StreamGate API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
		}

		var credentials string
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				deny("Invalid authentication type")
				return
			}
			decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
			if err != nil {
				deny("Invalid credentials format")
				return
			}
			credentials = string(decoded)
		} else if queryAuth := ctx.Query("auth"); queryAuth != "" {
			decoded, err := base64.StdEncoding.DecodeString(queryAuth)
			if err != nil {
				deny("Invalid credentials format")
				return
			}
			credentials = string(decoded)
		}

		if credentials == "" {
			deny("Authentication required")
			return
		}

		parts := strings.SplitN(credentials, ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			deny("Invalid credentials")
			return
		}

		next(ctx)
	}
}

// noDirListing hides directory indexes on the HLS file server.
func noDirListing(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || r.URL.Path == "" {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}
