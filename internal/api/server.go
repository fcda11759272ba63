// Package api serves the HTTP control API: the command set as JSON
// operations, an SSE event stream, logs, LEDs and self-update.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/echotherm/internal/api/models"
	"github.com/smazurov/echotherm/internal/camera"
	"github.com/smazurov/echotherm/internal/events"
	"github.com/smazurov/echotherm/internal/led"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/smazurov/echotherm/internal/metrics"
	"github.com/smazurov/echotherm/internal/protocol"
	"github.com/smazurov/echotherm/internal/updater"
	"github.com/smazurov/echotherm/internal/version"
)

// Transport names API callers in protocol logs and metrics.
const Transport = "http"

// Camera is what the API needs from the camera.
type Camera interface {
	protocol.Camera
	Snapshot() camera.Status
}

// Runner executes raw command batches.
type Runner interface {
	Run(batch, transport string) []protocol.Result
}

// Options wires the API to the rest of the daemon. Nil optional fields
// leave their routes unregistered.
type Options struct {
	AuthUsername string
	AuthPassword string

	Camera   Camera
	Runner   Runner
	EventBus *events.Bus

	LEDController     led.Controller
	UpdateService     updater.Service
	PrometheusHandler http.Handler
	// CaptureDir is reported with free disk space on /api/metrics.
	CaptureDir string
}

// Server is the huma API plus its HTTP listener.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logs       *logHub
	logger     *slog.Logger
}

// NewServer creates the API on a net/http ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("EchoTherm API", version.Version)
	config.Info.Description = "Control API for a thermal camera feeding a V4L2 loopback device"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {Type: "http", Scheme: "basic"},
	}
	api := humago.New(mux, config)
	api.UseMiddleware(NewCORSMiddleware(corsConfig))

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	return newServer(api, mux, opts)
}

// newServer registers middleware and routes on api.
func newServer(api huma.API, mux *http.ServeMux, opts *Options) *Server {
	s := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logs:    newLogHub(),
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	s.registerRoutes()
	return s
}

// GetAPI returns the huma API.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on addr and serves until Stop. It returns once the
// listener is open.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.OnEntry(s.logs.publish)

	s.logger.Info("API server listening", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()
	return nil
}

// Stop closes the listener and every open connection, including SSE
// streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	logging.OnEntry(nil)
	s.logs.close()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		resp := &models.HealthResponse{}
		resp.Body.Status = "ok"
		resp.Body.Message = "API is healthy"
		resp.Body.Camera = s.options.Camera.Snapshot().State
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-metrics",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics",
		Description: "Frame, drop, zoom and recorder counters plus host load, memory and capture disk space. Prometheus text format is served on /metrics.",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.MetricsResponse, error) {
		resp := &models.MetricsResponse{}
		resp.Body.Camera = metrics.Current()
		resp.Body.Host = metrics.ReadHost(s.options.CaptureDir)
		return resp, nil
	})

	s.registerCameraRoutes()
	s.registerCaptureRoutes()
	s.registerCommandRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerLEDRoutes()
	s.registerUpdateRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
