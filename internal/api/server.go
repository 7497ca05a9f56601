package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"captioner/internal/artifacts"
	"captioner/internal/catalog"
	"captioner/internal/config"
	"captioner/internal/jobs"
	"captioner/internal/logging"
	"captioner/internal/services"
)

// RequestIDHeader carries the correlation id of a request in both directions.
const RequestIDHeader = "X-Request-ID"

// Jobs is the orchestrator surface the API drives.
type Jobs interface {
	SubmitTranscription(ctx context.Context, req jobs.TranscriptionRequest) (string, error)
	SubmitTranslation(ctx context.Context, sourceID, target string) (string, error)
	Status(id string) jobs.View
	List() []jobs.View
	Watch(id string) (<-chan jobs.View, func())
}

// ArtifactLister lists catalogued artifacts, optionally for one source id.
type ArtifactLister interface {
	List(ctx context.Context, sourceID string) ([]catalog.Entry, error)
}

// HealthFunc reports daemon readiness.
type HealthFunc func(ctx context.Context) Health

// Options wires a Server. Catalog and Health are optional.
type Options struct {
	Config  *config.Config
	Jobs    Jobs
	Store   *artifacts.Store
	Catalog ArtifactLister
	Health  HealthFunc
	Logger  *slog.Logger
}

// Server serves the captioner HTTP API.
type Server struct {
	cfg      *config.Config
	jobs     Jobs
	store    *artifacts.Store
	catalog  ArtifactLister
	health   HealthFunc
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handler  http.Handler

	listener net.Listener
	server   *http.Server
}

// New builds the server and its routes. It does not listen.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("api: config required")
	}
	if opts.Jobs == nil || opts.Store == nil {
		return nil, errors.New("api: jobs and artifact store required")
	}
	s := &Server{
		cfg:     opts.Config,
		jobs:    opts.Jobs,
		store:   opts.Store,
		catalog: opts.Catalog,
		health:  opts.Health,
		logger:  logging.NewComponentLogger(opts.Logger, "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 5 * time.Second,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcriptions", s.handleUpload)
	mux.HandleFunc("POST /api/translations", s.handleTranslate)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/jobs/{id}/watch", s.handleWatch)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	mux.HandleFunc("GET /api/artifacts", s.handleArtifacts)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /status/{id}", s.handleJob)
	mux.HandleFunc("GET /download/{id}", s.handleDownload)
	mux.HandleFunc("POST /translate", s.handleTranslate)

	s.handler = requestIDMiddleware(authMiddleware(s.cfg.Paths.APIToken, mux))
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured bind address and serves until ctx ends or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return services.Wrap(services.ErrConfiguration, "api", "listen", "api_bind is empty", nil)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.cfg.Paths.APIToken != ""),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps classified errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusServiceUnavailable
	}
	if !services.IsClientError(err) {
		logging.ErrorWithContext(s.log(r), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) healthSnapshot(ctx context.Context) Health {
	if s.health != nil {
		return s.health(ctx)
	}
	return Health{Status: "ok", PID: os.Getpid(), Jobs: len(s.jobs.List())}
}
