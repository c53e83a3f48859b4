// Package server exposes extraction and matching over HTTP.
//
// Routes:
//
//	GET  /                        service banner
//	GET  /health                  liveness
//	POST /api/parse-pdf           one policy document -> header fields and coverages
//	POST /api/match-with-summary  documents + workbook -> match results as JSON
//	POST /api/match               documents + workbook -> filled workbook download
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"insurance-coverage-reconciler/internal/archive"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/internal/template"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

const (
	serviceName    = "보험 보장분석 자동매칭 API"
	serviceVersion = "1.0.0"

	requestIDHeader = "X-Request-ID"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Server serves the HTTP API
type Server struct {
	service  *reconciler.Service
	archive  *archive.Store
	template *template.Config
	config   *Config
	logger   logger.Logger
	router   chi.Router
}

// Option customises a Server
type Option func(*Server)

// WithArchive records every match request in store
func WithArchive(store *archive.Store) Option {
	return func(s *Server) {
		s.archive = store
	}
}

// WithTemplateConfig sets the workbook layout used for uploads
func WithTemplateConfig(cfg *template.Config) Option {
	return func(s *Server) {
		s.template = cfg
	}
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		s.logger = log
	}
}

// New creates a server around service
func New(service *reconciler.Service, config *Config, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "reconciler_service", nil, nil)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server", config, err)
	}

	s := &Server{
		service:  service,
		template: template.DefaultConfig(),
		config:   config,
		logger:   logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.template.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "template", s.template, err)
	}
	s.logger = s.logger.WithComponent("server")
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/parse-pdf", s.handleParsePDF)
		r.Post("/match-with-summary", s.handleMatchWithSummary)
		r.Post("/match", s.handleMatch)
	})
	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.InternalError(errors.CodeUnexpectedError, "listen", err).
			WithContext("addr", srv.Addr)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "shutdown", err)
	}
	return nil
}

// Middleware

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFrom returns the request id stored by the server middleware
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logger.Fields{
			"request_id": RequestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
		}).Info("HTTP request")
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+requestIDHeader)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
