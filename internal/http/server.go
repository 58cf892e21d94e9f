package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gagyebu/internal/core"
	"gagyebu/internal/editor"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/middleware/security"
	"gagyebu/internal/middleware/trace"
	"gagyebu/internal/session"
	appweb "gagyebu/web"
)

// Workspace is the part of session.Workspace the UI drives.
type Workspace interface {
	Load(ctx context.Context, rng core.DateRange) error
	Refresh(ctx context.Context) error
	View(ctx context.Context) (session.Snapshot, error)
	BeginEdit(ctx context.Context, recordID int64, field core.FieldKind) error
	Apply(ctx context.Context, recordID int64, field core.FieldKind, value *string, action editor.Action) error
	Version() uint64
	Add(ctx context.Context, form core.NewRecord) (core.Record, error)
	Delete(ctx context.Context, id int64, confirmed bool) error
}

var _ Workspace = (*session.Workspace)(nil)

// Config tunes the UI server.
type Config struct {
	Addr           string
	Location       *time.Location
	RequestTimeout time.Duration
	RateLimit      ratelimit.Config
	Metrics        bool
}

// Server serves the ledger page and its htmx partials.
type Server struct {
	http.Server

	ws        Workspace
	templates *template.Template
	loc       *time.Location
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	logger    *log.Logger
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and mounts every route.
func NewServer(cfg Config, ws Workspace, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	t, err := template.New("ledger").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		ws:        ws,
		templates: t,
		loc:       cfg.Location,
		limiter:   ratelimit.NewLimiter(cfg.RateLimit),
		detector:  security.NewDetector(),
		logger:    logger.WithComponent(log.ComponentHTTP),
		now:       time.Now,
	}
	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(trace.Middleware(s.logger))
	r.Use(s.detector.Middleware(s.logger))
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("페이지를 찾을 수 없습니다").Write(w)
	})
	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Get("/", s.handleIndex)
		r.Get("/ui/records", s.handleRecords)
		r.Get("/ui/summary", s.handleSummary)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ClientIP, s.handleRateLimited))

			r.Post("/ui/refresh", s.handleRefresh)
			r.Post("/ui/cells/{id}/{field}/edit", s.handleBeginEdit)
			r.Post("/ui/cells/{id}/{field}/{action}", s.handleCellAction)
			r.Post("/ui/records", s.handleAdd)
			r.Delete("/ui/records/{id}", s.handleDelete)
		})
	})
	return r
}

// Shutdown stops the limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r), log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("요청이 너무 많습니다. 잠시 후 다시 시도하세요.").
		Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the workspace answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.ws.View(ctx); err != nil {
		http.Error(w, "workspace unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
