// Package http exposes the key server operations as a JSON API.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CloudNativeWorks/cnw-keyserver/internal/audit"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/license"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/metrics"
	"github.com/CloudNativeWorks/cnw-keyserver/internal/release"
)

// Deps are the services behind the API.
type Deps struct {
	Registry *license.Registry
	Engine   *license.Engine
	Audit    *audit.Log
	Releases *release.Ledger
	Logger   *slog.Logger
	// Now resolves duration-based resets. Default: time.Now.
	Now func() time.Time
	// Metrics serves /metrics. Default: promhttp.Handler().
	Metrics http.Handler
}

// Server holds the HTTP handlers.
type Server struct {
	registry *license.Registry
	engine   *license.Engine
	audit    *audit.Log
	releases *release.Ledger
	logger   *slog.Logger
	now      func() time.Time
	metrics  http.Handler
	validate *validator.Validate
}

// NewServer creates the API server.
func NewServer(d Deps) *Server {
	s := &Server{
		registry: d.Registry,
		engine:   d.Engine,
		audit:    d.Audit,
		releases: d.Releases,
		logger:   d.Logger,
		now:      d.Now,
		metrics:  d.Metrics,
		validate: newValidator(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	return s
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/keys", func(r chi.Router) {
			r.Post("/", s.createKey)
			r.Get("/", s.listKeys)
			r.Get("/suspicious", s.listSuspicious)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getKey)
				r.Put("/", s.editKey)
				r.Delete("/", s.deleteKey)
				r.Post("/block", s.blockKey)
				r.Post("/unblock", s.unblockKey)
				r.Post("/reset", s.resetKey)
				r.Delete("/devices/{deviceID}", s.unbindDevice)
			})
		})

		r.Post("/validate", s.validateKey)

		r.Get("/audit", s.listAudit)
		r.Post("/audit", s.appendAudit)

		r.Route("/releases", func(r chi.Router) {
			r.Get("/", s.listReleases)
			r.Post("/", s.publishRelease)
			r.Get("/latest", s.latestRelease)
			r.Put("/{id}", s.editRelease)
			r.Delete("/{id}", s.removeRelease)
		})
	})
	return r
}

// fail renders err. Server-side failures are logged with their cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := mapError(err)
	if resp.HTTPStatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.HTTPStatusCode,
			"error", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	_ = render.Render(w, r, resp)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	_ = render.Render(w, r, ErrInvalidRequest(err))
}
