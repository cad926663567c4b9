// Package api exposes the notes service over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dharsanguruparan/NoteDrop/internal/config"
	"github.com/dharsanguruparan/NoteDrop/internal/notes"
	"github.com/dharsanguruparan/NoteDrop/internal/session"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes HTTP endpoints for uploading, browsing, liking and deleting
// notes.
type Server struct {
	cfg      *config.Config
	notes    *notes.Service
	sessions *session.Issuer
	health   []Pinger
	logger   *slog.Logger
}

// New constructs a Server. Every pinger is checked by /healthz.
func New(cfg *config.Config, svc *notes.Service, sessions *session.Issuer, logger *slog.Logger, health ...Pinger) *Server {
	return &Server{
		cfg:      cfg,
		notes:    svc,
		sessions: sessions,
		health:   health,
		logger:   logger.With(slog.String("component", "api")),
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("api listening", slog.String("addr", s.cfg.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(MetricsMiddleware())
	r.Use(RequestLogger(s.logger))
	r.Use(CORS(s.cfg.AllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.cfg.SessionIssuer {
		r.Post("/session", s.handleSession)
	}

	r.Get("/notes", s.handleFeed)
	r.Get("/notes/{id}/download", s.handleDownload)
	r.Get("/notes/{id}/preview", s.handlePreview)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/upload", s.handleUpload)
		r.Post("/notes/{id}/like", s.handleLike)
		r.Delete("/notes/{id}", s.handleDelete)
	})

	if s.cfg.BlobBackend == config.BlobBackendDisk {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", staticFiles(s.cfg.UploadDir)))
	}
	return r
}

// staticFiles serves uploaded blobs without directory listings.
func staticFiles(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "Notes API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range s.health {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", slog.String("error", err.Error()))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
