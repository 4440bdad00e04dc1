package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"uvian-worker/internal/infra/logging"
	"uvian-worker/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ReadinessCheck is one dependency checked by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the worker's admin surface: health checks, metrics and a small
// JWT-protected jobs API.
type Server struct {
	jobs   usecase.JobUseCase
	auth   *AuthManager
	checks []ReadinessCheck
	log    *zerolog.Logger
	srv    *http.Server
}

func NewServer(jobs usecase.JobUseCase, auth *AuthManager, checks []ReadinessCheck, logger *zerolog.Logger) *Server {
	return &Server{
		jobs:   jobs,
		auth:   auth,
		checks: checks,
		log:    logging.Component(logger, "admin_http"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", s.readyHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware, Timeout(15*time.Second))
		r.Post("/jobs", jobCreateHandler(s.jobs))
		r.Get("/jobs/{id}", jobGetHandler(s.jobs))
	})
	return r
}

// authMiddleware requires a valid admin bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.log.Error().Msg("admin auth is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		l := logging.With(r.Context(), s.log)
		l.Debug().Str("subject", claims.Subject).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) readyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		failed := map[string]string{}
		for _, c := range s.checks {
			if err := c.Check(ctx); err != nil {
				failed[c.Name] = err.Error()
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

// Start blocks serving on port until Shutdown.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("admin server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
