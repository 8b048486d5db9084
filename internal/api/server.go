// Package api provides the HTTP server for mindcamp.
// It exposes progress reads, entry ingestion, grace spends, the rank table,
// activity export and the guarded admin debug tools.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/app/engagement"
	"github.com/mindcamp/mindcamp/internal/domain"
	"github.com/mindcamp/mindcamp/internal/health"
)

// Server is the mindcamp HTTP API server.
type Server struct {
	svc            *engagement.Service
	auth           Authenticator
	health         *health.Checker // nil: /health always reports ok
	debug          *DebugGuard     // nil: /api/debug is not mounted
	metricsEnabled bool
	timeout        time.Duration
	log            *logrus.Entry
}

// NewServer creates a new API server. Identity defaults to HeaderAuthenticator.
func NewServer(svc *engagement.Service) *Server {
	return &Server{
		svc:     svc,
		auth:    HeaderAuthenticator{},
		timeout: 30 * time.Second,
		log:     logrus.WithField("component", "api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetRequestTimeout bounds each request's context. Non-positive values are ignored.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetAuthenticator replaces the identity extractor.
func (s *Server) SetAuthenticator(a Authenticator) { s.auth = a }

// SetHealth sets the checker backing /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetDebugGuard mounts the admin debug tools behind g.
func (s *Server) SetDebugGuard(g *DebugGuard) { s.debug = g }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)
	r.Use(s.accessLog)
	r.Use(s.identify)
	r.Use(virtualClock)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/ranks", s.handleRanks)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/progress", s.handleProgress)
			r.Get("/progress/snapshot", s.handleSnapshot)
			r.Post("/progress/grace", s.handleSpendGrace)
			r.Get("/progress/export", s.handleExport)

			r.Post("/entries", s.handleRecordEntry)
			r.Post("/entries/sync", s.handleSyncEntries)
		})

		if s.debug != nil {
			r.Route("/debug", func(r chi.Router) {
				r.Post("/simulate-streak", s.handleDebugSimulateStreak)
				r.Post("/reset-user", s.handleDebugResetUser)
				r.Post("/grace", s.handleDebugGrace)
			})
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeTypedError(w, status, "error", msg)
}

func writeTypedError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    typ,
		},
	})
}

// writeDomainError maps engagement errors onto HTTP responses. Storage
// faults are logged and reported without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		writeTypedError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrAlreadyQualifying):
		writeTypedError(w, http.StatusConflict, "already_qualifying", err.Error())
	case errors.Is(err, domain.ErrGraceExhausted):
		writeTypedError(w, http.StatusConflict, "grace_exhausted", err.Error())
	default:
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		writeTypedError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Role, X-Virtual-Date")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
