package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mindcamp/mindcamp/internal/app/clock"
	"github.com/mindcamp/mindcamp/internal/infra/metrics"
)

// ─── Identity ───────────────────────────────────────────────────────────────

// Identity is the caller as asserted by the upstream gateway.
type Identity struct {
	UserID string
	Admin  bool
}

// Authenticator extracts the caller's identity from a request. A zero
// Identity means anonymous.
type Authenticator interface {
	Identify(r *http.Request) Identity
}

// Header names set by the upstream gateway.
const (
	HeaderUserID      = "X-User-ID"
	HeaderUserRole    = "X-User-Role"
	HeaderVirtualDate = "X-Virtual-Date"
	CookieVirtualDate = "x-virtual-date"
)

// HeaderAuthenticator trusts X-User-ID and X-User-Role. Deploy it only
// behind a gateway that strips these headers from client requests.
type HeaderAuthenticator struct{}

// Identify implements Authenticator.
func (HeaderAuthenticator) Identify(r *http.Request) Identity {
	return Identity{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Admin:  strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), "admin"),
	}
}

type identityKey struct{}

// IdentityFrom returns the identity attached by the server middleware.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.auth.Identify(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFrom(r.Context()).UserID == "" {
			writeTypedError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Virtual Clock ──────────────────────────────────────────────────────────

// virtualClock reads the override once per request. The header wins over
// the cookie. Whether it is honoured is the clock provider's decision.
func virtualClock(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderVirtualDate)
		if raw == "" {
			if c, err := r.Cookie(CookieVirtualDate); err == nil {
				raw = c.Value
			}
		}
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := clock.WithOverride(r.Context(), raw, IdentityFrom(r.Context()).Admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ─── Access Log ─────────────────────────────────────────────────────────────

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		entry := s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if status >= 500 {
			entry.Warn("request")
		} else {
			entry.Debug("request")
		}
	})
}
