package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/edustack/edustack/internal/audit"
	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/identity"
	"github.com/edustack/edustack/internal/metrics"
	"github.com/edustack/edustack/internal/ratelimit"
	"github.com/edustack/edustack/internal/user"
)

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UserStore is the subset of user.Store used by the handlers.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	Create(ctx context.Context, in user.CreateUserInput) (*user.User, error)
}

// AuditRecorder receives authentication events.
type AuditRecorder interface {
	Record(ev audit.Event)
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Identity       *identity.Service
	Users          UserStore
	Verifier       auth.TokenVerifier
	Limiter        *ratelimit.Limiter
	Audit          AuditRecorder
	Metrics        *metrics.Metrics
	DB             Pinger
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Health check.
	r.Get("/health", healthHandler(deps.DB))

	// Well-known manifest.
	r.Get("/.well-known/edustack.json", WellKnownHandler)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.PrometheusHandler())
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	authH := newAuthHandler(deps.Identity, deps.Users, deps.Audit, deps.Metrics)
	users := newUsersHandler(deps.Users)

	r.Route("/auth/v1", func(ar chi.Router) {
		ar.Use(noStore)

		ar.Group(func(tr chi.Router) {
			if deps.Limiter != nil {
				var onReject []func()
				if deps.Metrics != nil {
					onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
				}
				tr.Use(ratelimit.Middleware(deps.Limiter, onReject...))
			}
			tr.Post("/token", authH.Token)
		})

		ar.Group(func(br chi.Router) {
			br.Use(auth.BearerMiddleware(deps.Verifier))
			br.Post("/logout", authH.Logout)
			br.Get("/user", authH.User)
		})
	})

	r.Route("/rest/v1", func(rr chi.Router) {
		rr.Use(noStore)
		rr.Use(auth.BearerMiddleware(deps.Verifier))

		rr.Get("/users/{id}", users.GetUser)
		rr.With(auth.RequireRole(auth.RoleSuperAdmin, auth.RoleSchoolAdmin)).
			Post("/users", users.CreateUser)
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			slog.Warn("health check: database unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records request counts and latency by route pattern so
// path parameters do not explode label cardinality.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					pattern = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, pattern, status, time.Since(start))
		})
	}
}
