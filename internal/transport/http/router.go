package http

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vault/internal/authz"
	"vault/internal/didresolver"
	"vault/internal/httpx"
	"vault/internal/observability/middleware"
	"vault/internal/ratelimit"
	"vault/internal/service"
)

const maxBodyBytes = 10 << 20

// ErrorReporter receives failures the client only sees as a 500.
type ErrorReporter interface {
	Report(ctx context.Context, message, stack string)
}

type Deps struct {
	Tokens   *service.Tokens
	Registry *service.Registry
	Ledger   *service.Ledger
	Limiter  ratelimit.Limiter
	Resolver didresolver.Resolver
	Reporter ErrorReporter
	Logger   *slog.Logger
}

type Options struct {
	CORSOrigins []string
	// GlobalRateLimit caps requests per IP per minute across all routes in
	// memory, ahead of the per-endpoint limits. Zero disables it.
	GlobalRateLimit int
	TrustProxy      bool
	RequestTimeout  time.Duration
}

func NewRouter(d Deps, opts Options) http.Handler {
	h := &handlers{Deps: d}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(httpx.LogRequests(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: originsOrAny(opts.CORSOrigins),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id", "X-Trace-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.GlobalRateLimit > 0 {
		r.Use(httprate.LimitByIP(opts.GlobalRateLimit, time.Minute))
	}
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(limitBody)

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.notFound)

	limit := func(endpoint string, max int64) func(http.Handler) http.Handler {
		return ratelimit.Middleware(d.Limiter, endpoint, max, h.internal)
	}
	gate := authz.NewGate(d.Tokens, h.internal).Authenticate

	r.With(limit("health", 60)).Get("/api/v1/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(apiOnly)
		r.With(limit("request-token", 20)).Post("/request-token", h.requestToken)
		r.With(limit("validate-token", 20)).Post("/validate-token", h.validateToken)

		r.Group(func(r chi.Router) {
			r.Use(gate)
			r.Post("/blacklist", h.setBlacklist(true))
			r.Delete("/blacklist", h.setBlacklist(false))
			r.Post("/admin", h.setAdmin(true))
			r.Delete("/admin", h.setAdmin(false))
			r.Post("/entity", h.addEntity)
		})
	})

	// Limits are counted before the gate.
	r.Group(func(r chi.Router) {
		r.Use(apiOnly)

		r.With(limit("me", 180), gate).Get("/data/me", h.me)
		r.With(limit("get-data", 180), gate).Get("/data/{start}", h.readData)
		r.With(limit("get-data", 180), gate).Get("/data/{start}/{end}", h.readData)
		r.With(limit("post-data", 180), gate).Post("/data", h.appendData)
		r.With(limit("delete-data", 60), gate).Delete("/data/{start}", h.deleteData)
		r.With(limit("delete-data", 180), gate).Delete("/data/{start}/{end}", h.deleteData)
		r.With(limit("deletions", 60), gate).Get("/deletions/{start}", h.listDeletions)
		r.With(limit("deletions", 180), gate).Get("/deletions/{start}/{end}", h.listDeletions)
	})

	return r
}

func originsOrAny(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// apiOnly rejects request bodies that are not declared as JSON.
func apiOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				httpx.WriteError(w, http.StatusUnsupportedMediaType, "unsupported media type")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
