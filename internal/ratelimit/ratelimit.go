// Package ratelimit counts calls per client IP and endpoint in fixed
// one-minute windows. A burst of up to twice the limit is possible across a
// window boundary.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"vault/internal/domain"
	"vault/internal/httpx"
	"vault/internal/netutil"
	"vault/internal/observability/metrics"
	"vault/internal/observability/middleware"
	"vault/internal/store"
)

// Limiter records one call and returns the number of calls made by ip to
// endpoint in the current window, this one included.
type Limiter interface {
	Admit(ctx context.Context, ip, endpoint string) (int64, error)
}

// StoreLimiter keeps its windows in the ip_call_count table.
type StoreLimiter struct {
	store *store.Store
}

func NewStoreLimiter(st *store.Store) *StoreLimiter {
	return &StoreLimiter{store: st}
}

func (l *StoreLimiter) Admit(ctx context.Context, ip, endpoint string) (int64, error) {
	now, err := l.store.Now(ctx)
	if err != nil {
		return 0, err
	}
	return l.store.RateBuckets().Hit(ctx, ip, endpoint, now)
}

// Allow reports whether a call is within max, recording it either way.
func Allow(ctx context.Context, l Limiter, ip, endpoint string, max int64) (bool, error) {
	n, err := l.Admit(ctx, ip, endpoint)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", endpoint, err)
	}
	return n <= max, nil
}

// Middleware rejects requests over max calls per minute with 429. onError
// handles limiter failures; the request is not served in that case.
func Middleware(l Limiter, endpoint string, max int64, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := netutil.ClientIP(r)
			ok, err := Allow(r.Context(), l, ip, endpoint, max)
			if err != nil {
				onError(w, r, err)
				return
			}
			if !ok {
				metrics.RateLimitedTotal.WithLabelValues(endpoint).Inc()
				slog.Warn("rate limited", "ip", ip, "endpoint", endpoint,
					"request_id", middleware.RequestIDFromContext(r.Context()))
				httpx.WriteError(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
