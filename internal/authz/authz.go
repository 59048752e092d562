package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"vault/internal/domain"
	"vault/internal/httpx"
	"vault/internal/observability/metrics"
	obsmw "vault/internal/observability/middleware"
)

var bearerRE = regexp.MustCompile(`(?i)^Bearer ([0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12})$`)

// ParseBearer extracts the token id from an Authorization header value.
func ParseBearer(header string) (uuid.UUID, bool) {
	m := bearerRE.FindStringSubmatch(header)
	if m == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(m[1])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type TokenChecker interface {
	Check(ctx context.Context, tokenID uuid.UUID) (domain.Identity, error)
}

type Gate struct {
	tokens  TokenChecker
	onError func(http.ResponseWriter, *http.Request, error)
}

// NewGate builds the bearer middleware. onError receives failures other than
// a rejected token.
func NewGate(tokens TokenChecker, onError func(http.ResponseWriter, *http.Request, error)) *Gate {
	return &Gate{tokens: tokens, onError: onError}
}

func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())

		tokenID, ok := ParseBearer(r.Header.Get("Authorization"))
		if !ok {
			metrics.TokensTotal.WithLabelValues("check", "malformed").Inc()
			slog.Debug("missing or malformed bearer", "request_id", reqID)
			httpx.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
			return
		}

		id, err := g.tokens.Check(r.Context(), tokenID)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				httpx.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
				return
			}
			g.onError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok && id != ""
}
