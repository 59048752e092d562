package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"

	"vault/internal/authz"
	"vault/internal/didresolver"
	"vault/internal/domain"
	"vault/internal/dto"
	"vault/internal/httpx"
	"vault/internal/observability/middleware"
)

type handlers struct {
	Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, dto.HealthResponse{Success: true})
}

func (h *handlers) requestToken(w http.ResponseWriter, r *http.Request) {
	req, err := dto.ParseRequestToken(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tok, err := h.Tokens.Issue(r.Context(), req.DID, req.Initialize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.TokenResponse{Token: tok.String()})
}

func (h *handlers) validateToken(w http.ResponseWriter, r *http.Request) {
	var body dto.ValidateTokenRequest
	if err := dto.Decode(r.Body, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := body.Validate()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expires, err := h.Tokens.Validate(r.Context(), req.Token, req.DID, req.Signature, req.PublicKey)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.ValidateTokenResponse{ExpiresAt: expires.Unix()})
}

// adminAction wraps the registry mutations that take ?did= and answer {}.
func (h *handlers) adminAction(fn func(ctx context.Context, actor, target domain.Identity) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := authz.IdentityFrom(r.Context())
		target, err := dto.ParseDID(r.URL.Query())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := fn(r.Context(), actor, target); err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, struct{}{})
	}
}

func (h *handlers) setBlacklist(on bool) http.HandlerFunc {
	return h.adminAction(func(ctx context.Context, actor, target domain.Identity) error {
		return h.Registry.SetBlacklisted(ctx, actor, target, on)
	})
}

func (h *handlers) setAdmin(on bool) http.HandlerFunc {
	return h.adminAction(func(ctx context.Context, actor, target domain.Identity) error {
		return h.Registry.SetAdmin(ctx, actor, target, on)
	})
}

func (h *handlers) addEntity(w http.ResponseWriter, r *http.Request) {
	h.adminAction(h.Registry.AddEntity)(w, r)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, _ := authz.IdentityFrom(r.Context())
	counters, err := h.Registry.Counters(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	indexes, err := h.Ledger.ListIndexes(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var did any = id.String()
	if h.Resolver != nil {
		doc, err := h.Resolver.Resolve(r.Context(), id)
		switch {
		case err == nil:
			did = doc
		case errors.Is(err, didresolver.ErrUnsupported):
		default:
			h.fail(w, r, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewMe(did, counters, indexes))
}

func (h *handlers) readData(w http.ResponseWriter, r *http.Request) {
	id, _ := authz.IdentityFrom(r.Context())
	span, err := dto.ParseSpan(chi.URLParam(r, "start"), chi.URLParam(r, "end"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recs, err := h.Ledger.Read(r.Context(), id, span, dto.ParseCypherindexFilter(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewRecords(recs))
}

func (h *handlers) appendData(w http.ResponseWriter, r *http.Request) {
	id, _ := authz.IdentityFrom(r.Context())
	var body dto.AppendRequest
	if err := dto.Decode(r.Body, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := body.Validate()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	newID, err := h.Ledger.Append(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.AppendResponse{ID: newID})
}

func (h *handlers) deleteData(w http.ResponseWriter, r *http.Request) {
	id, _ := authz.IdentityFrom(r.Context())
	span, err := dto.ParseSpan(chi.URLParam(r, "start"), chi.URLParam(r, "end"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body dto.DeleteRequest
	if err := dto.Decode(r.Body, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	counters, err := h.Ledger.Delete(r.Context(), id, span, body.Signatures)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.DeleteResponse{DeletedCount: counters.DeletedCount, DataCount: counters.DataCount})
}

func (h *handlers) listDeletions(w http.ResponseWriter, r *http.Request) {
	id, _ := authz.IdentityFrom(r.Context())
	span, err := dto.ParseSpan(chi.URLParam(r, "start"), chi.URLParam(r, "end"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.Ledger.ListDeletions(r.Context(), id, span)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewDeletions(rows))
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, http.StatusNotFound, "not found")
}

// fail maps domain errors to responses. Anything unrecognised is a 500.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var fe *domain.FieldError
	switch {
	case errors.As(err, &fe):
		httpx.WriteError(w, http.StatusBadRequest, fe.Message)
	case errors.Is(err, domain.ErrSequenceConflict):
		httpx.WriteError(w, http.StatusBadRequest, domain.ErrSequenceConflict.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrUnauthenticated):
		httpx.WriteError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrNoData):
		httpx.WriteError(w, http.StatusNotFound, domain.ErrNoData.Error())
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	default:
		h.internal(w, r, err)
	}
}

func (h *handlers) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.Error("request failed", "error", err,
		"request_id", middleware.RequestIDFromContext(r.Context()),
		"trace_id", middleware.TraceIDFromContext(r.Context()))
	if h.Reporter != nil {
		go h.Reporter.Report(context.WithoutCancel(r.Context()), err.Error(), string(debug.Stack()))
	}
	httpx.WriteError(w, http.StatusInternalServerError, "Something went wrong")
}
