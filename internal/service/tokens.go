package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vault/internal/domain"
	"vault/internal/observability/metrics"
	"vault/internal/observability/middleware"
	"vault/internal/sigverify"
	"vault/internal/store"
)

type TokenConfig struct {
	TTL time.Duration
	// AllowAnonymous lets unknown identities register by requesting a token.
	AllowAnonymous bool
}

// Tokens issues challenge tokens and turns them into bearer credentials once
// the identity signs them.
type Tokens struct {
	cfg     TokenConfig
	store   *store.Store
	schemes *sigverify.Registry
}

func NewTokens(cfg TokenConfig, st *store.Store, schemes *sigverify.Registry) *Tokens {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Tokens{cfg: cfg, store: st, schemes: schemes}
}

var errUnknownIdentity = errors.New("identity not registered")

// Issue returns a fresh unvalidated token for id. With initialize set and an
// empty registry, id becomes the first admin. When id is unknown and
// anonymous registration is off, a random id that matches nothing is returned
// so callers cannot tell registered identities apart.
func (t *Tokens) Issue(ctx context.Context, id domain.Identity, initialize bool) (uuid.UUID, error) {
	result := "success"
	defer func() {
		metrics.TokensTotal.WithLabelValues("issue", result).Inc()
	}()

	var token domain.AccessToken
	err := t.store.WithTx(ctx, func(tx *store.Store) error {
		if initialize {
			first, err := tx.Entities().BootstrapAdmin(ctx, id)
			if err != nil {
				return err
			}
			if first {
				slog.Info("initialized first admin", "did", id, "request_id", middleware.RequestIDFromContext(ctx))
			}
		}

		created, err := tx.Entities().Ensure(ctx, id)
		if err != nil {
			return err
		}
		if created && !t.cfg.AllowAnonymous {
			return errUnknownIdentity
		}

		now, err := tx.Now(ctx)
		if err != nil {
			return err
		}
		token = domain.AccessToken{UUID: uuid.New(), DID: id, CreatedAt: now}
		return tx.Tokens().Create(ctx, &token)
	})
	switch {
	case errors.Is(err, errUnknownIdentity):
		result = "unknown"
		return uuid.New(), nil
	case err != nil:
		result = "failure"
		return uuid.Nil, err
	}
	return token.UUID, nil
}

// Validate checks that signature was made by id over challenge, the token
// exactly as the client sent it, and marks the token validated. It returns
// when the token stops being accepted.
func (t *Tokens) Validate(ctx context.Context, challenge string, id domain.Identity, signature string, publicKey []byte) (time.Time, error) {
	result := "success"
	defer func() {
		metrics.TokensTotal.WithLabelValues("validate", result).Inc()
	}()

	tokenID, err := uuid.Parse(challenge)
	if err != nil {
		result = "rejected"
		return time.Time{}, domain.BadFormat("accessToken")
	}

	var expires time.Time
	err = t.store.WithTx(ctx, func(tx *store.Store) error {
		e, err := tx.Entities().Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: unknown identity", domain.ErrUnauthorized)
			}
			return err
		}

		bind, err := t.schemes.Verify(id, challenge, signature, e.Key, publicKey)
		if err != nil {
			return verifyError(err, "signature")
		}

		now, err := tx.Now(ctx)
		if err != nil {
			return err
		}
		ok, err := tx.Tokens().MarkValidated(ctx, tokenID, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: token unknown or already validated", domain.ErrUnauthorized)
		}

		if bind != nil {
			if err := tx.Entities().BindKey(ctx, id, bind); err != nil {
				if errors.Is(err, store.ErrKeyAlreadyBound) {
					return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
				}
				return err
			}
		}
		expires = now.Add(t.cfg.TTL)
		return nil
	})
	if err != nil {
		result = "rejected"
		if !errors.Is(err, domain.ErrUnauthorized) && !errors.Is(err, domain.ErrInvalidRequest) {
			result = "failure"
		}
		return time.Time{}, err
	}

	slog.Info("validated token", "did", id,
		"request_id", middleware.RequestIDFromContext(ctx),
		"trace_id", middleware.TraceIDFromContext(ctx))
	return expires, nil
}

// Check resolves a bearer token to its identity.
func (t *Tokens) Check(ctx context.Context, tokenID uuid.UUID) (domain.Identity, error) {
	id, ok, err := t.store.Tokens().Resolve(ctx, tokenID, t.cfg.TTL)
	if err != nil {
		return "", err
	}
	if !ok {
		metrics.TokensTotal.WithLabelValues("check", "rejected").Inc()
		return "", domain.ErrUnauthenticated
	}
	return id, nil
}

// verifyError maps signature scheme failures onto the client-facing errors.
func verifyError(err error, field string) error {
	switch {
	case errors.Is(err, sigverify.ErrMalformed):
		return fmt.Errorf("%w (%v)", domain.BadFormat(field), err)
	case errors.Is(err, sigverify.ErrUnknown):
		return domain.BadFormat("did")
	case errors.Is(err, sigverify.ErrMismatch),
		errors.Is(err, sigverify.ErrKeyBound),
		errors.Is(err, sigverify.ErrNoKey):
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	default:
		return err
	}
}
