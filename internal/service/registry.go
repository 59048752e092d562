package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vault/internal/domain"
	"vault/internal/observability/middleware"
	"vault/internal/store"
)

// Registry owns identities and their admin/blacklist flags.
type Registry struct {
	store *store.Store
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// Counters returns how many records id has appended and deleted.
func (r *Registry) Counters(ctx context.Context, id domain.Identity) (store.Counters, error) {
	e, err := r.store.Entities().Get(ctx, id)
	if err != nil {
		return store.Counters{}, err
	}
	return store.Counters{DataCount: e.DataCount, DeletedCount: e.DeletedCount}, nil
}

func (r *Registry) AddEntity(ctx context.Context, actor, id domain.Identity) error {
	return r.asAdmin(ctx, actor, "add entity", id, func(tx *store.Store) error {
		_, err := tx.Entities().Ensure(ctx, id)
		return err
	})
}

func (r *Registry) SetAdmin(ctx context.Context, actor, id domain.Identity, admin bool) error {
	return r.asAdmin(ctx, actor, fmt.Sprintf("set admin=%t", admin), id, func(tx *store.Store) error {
		return tx.Entities().SetAdmin(ctx, id, admin)
	})
}

func (r *Registry) SetBlacklisted(ctx context.Context, actor, id domain.Identity, blacklisted bool) error {
	return r.asAdmin(ctx, actor, fmt.Sprintf("set blacklisted=%t", blacklisted), id, func(tx *store.Store) error {
		return tx.Entities().SetBlacklisted(ctx, id, blacklisted)
	})
}

// asAdmin runs fn in the same transaction that confirms actor is an admin.
func (r *Registry) asAdmin(ctx context.Context, actor domain.Identity, action string, target domain.Identity, fn func(tx *store.Store) error) error {
	err := r.store.WithTx(ctx, func(tx *store.Store) error {
		ok, err := tx.Entities().IsAdmin(ctx, actor)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is not an admin", domain.ErrUnauthorized, actor)
		}
		return fn(tx)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthorized) {
			return err
		}
		slog.Warn("admin action refused", "actor", actor, "action", action, "did", target,
			"request_id", middleware.RequestIDFromContext(ctx))
		return err
	}

	slog.Info("admin action", "actor", actor, "action", action, "did", target,
		"request_id", middleware.RequestIDFromContext(ctx),
		"trace_id", middleware.TraceIDFromContext(ctx))
	return nil
}
