package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vault/internal/domain"
)

// ErrKeyAlreadyBound is returned by BindKey when the identity has a key.
var ErrKeyAlreadyBound = errors.New("public key already bound")

type EntityStore struct{ db *gorm.DB }

func (s *Store) Entities() *EntityStore { return &EntityStore{s.DB} }

// Ensure inserts the identity if it is missing and reports whether it did.
func (es *EntityStore) Ensure(ctx context.Context, id domain.Identity) (bool, error) {
	res := es.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "did"}}, DoNothing: true}).
		Create(&domain.Entity{DID: id})
	return res.RowsAffected > 0, res.Error
}

// BootstrapAdmin inserts id as an admin only while the registry is empty.
func (es *EntityStore) BootstrapAdmin(ctx context.Context, id domain.Identity) (bool, error) {
	res := es.db.WithContext(ctx).Exec(
		`INSERT INTO entities (did, admin, data_count, deleted_count, blacklisted)
		 SELECT ?, ?, 0, 0, ? WHERE (SELECT COUNT(*) FROM entities) = 0`,
		id, true, false)
	return res.RowsAffected > 0, res.Error
}

func (es *EntityStore) Get(ctx context.Context, id domain.Identity) (*domain.Entity, error) {
	var e domain.Entity
	if err := es.db.WithContext(ctx).First(&e, "did = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (es *EntityStore) IsAdmin(ctx context.Context, id domain.Identity) (bool, error) {
	var n int64
	err := es.db.WithContext(ctx).Model(&domain.Entity{}).
		Where("did = ? AND admin = ?", id, true).
		Count(&n).Error
	return n > 0, err
}

func (es *EntityStore) SetAdmin(ctx context.Context, id domain.Identity, admin bool) error {
	if !admin {
		return es.update(ctx, id, "admin", false)
	}
	return es.upsertFlag(ctx, &domain.Entity{DID: id, Admin: true}, "admin")
}

func (es *EntityStore) SetBlacklisted(ctx context.Context, id domain.Identity, blacklisted bool) error {
	if !blacklisted {
		return es.update(ctx, id, "blacklisted", false)
	}
	return es.upsertFlag(ctx, &domain.Entity{DID: id, Blacklisted: true}, "blacklisted")
}

func (es *EntityStore) upsertFlag(ctx context.Context, e *domain.Entity, column string) error {
	return es.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "did"}},
		DoUpdates: clause.Assignments(map[string]any{column: true}),
	}).Create(e).Error
}

func (es *EntityStore) update(ctx context.Context, id domain.Identity, column string, value any) error {
	return es.db.WithContext(ctx).Model(&domain.Entity{}).
		Where("did = ?", id).
		Update(column, value).Error
}

// BindKey stores key for id unless one is already bound.
func (es *EntityStore) BindKey(ctx context.Context, id domain.Identity, key []byte) error {
	res := es.db.WithContext(ctx).Model(&domain.Entity{}).
		Where("did = ? AND public_key IS NULL", id).
		Update("public_key", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyAlreadyBound
	}
	return nil
}

// Counters is the pair of ledger counters kept on an identity.
type Counters struct {
	DataCount    int64 `json:"dataCount"`
	DeletedCount int64 `json:"deletedCount"`
}

// AdvanceDataCount claims the next record id for id. With expected set the
// claim only succeeds if that is the next id. ok is false when no row matched.
func (es *EntityStore) AdvanceDataCount(ctx context.Context, id domain.Identity, expected *int64) (next int64, ok bool, err error) {
	q := `UPDATE entities SET data_count = data_count + 1 WHERE did = ?`
	args := []any{id}
	if expected != nil {
		q += ` AND data_count = ?`
		args = append(args, *expected)
	}
	q += ` RETURNING data_count`

	var counts []int64
	if err := es.db.WithContext(ctx).Raw(q, args...).Scan(&counts).Error; err != nil {
		return 0, false, err
	}
	if len(counts) == 0 {
		return 0, false, nil
	}
	return counts[0] - 1, true, nil
}

// AddDeleted bumps deleted_count by n and returns both counters afterwards.
func (es *EntityStore) AddDeleted(ctx context.Context, id domain.Identity, n int64) (Counters, error) {
	var out []Counters
	err := es.db.WithContext(ctx).Raw(
		`UPDATE entities SET deleted_count = deleted_count + ? WHERE did = ? RETURNING data_count, deleted_count`,
		n, id).Scan(&out).Error
	if err != nil {
		return Counters{}, err
	}
	if len(out) == 0 {
		return Counters{}, ErrRecordNotFound
	}
	return out[0], nil
}
