package store

import (
	"context"

	"gorm.io/gorm"

	"vault/internal/domain"
)

type DeletionStore struct{ db *gorm.DB }

func (s *Store) Deletions() *DeletionStore { return &DeletionStore{s.DB} }

func (ds *DeletionStore) Add(ctx context.Context, rows []domain.Deletion) error {
	if len(rows) == 0 {
		return nil
	}
	return ds.db.WithContext(ctx).Create(&rows).Error
}

func (ds *DeletionStore) Range(ctx context.Context, id domain.Identity, start, end int64) ([]domain.Deletion, error) {
	var out []domain.Deletion
	err := ds.db.WithContext(ctx).
		Where("did = ? AND id BETWEEN ? AND ?", id, start, end).
		Order("id").
		Find(&out).Error
	return out, err
}
