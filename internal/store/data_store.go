package store

import (
	"context"
	"slices"

	"gorm.io/gorm"

	"vault/internal/domain"
)

type DataStore struct{ db *gorm.DB }

func (s *Store) Data() *DataStore { return &DataStore{s.DB} }

func (ds *DataStore) Insert(ctx context.Context, rec *domain.DataRecord) error {
	return ds.db.WithContext(ctx).Create(rec).Error
}

// Range returns records with start <= id <= end in id order. A non-empty
// filter keeps only records carrying at least one of the index tokens.
func (ds *DataStore) Range(ctx context.Context, id domain.Identity, start, end int64, filter [][]byte) ([]domain.DataRecord, error) {
	q := ds.db.WithContext(ctx).
		Where("did = ? AND id BETWEEN ? AND ?", id, start, end)
	if len(filter) > 0 {
		tokens := make([]any, len(filter))
		for i, f := range filter {
			tokens[i] = f
		}
		q = q.Where(`EXISTS (SELECT 1 FROM data_encrypted_indexes dei
			WHERE dei.data_did = data.did AND dei.data_id = data.id AND dei.cipherindex IN ?)`, tokens)
	}

	var out []domain.DataRecord
	if err := q.Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Tombstone nulls the ciphertext of every live record in [start, end] and
// returns the affected ids in ascending order.
func (ds *DataStore) Tombstone(ctx context.Context, id domain.Identity, start, end int64) ([]int64, error) {
	var ids []int64
	err := ds.db.WithContext(ctx).Raw(
		`UPDATE data SET cyphertext = NULL
		 WHERE did = ? AND id BETWEEN ? AND ? AND cyphertext IS NOT NULL
		 RETURNING id`,
		id, start, end).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}
