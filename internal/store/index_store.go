package store

import (
	"context"

	"gorm.io/gorm"

	"vault/internal/domain"
)

type IndexStore struct{ db *gorm.DB }

func (s *Store) Indexes() *IndexStore { return &IndexStore{s.DB} }

func (is *IndexStore) Attach(ctx context.Context, id domain.Identity, dataID int64, tokens [][]byte) error {
	if len(tokens) == 0 {
		return nil
	}
	rows := make([]domain.IndexEntry, len(tokens))
	for i, t := range tokens {
		rows[i] = domain.IndexEntry{DataID: dataID, DataDID: id, Cipherindex: t}
	}
	return is.db.WithContext(ctx).Create(&rows).Error
}

// ForRecords returns the index tokens of each listed record, keyed by id.
func (is *IndexStore) ForRecords(ctx context.Context, id domain.Identity, dataIDs []int64) (map[int64][][]byte, error) {
	out := make(map[int64][][]byte, len(dataIDs))
	if len(dataIDs) == 0 {
		return out, nil
	}
	var rows []domain.IndexEntry
	err := is.db.WithContext(ctx).
		Where("data_did = ? AND data_id IN ?", id, dataIDs).
		Order("data_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.DataID] = append(out[r.DataID], r.Cipherindex)
	}
	return out, nil
}

// Distinct lists every token ever attached to the identity's records, each
// once, in the order first seen by record id.
func (is *IndexStore) Distinct(ctx context.Context, id domain.Identity) ([][]byte, error) {
	var rows []domain.IndexEntry
	err := is.db.WithContext(ctx).
		Select("data_id", "cipherindex").
		Where("data_did = ?", id).
		Order("data_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[string(r.Cipherindex)]; ok {
			continue
		}
		seen[string(r.Cipherindex)] = struct{}{}
		out = append(out, r.Cipherindex)
	}
	return out, nil
}
