package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vault/internal/domain"
)

type TokenStore struct {
	db *gorm.DB
	s  *Store
}

func (s *Store) Tokens() *TokenStore { return &TokenStore{db: s.DB, s: s} }

func (ts *TokenStore) Create(ctx context.Context, t *domain.AccessToken) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return ts.db.WithContext(ctx).Create(t).Error
}

// MarkValidated stamps the token as validated if it belongs to id and has
// never been validated. It reports whether a row changed.
func (ts *TokenStore) MarkValidated(ctx context.Context, tokenID uuid.UUID, id domain.Identity, at time.Time) (bool, error) {
	res := ts.db.WithContext(ctx).Model(&domain.AccessToken{}).
		Where("uuid = ? AND did = ? AND validated_at IS NULL", tokenID, id).
		Update("validated_at", at)
	return res.RowsAffected > 0, res.Error
}

const resolveSQL = `SELECT access_token.did FROM access_token
	JOIN entities ON entities.did = access_token.did
	WHERE access_token.uuid = ?
	  AND access_token.validated_at BETWEEN %s AND %s
	  AND entities.blacklisted = ?
	LIMIT 1`

// Resolve returns the identity owning a live token: validated within
// [now-ttl, now] and not blacklisted. ok is false otherwise. On Postgres the
// window is measured against now() in the same statement.
func (ts *TokenStore) Resolve(ctx context.Context, tokenID uuid.UUID, ttl time.Duration) (domain.Identity, bool, error) {
	var now time.Time
	if !ts.s.databaseClock() {
		var err error
		if now, err = ts.s.Now(ctx); err != nil {
			return "", false, err
		}
	}
	var dids []string
	err := ts.resolveQuery(ts.db.WithContext(ctx), tokenID, ttl, now).Scan(&dids).Error
	if err != nil || len(dids) == 0 {
		return "", false, err
	}
	return domain.Identity(dids[0]), true, nil
}

// resolveQuery builds the lookup for Resolve. now is ignored when the
// database clock is used.
func (ts *TokenStore) resolveQuery(db *gorm.DB, tokenID uuid.UUID, ttl time.Duration, now time.Time) *gorm.DB {
	if ts.s.databaseClock() {
		return db.Raw(fmt.Sprintf(resolveSQL, "now() - make_interval(secs => ?)", "now()"),
			tokenID, ttl.Seconds(), false)
	}
	return db.Raw(fmt.Sprintf(resolveSQL, "?", "?"), tokenID, now.Add(-ttl), now, false)
}
