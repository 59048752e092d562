package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vault/internal/domain"
)

// ErrRecordNotFound wraps domain.ErrNotFound for rows looked up by key.
var ErrRecordNotFound = fmt.Errorf("%w: record", domain.ErrNotFound)

type Store struct {
	DB    *gorm.DB
	clock func() time.Time
}

type Option func(*Store)

// WithClock replaces the database clock. Tests use it to move time.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{DB: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, clock: s.clock})
	})
}

// databaseClock reports whether now() in SQL is the authoritative clock, so
// queries can compare against it without reading it first.
func (s *Store) databaseClock() bool {
	return s.clock == nil && s.DB.Dialector.Name() == "postgres"
}

// Now returns the time all validity windows are measured against. On Postgres
// that is now(), which stays fixed for the whole transaction.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	if s.clock != nil {
		return s.clock().UTC(), nil
	}
	if s.DB.Dialector.Name() != "postgres" {
		return time.Now().UTC().Truncate(time.Microsecond), nil
	}
	var now time.Time
	if err := s.DB.WithContext(ctx).Raw("SELECT now()").Row().Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read database clock: %w", err)
	}
	return now.UTC(), nil
}

// Models lists every table the vault owns, in dependency order.
func Models() []any {
	return []any{
		&domain.Entity{},
		&domain.AccessToken{},
		&domain.DataRecord{},
		&domain.Deletion{},
		&domain.IndexEntry{},
		&domain.RateBucket{},
	}
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(Models()...)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
