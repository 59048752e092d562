// Package storetest opens throwaway sqlite databases with the vault schema.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vault/internal/store"
)

var seq atomic.Int64

// Open returns a migrated in-memory database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.New(db).AutoMigrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// Clock is a settable time source for store.WithClock.
type Clock struct {
	now atomic.Pointer[time.Time]
}

func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.Set(start)
	return c
}

func (c *Clock) Now() time.Time { return *c.now.Load() }

func (c *Clock) Set(t time.Time) {
	t = t.UTC()
	c.now.Store(&t)
}

func (c *Clock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }
