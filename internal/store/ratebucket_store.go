package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type RateBucketStore struct{ db *gorm.DB }

func (s *Store) RateBuckets() *RateBucketStore { return &RateBucketStore{s.DB} }

// Hit counts one call from ip to endpoint and returns the count for the
// current minute. The bucket restarts at 1 when the minute-of-hour changed or
// the last call is more than a minute old.
func (rs *RateBucketStore) Hit(ctx context.Context, ip, endpoint string, now time.Time) (int64, error) {
	var counts []int64
	err := rs.db.WithContext(ctx).Raw(
		`INSERT INTO ip_call_count (ip, endpoint, minute, count, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (ip, endpoint) DO UPDATE SET
		   count = CASE
		     WHEN ip_call_count.minute <> excluded.minute OR ip_call_count.updated_at < ? THEN 1
		     ELSE ip_call_count.count + 1
		   END,
		   minute = excluded.minute,
		   updated_at = excluded.updated_at
		 RETURNING count`,
		ip, endpoint, now.Minute(), now, now.Add(-time.Minute)).Scan(&counts).Error
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 1, nil
	}
	return counts[0], nil
}
