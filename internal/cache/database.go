package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/civicalert/civicalert/internal/models"
)

// DatabaseStore implements the Store interface using the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// IncrementWithTTL increments the counter for key in a single upsert. An expired row is
// reset to 1 with a fresh expiry; a live row keeps its original expiry.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now().UTC()
	expiry := now.Add(window)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := models.CacheEntry{Key: key, Hits: 1, ExpiresAt: expiry}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"hits":       gorm.Expr("CASE WHEN cache_entries.expires_at <= ? THEN 1 ELSE cache_entries.hits + 1 END", now),
				"expires_at": gorm.Expr("CASE WHEN cache_entries.expires_at <= ? THEN ? ELSE cache_entries.expires_at END", now, expiry),
				"updated_at": now,
			}),
		}).Create(&insert).Error
		if err != nil {
			return err
		}

		return tx.Where(map[string]interface{}{"key": key}).Take(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	ttl := entry.ExpiresAt.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	return entry.Hits, ttl, nil
}

// PurgeExpired removes counters whose window has ended.
func (s *DatabaseStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil {
		return 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}

// Ping checks the underlying SQL connection.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("cache: database store not initialised")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
