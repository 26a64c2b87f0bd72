package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps entries in the kv_entries table of a SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. The kv_entries table must already be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get returns the value stored under key.
func (s *GormStore) Get(ctx context.Context, key string) (string, error) {
	var e models.KVEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return string(e.Value), nil
}

// Set upserts key.
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	e := models.KVEntry{Key: key, Value: datatypes.JSON(value), UpdatedAt: time.Now()}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e)
	if result.Error != nil {
		return fmt.Errorf("kv: set %s: %w", key, result.Error)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists keys with the given prefix.
func (s *GormStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).Model(&models.KVEntry{}).Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("kv: keys %s: %w", prefix, err)
	}
	return sortedWithPrefix(keys, prefix), nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("kv: close: %w", err)
	}
	return sqlDB.Close()
}
