package models

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry is one key of the local key/value store. Values are JSON documents.
type KVEntry struct {
	Key       string         `gorm:"primaryKey;size:191"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"index"`
}

// TableName pins the table name used by every storage driver.
func (KVEntry) TableName() string { return "kv_entries" }
