package domain

import "time"

// KVEntry is one key of the shared key-value store when it is backed by SQLite.
// Origin records the execution context that wrote the current value.
type KVEntry struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`
	Value     []byte    `gorm:"type:blob;not null"`
	Origin    string    `gorm:"type:varchar(64);not null;default:''"`
	UpdatedAt time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (KVEntry) TableName() string { return "kv_entries" }
