package models

import "time"

// MemoryEntryModel is the authoritative (durable) row backing a hybrid
// memory entry. The semantic index (LanceDB) is a best-effort recall
// accelerator over the same IDs; this table is the source of truth.
type MemoryEntryModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	SessionID string `gorm:"index;size:64"`
	UserID    string `gorm:"size:64"`
	Category  string `gorm:"size:32"`
	Content   string `gorm:"type:text;not null"`
	Metadata  string `gorm:"type:text"` // JSON encoded
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (MemoryEntryModel) TableName() string {
	return "memory_entries"
}
