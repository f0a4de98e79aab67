package model

import "time"

// AuditEvent is a best-effort audit trail row. Writing one never aborts the
// transaction it describes.
type AuditEvent struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ActorID     int64     `gorm:"index" json:"actorId"`
	Action      string    `gorm:"size:64;index;not null" json:"action"`
	EntityType  string    `gorm:"size:64;index;not null" json:"entityType"`
	EntityID    int64     `gorm:"index" json:"entityId"`
	Description string    `gorm:"type:text" json:"description"`
	Metadata    string    `gorm:"type:text" json:"metadata"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

// HistoryEntry is the narrative trail for workflow-level entities (defect
// records, servers). Inventory items have their own transactional trail in
// ComponentHistoryEntry.
type HistoryEntry struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:64;index;not null" json:"entityType"`
	EntityID   int64     `gorm:"index;not null" json:"entityId"`
	Action     string    `gorm:"size:64;not null" json:"action"`
	ActorID    int64     `json:"actorId"`
	Comment    string    `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
