// Package history records the narrative trail for workflow-level entities.
// Like the audit sink it is best-effort: inventory-item history is written
// transactionally by the ledger instead and does not go through here.
package history

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/model"
)

// Sink appends narrative history entries.
type Sink interface {
	Append(ctx context.Context, entityType string, entityID int64, action string, actorID int64, comment string)
}

// GormSink persists entries to the history_entries table.
type GormSink struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewGormSink creates a database-backed history sink.
func NewGormSink(db *gorm.DB, log *logrus.Logger) *GormSink {
	return &GormSink{db: db, log: log}
}

// Append implements Sink. Errors are logged, never returned.
func (s *GormSink) Append(ctx context.Context, entityType string, entityID int64, action string, actorID int64, comment string) {
	entry := model.HistoryEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Comment:    comment,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.WithFields(logrus.Fields{
			"entity_type": entityType,
			"entity_id":   entityID,
			"action":      action,
		}).WithError(err).Warn("history entry dropped")
	}
}

// NopSink discards all entries.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(context.Context, string, int64, string, int64, string) {}
