// Package audit provides the fire-and-forget audit trail. Sink calls are made
// after the owning transaction commits; a failing sink is logged and ignored
// so bookkeeping can never abort a completed mutation.
package audit

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/model"
)

// Entity type tags used across the workflow.
const (
	EntityDefectRecord  = "DEFECT_RECORD"
	EntityServer        = "SERVER"
	EntityInventoryItem = "INVENTORY_ITEM"
	EntityPoolEntry     = "SUBSTITUTE_POOL_ENTRY"
	EntityRepairTicket  = "REPAIR_TICKET"
)

// Sink receives audit events.
type Sink interface {
	LogEvent(ctx context.Context, actorID int64, action, entityType string, entityID int64, description string, metadata map[string]any)
}

// GormSink persists events to the audit_events table.
type GormSink struct {
	db  *gorm.DB
	log *logrus.Logger
}

// NewGormSink creates a database-backed audit sink.
func NewGormSink(db *gorm.DB, log *logrus.Logger) *GormSink {
	return &GormSink{db: db, log: log}
}

// LogEvent implements Sink. Errors are logged, never returned.
func (s *GormSink) LogEvent(ctx context.Context, actorID int64, action, entityType string, entityID int64, description string, metadata map[string]any) {
	var meta string
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}

	event := model.AuditEvent{
		ActorID:     actorID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
		Metadata:    meta,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.log.WithFields(logrus.Fields{
			"action":      action,
			"entity_type": entityType,
			"entity_id":   entityID,
		}).WithError(err).Warn("audit event dropped")
	}
}

// NopSink discards all events.
type NopSink struct{}

// LogEvent implements Sink.
func (NopSink) LogEvent(context.Context, int64, string, string, int64, string, map[string]any) {}
