// Package ledger owns the lifecycle of spare and replacement parts. Every
// mutation appends exactly one ComponentHistoryEntry in the same transaction
// as the state change: a history row never exists without a committed
// mutation, and no mutation commits without its history row.
package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/model"
)

// AddItemSpec describes a part entering the inventory.
type AddItemSpec struct {
	Type                 model.ComponentType
	SerialNumber         string
	InternalSerialNumber string
	Manufacturer         string
	Model                string
	Condition            model.ComponentCondition
	Location             string
	PurchaseDate         *time.Time
	WarrantyExpires      *time.Time
	Notes                string
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	Type      model.ComponentType
	Status    model.InventoryStatus
	Condition model.ComponentCondition
	ServerID  *int64
	Search    string
	Limit     int
	Offset    int
}

// TypeStats is the per-type status breakdown returned by Stats.
type TypeStats map[model.InventoryStatus]int64

// Stats summarizes the inventory.
type Stats struct {
	ByType                 map[model.ComponentType]TypeStats
	Total                  int64
	Available              int64
	InUse                  int64
	Defective              int64
	InRepair               int64
	WarrantyExpiringWithin int64
}

// Ledger defines the inventory operations. Contended transitions (Reserve)
// are guarded by status-conditional updates so concurrent callers cannot
// double-reserve an item; the loser observes ErrInvalidTransition.
type Ledger interface {
	AddToInventory(ctx context.Context, spec AddItemSpec, actorID int64) (*model.ComponentInventoryItem, error)
	Reserve(ctx context.Context, itemID, defectID, actorID int64) (*model.ComponentInventoryItem, error)
	Release(ctx context.Context, itemID, actorID int64, note string) (*model.ComponentInventoryItem, error)
	InstallToServer(ctx context.Context, itemID, serverID, actorID int64, defectID *int64) (*model.ComponentInventoryItem, error)
	RemoveFromServer(ctx context.Context, itemID, actorID int64, defective bool, reason string, defectID *int64) (*model.ComponentInventoryItem, error)
	SendToExternalRepair(ctx context.Context, itemID int64, ticketRef string, actorID int64) (*model.ComponentInventoryItem, error)
	ReturnFromExternalRepair(ctx context.Context, itemID, actorID int64, condition model.ComponentCondition) (*model.ComponentInventoryItem, error)
	MarkDefective(ctx context.Context, itemID, actorID int64, note string, defectID *int64) (*model.ComponentInventoryItem, error)
	MarkTested(ctx context.Context, itemID, actorID int64, passed bool, note string) (*model.ComponentInventoryItem, error)
	UpdateLocation(ctx context.Context, itemID int64, location string, actorID int64) (*model.ComponentInventoryItem, error)
	Scrap(ctx context.Context, itemID, actorID int64, reason string) (*model.ComponentInventoryItem, error)

	GetByID(ctx context.Context, itemID int64) (*model.ComponentInventoryItem, error)
	GetBySerial(ctx context.Context, serial string) (*model.ComponentInventoryItem, error)
	ListAvailableByType(ctx context.Context, t model.ComponentType, limit int) ([]model.ComponentInventoryItem, error)
	List(ctx context.Context, f Filter) ([]model.ComponentInventoryItem, int64, error)
	History(ctx context.Context, itemID int64) ([]model.ComponentHistoryEntry, error)
	Stats(ctx context.Context, warrantyAlertDays int) (*Stats, error)

	// WithTx returns a Ledger bound to an existing transaction so the
	// workflow engine can compose ledger calls into its own atomic scope.
	WithTx(tx *gorm.DB) Ledger
}

type gormLedger struct {
	db *gorm.DB
}

// New creates a GORM-backed ledger.
func New(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) WithTx(tx *gorm.DB) Ledger {
	return &gormLedger{db: tx}
}

func (l *gormLedger) AddToInventory(ctx context.Context, spec AddItemSpec, actorID int64) (*model.ComponentInventoryItem, error) {
	if spec.SerialNumber == "" {
		return nil, fault.Validation("serial number is required")
	}
	if spec.Type == "" {
		return nil, fault.Validation("component type is required")
	}
	if spec.Condition == "" {
		spec.Condition = model.ConditionNew
	}

	item := model.ComponentInventoryItem{
		Type:                 spec.Type,
		SerialNumber:         spec.SerialNumber,
		InternalSerialNumber: spec.InternalSerialNumber,
		Manufacturer:         spec.Manufacturer,
		Model:                spec.Model,
		Status:               model.InventoryAvailable,
		Condition:            spec.Condition,
		ConditionRank:        model.ConditionRank(spec.Condition),
		Location:             spec.Location,
		PurchaseDate:         spec.PurchaseDate,
		WarrantyExpires:      spec.WarrantyExpires,
		Notes:                spec.Notes,
		CreatedByID:          actorID,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		serials := []string{spec.SerialNumber}
		if spec.InternalSerialNumber != "" {
			serials = append(serials, spec.InternalSerialNumber)
		}
		var count int64
		if err := tx.Model(&model.ComponentInventoryItem{}).
			Where("serial_number IN ? OR internal_serial_number IN ?", serials, serials).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Wrapf(fault.ErrDuplicateSerial, "serial %s", spec.SerialNumber)
		}

		if err := tx.Create(&item).Error; err != nil {
			return err
		}

		return appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:     item.ID,
			Action:     model.HistoryReceived,
			ToLocation: spec.Location,
			ActorID:    actorID,
			Note:       "added to inventory, condition " + string(spec.Condition),
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) Reserve(ctx context.Context, itemID, defectID, actorID int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		var defect model.DefectRecord
		if err := tx.First(&defect, defectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NotFound("defect record", defectID)
			}
			return err
		}

		// The status predicate is the concurrency guard: when two callers
		// race here, exactly one update matches a row.
		res := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ? AND status = ?", itemID, model.InventoryAvailable).
			Updates(map[string]any{
				"status":                 model.InventoryReserved,
				"reserved_for_defect_id": defectID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:          itemID,
			Action:          model.HistoryReserved,
			RelatedDefectID: &defectID,
			ActorID:         actorID,
			Note:            "reserved for defect record",
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) Release(ctx context.Context, itemID, actorID int64, note string) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}

		res := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ? AND status = ?", itemID, model.InventoryReserved).
			Updates(map[string]any{
				"status":                 model.InventoryAvailable,
				"reserved_for_defect_id": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		if note == "" {
			note = "reservation released"
		}
		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:  itemID,
			Action:  model.HistoryReleased,
			ActorID: actorID,
			Note:    note,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) InstallToServer(ctx context.Context, itemID, serverID, actorID int64, defectID *int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		var server model.Server
		if err := tx.First(&server, serverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NotFound("server", serverID)
			}
			return err
		}

		res := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ? AND status IN ?", itemID,
				[]model.InventoryStatus{model.InventoryAvailable, model.InventoryReserved}).
			Updates(map[string]any{
				"status":                 model.InventoryInUse,
				"current_server_id":      serverID,
				"reserved_for_defect_id": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:          itemID,
			Action:          model.HistoryInstalled,
			ToServerID:      &serverID,
			RelatedDefectID: defectID,
			ActorID:         actorID,
			Note:            "installed to server " + server.SerialNumber,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) RemoveFromServer(ctx context.Context, itemID, actorID int64, defective bool, reason string, defectID *int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		if item.Status == model.InventoryScrapped {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		target := model.InventoryAvailable
		if defective {
			target = model.InventoryDefective
		}
		fromServerID := item.CurrentServerID

		if err := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ?", itemID).
			Updates(map[string]any{
				"status":            target,
				"current_server_id": nil,
			}).Error; err != nil {
			return err
		}

		if reason == "" {
			reason = "removed from server"
		}
		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:          itemID,
			Action:          model.HistoryRemoved,
			FromServerID:    fromServerID,
			RelatedDefectID: defectID,
			ActorID:         actorID,
			Note:            reason,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) SendToExternalRepair(ctx context.Context, itemID int64, ticketRef string, actorID int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		if item.Status == model.InventoryScrapped || item.Status == model.InventoryInRepair {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		if err := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ?", itemID).
			Update("status", model.InventoryInRepair).Error; err != nil {
			return err
		}

		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:    itemID,
			Action:    model.HistorySentToRepair,
			TicketRef: ticketRef,
			ActorID:   actorID,
			Note:      "sent to external repair, ticket " + ticketRef,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) ReturnFromExternalRepair(ctx context.Context, itemID, actorID int64, condition model.ComponentCondition) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem
	if condition == "" {
		condition = model.ConditionRefurbished
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}

		res := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ? AND status = ?", itemID, model.InventoryInRepair).
			Updates(map[string]any{
				"status":         model.InventoryReturned,
				"condition":      condition,
				"condition_rank": model.ConditionRank(condition),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:  itemID,
			Action:  model.HistoryReturnedFromRepair,
			ActorID: actorID,
			Note:    "returned from external repair, condition " + string(condition),
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) MarkDefective(ctx context.Context, itemID, actorID int64, note string, defectID *int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		if item.Status == model.InventoryScrapped {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}
		fromServerID := item.CurrentServerID

		if err := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ?", itemID).
			Updates(map[string]any{
				"status":                 model.InventoryDefective,
				"reserved_for_defect_id": nil,
			}).Error; err != nil {
			return err
		}

		if note == "" {
			note = "marked defective"
		}
		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:          itemID,
			Action:          model.HistoryRemoved,
			FromServerID:    fromServerID,
			RelatedDefectID: defectID,
			ActorID:         actorID,
			Note:            note,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) MarkTested(ctx context.Context, itemID, actorID int64, passed bool, note string) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		if item.Status == model.InventoryScrapped {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		target := model.InventoryAvailable
		if !passed {
			target = model.InventoryDefective
		}
		now := time.Now().UTC()
		if err := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ?", itemID).
			Updates(map[string]any{
				"status":         target,
				"last_tested_at": now,
			}).Error; err != nil {
			return err
		}

		if note == "" {
			if passed {
				note = "test passed"
			} else {
				note = "test failed"
			}
		}
		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:  itemID,
			Action:  model.HistoryTested,
			ActorID: actorID,
			Note:    note,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) UpdateLocation(ctx context.Context, itemID int64, location string, actorID int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}
		fromLocation := item.Location

		if err := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ?", itemID).
			Update("location", location).Error; err != nil {
			return err
		}

		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:       itemID,
			Action:       model.HistoryTransferred,
			FromLocation: fromLocation,
			ToLocation:   location,
			ActorID:      actorID,
			Note:         "moved to " + location,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) Scrap(ctx context.Context, itemID, actorID int64, reason string) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findItem(tx, itemID, &item); err != nil {
			return err
		}

		res := tx.Model(&model.ComponentInventoryItem{}).
			Where("id = ? AND status <> ?", itemID, model.InventoryScrapped).
			Updates(map[string]any{
				"status":                 model.InventoryScrapped,
				"current_server_id":      nil,
				"reserved_for_defect_id": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("inventory item", string(item.Status))
		}

		if reason == "" {
			reason = "scrapped"
		}
		if err := appendHistory(tx, &model.ComponentHistoryEntry{
			ItemID:  itemID,
			Action:  model.HistoryScrapped,
			ActorID: actorID,
			Note:    reason,
		}); err != nil {
			return err
		}
		return tx.First(&item, itemID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) GetByID(ctx context.Context, itemID int64) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem
	if err := findItem(l.db.WithContext(ctx), itemID, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *gormLedger) GetBySerial(ctx context.Context, serial string) (*model.ComponentInventoryItem, error) {
	var item model.ComponentInventoryItem
	err := l.db.WithContext(ctx).
		Where("serial_number = ? OR internal_serial_number = ?", serial, serial).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(fault.ErrNotFound, "inventory item with serial %s", serial)
		}
		return nil, err
	}
	return &item, nil
}

// ListAvailableByType returns AVAILABLE items ordered for fair allocation:
// better condition first, oldest first within the same condition.
func (l *gormLedger) ListAvailableByType(ctx context.Context, t model.ComponentType, limit int) ([]model.ComponentInventoryItem, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []model.ComponentInventoryItem
	err := l.db.WithContext(ctx).
		Where("type = ? AND status = ?", t, model.InventoryAvailable).
		Order("condition_rank ASC, created_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (l *gormLedger) List(ctx context.Context, f Filter) ([]model.ComponentInventoryItem, int64, error) {
	q := l.db.WithContext(ctx).Model(&model.ComponentInventoryItem{})

	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Condition != "" {
		q = q.Where("condition = ?", f.Condition)
	}
	if f.ServerID != nil {
		q = q.Where("current_server_id = ?", *f.ServerID)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where("serial_number LIKE ? OR internal_serial_number LIKE ? OR model LIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var items []model.ComponentInventoryItem
	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&items).Error
	return items, total, err
}

func (l *gormLedger) History(ctx context.Context, itemID int64) ([]model.ComponentHistoryEntry, error) {
	var entries []model.ComponentHistoryEntry
	err := l.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("performed_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}

func (l *gormLedger) Stats(ctx context.Context, warrantyAlertDays int) (*Stats, error) {
	type row struct {
		Type   model.ComponentType
		Status model.InventoryStatus
		Count  int64
	}
	var rows []row
	if err := l.db.WithContext(ctx).Model(&model.ComponentInventoryItem{}).
		Select("type, status, COUNT(id) AS count").
		Group("type, status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &Stats{ByType: make(map[model.ComponentType]TypeStats)}
	for _, r := range rows {
		if stats.ByType[r.Type] == nil {
			stats.ByType[r.Type] = make(TypeStats)
		}
		stats.ByType[r.Type][r.Status] += r.Count
		stats.Total += r.Count
		switch r.Status {
		case model.InventoryAvailable:
			stats.Available += r.Count
		case model.InventoryInUse:
			stats.InUse += r.Count
		case model.InventoryDefective:
			stats.Defective += r.Count
		case model.InventoryInRepair:
			stats.InRepair += r.Count
		}
	}

	if warrantyAlertDays > 0 {
		now := time.Now().UTC()
		horizon := now.AddDate(0, 0, warrantyAlertDays)
		if err := l.db.WithContext(ctx).Model(&model.ComponentInventoryItem{}).
			Where("warranty_expires BETWEEN ? AND ?", now, horizon).
			Count(&stats.WarrantyExpiringWithin).Error; err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func findItem(tx *gorm.DB, itemID int64, dst *model.ComponentInventoryItem) error {
	if err := tx.First(dst, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.NotFound("inventory item", itemID)
		}
		return err
	}
	return nil
}

func appendHistory(tx *gorm.DB, entry *model.ComponentHistoryEntry) error {
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now().UTC()
	}
	return tx.Create(entry).Error
}
