// Package pool manages the fleet of substitute servers issued to users while
// their own unit is under repair. Issue is the contended operation: picking
// and claiming the least-used available entry must stay race free under
// concurrent requests, so the claim is a status-conditional update.
package pool

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/model"
)

// Stats summarizes the pool.
type Stats struct {
	Total         int64   `json:"total"`
	Available     int64   `json:"available"`
	InUse         int64   `json:"inUse"`
	Maintenance   int64   `json:"maintenance"`
	Retired       int64   `json:"retired"`
	TotalIssues   int64   `json:"totalIssues"`
	AvgUsageCount float64 `json:"avgUsageCount"`
}

// Manager defines substitute server operations.
type Manager interface {
	AddToPool(ctx context.Context, serverID int64, notes string) (*model.SubstitutePoolEntry, error)
	FindAvailableOne(ctx context.Context) (*model.SubstitutePoolEntry, error)
	Issue(ctx context.Context, entryID, defectID, actorID int64) (*model.SubstitutePoolEntry, error)
	Return(ctx context.Context, entryID int64, actorID int64) (*model.SubstitutePoolEntry, error)
	SetMaintenance(ctx context.Context, entryID int64, notes string) (*model.SubstitutePoolEntry, error)
	Reactivate(ctx context.Context, entryID int64) (*model.SubstitutePoolEntry, error)
	Retire(ctx context.Context, entryID int64, notes string) (*model.SubstitutePoolEntry, error)
	RemoveFromPool(ctx context.Context, entryID int64) error
	GetByID(ctx context.Context, entryID int64) (*model.SubstitutePoolEntry, error)
	GetByServerID(ctx context.Context, serverID int64) (*model.SubstitutePoolEntry, error)
	List(ctx context.Context, status model.SubstituteStatus) ([]model.SubstitutePoolEntry, error)
	Stats(ctx context.Context) (*Stats, error)

	// WithTx returns a Manager bound to an existing transaction.
	WithTx(tx *gorm.DB) Manager
}

type gormPool struct {
	db *gorm.DB
}

// New creates a GORM-backed pool.
func New(db *gorm.DB) Manager {
	return &gormPool{db: db}
}

func (p *gormPool) WithTx(tx *gorm.DB) Manager {
	return &gormPool{db: tx}
}

func (p *gormPool) AddToPool(ctx context.Context, serverID int64, notes string) (*model.SubstitutePoolEntry, error) {
	entry := model.SubstitutePoolEntry{
		ServerID: serverID,
		Status:   model.SubstituteAvailable,
		Notes:    notes,
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var server model.Server
		if err := tx.First(&server, serverID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NotFound("server", serverID)
			}
			return err
		}

		var count int64
		if err := tx.Model(&model.SubstitutePoolEntry{}).
			Where("server_id = ?", serverID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Wrapf(fault.ErrAlreadyInPool, "server %d", serverID)
		}

		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return p.GetByID(ctx, entry.ID)
}

// FindAvailableOne picks the least-used available entry. Ties break on the
// oldest entry. The pick is advisory; only Issue claims it.
func (p *gormPool) FindAvailableOne(ctx context.Context) (*model.SubstitutePoolEntry, error) {
	var entry model.SubstitutePoolEntry
	err := p.db.WithContext(ctx).
		Preload("Server").
		Where("status = ?", model.SubstituteAvailable).
		Order("usage_count ASC, id ASC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(fault.ErrNotFound, "no substitute server available")
		}
		return nil, err
	}
	return &entry, nil
}

func (p *gormPool) Issue(ctx context.Context, entryID, defectID, actorID int64) (*model.SubstitutePoolEntry, error) {
	var entry model.SubstitutePoolEntry

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findEntry(tx, entryID, &entry); err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&model.SubstitutePoolEntry{}).
			Where("id = ? AND status = ?", entryID, model.SubstituteAvailable).
			Updates(map[string]any{
				"status":             model.SubstituteInUse,
				"current_defect_id":  defectID,
				"issued_at":          now,
				"issued_to_actor_id": actorID,
				"returned_at":        nil,
				"usage_count":        gorm.Expr("usage_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("substitute pool entry", string(entry.Status))
		}
		return tx.Preload("Server").First(&entry, entryID).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (p *gormPool) Return(ctx context.Context, entryID int64, actorID int64) (*model.SubstitutePoolEntry, error) {
	var entry model.SubstitutePoolEntry

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findEntry(tx, entryID, &entry); err != nil {
			return err
		}

		res := tx.Model(&model.SubstitutePoolEntry{}).
			Where("id = ? AND status = ?", entryID, model.SubstituteInUse).
			Updates(map[string]any{
				"status":             model.SubstituteAvailable,
				"current_defect_id":  nil,
				"issued_at":          nil,
				"issued_to_actor_id": nil,
				"returned_at":        time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("substitute pool entry", string(entry.Status))
		}
		return tx.Preload("Server").First(&entry, entryID).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (p *gormPool) SetMaintenance(ctx context.Context, entryID int64, notes string) (*model.SubstitutePoolEntry, error) {
	return p.transition(ctx, entryID, model.SubstituteMaintenance, notes,
		[]model.SubstituteStatus{model.SubstituteAvailable})
}

func (p *gormPool) Reactivate(ctx context.Context, entryID int64) (*model.SubstitutePoolEntry, error) {
	return p.transition(ctx, entryID, model.SubstituteAvailable, "",
		[]model.SubstituteStatus{model.SubstituteMaintenance, model.SubstituteRetired})
}

func (p *gormPool) Retire(ctx context.Context, entryID int64, notes string) (*model.SubstitutePoolEntry, error) {
	return p.transition(ctx, entryID, model.SubstituteRetired, notes,
		[]model.SubstituteStatus{model.SubstituteAvailable, model.SubstituteMaintenance})
}

func (p *gormPool) transition(ctx context.Context, entryID int64, target model.SubstituteStatus, notes string, from []model.SubstituteStatus) (*model.SubstitutePoolEntry, error) {
	var entry model.SubstitutePoolEntry

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findEntry(tx, entryID, &entry); err != nil {
			return err
		}

		updates := map[string]any{"status": target}
		if notes != "" {
			updates["notes"] = notes
		}
		res := tx.Model(&model.SubstitutePoolEntry{}).
			Where("id = ? AND status IN ?", entryID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.InvalidTransition("substitute pool entry", string(entry.Status))
		}
		return tx.Preload("Server").First(&entry, entryID).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveFromPool deletes an entry outright. An entry currently issued to a
// defect cannot be removed.
func (p *gormPool) RemoveFromPool(ctx context.Context, entryID int64) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.SubstitutePoolEntry
		if err := findEntry(tx, entryID, &entry); err != nil {
			return err
		}
		if entry.Status == model.SubstituteInUse {
			return errors.Wrapf(fault.ErrInUse, "pool entry %d", entryID)
		}
		return tx.Delete(&model.SubstitutePoolEntry{}, entryID).Error
	})
}

func (p *gormPool) GetByID(ctx context.Context, entryID int64) (*model.SubstitutePoolEntry, error) {
	var entry model.SubstitutePoolEntry
	err := p.db.WithContext(ctx).Preload("Server").First(&entry, entryID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NotFound("substitute pool entry", entryID)
		}
		return nil, err
	}
	return &entry, nil
}

func (p *gormPool) GetByServerID(ctx context.Context, serverID int64) (*model.SubstitutePoolEntry, error) {
	var entry model.SubstitutePoolEntry
	err := p.db.WithContext(ctx).Preload("Server").
		Where("server_id = ?", serverID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NotFound("substitute pool entry for server", serverID)
		}
		return nil, err
	}
	return &entry, nil
}

func (p *gormPool) List(ctx context.Context, status model.SubstituteStatus) ([]model.SubstitutePoolEntry, error) {
	q := p.db.WithContext(ctx).Preload("Server").Order("usage_count ASC, id ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var entries []model.SubstitutePoolEntry
	err := q.Find(&entries).Error
	return entries, err
}

func (p *gormPool) Stats(ctx context.Context) (*Stats, error) {
	type row struct {
		Status model.SubstituteStatus
		Count  int64
		Usage  int64
	}
	var rows []row
	if err := p.db.WithContext(ctx).Model(&model.SubstitutePoolEntry{}).
		Select("status, COUNT(id) AS count, COALESCE(SUM(usage_count), 0) AS usage").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalIssues += r.Usage
		switch r.Status {
		case model.SubstituteAvailable:
			stats.Available = r.Count
		case model.SubstituteInUse:
			stats.InUse = r.Count
		case model.SubstituteMaintenance:
			stats.Maintenance = r.Count
		case model.SubstituteRetired:
			stats.Retired = r.Count
		}
	}
	if stats.Total > 0 {
		stats.AvgUsageCount = float64(stats.TotalIssues) / float64(stats.Total)
	}
	return stats, nil
}

func findEntry(tx *gorm.DB, entryID int64, dst *model.SubstitutePoolEntry) error {
	if err := tx.First(dst, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.NotFound("substitute pool entry", entryID)
		}
		return err
	}
	return nil
}
