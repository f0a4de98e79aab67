// Package workflow drives defect records through the repair state machine.
// The engine is the only writer of DefectRecord.Status and of Server status
// while a defect is open. Core mutations run in one transaction; audit and
// history sinks fire after commit and never abort a completed mutation.
package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"beryll-workflow-backend/internal/audit"
	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/history"
	"beryll-workflow-backend/internal/ledger"
	"beryll-workflow-backend/internal/model"
	"beryll-workflow-backend/internal/pool"
	"beryll-workflow-backend/internal/sla"
	"beryll-workflow-backend/internal/ticket"
)

// Notifier is told when a server's repair completes. The notification worker
// implements it; NopNotifier serves tests and minimal deployments.
type Notifier interface {
	Dispatch(serverID int64)
}

// NopNotifier discards dispatches.
type NopNotifier struct{}

// Dispatch implements Notifier.
func (NopNotifier) Dispatch(int64) {}

// Options wires the engine's collaborators.
type Options struct {
	DB       *gorm.DB
	Ledger   ledger.Ledger
	Pool     pool.Manager
	Tickets  ticket.Service
	Deadline sla.DeadlineCalculator
	Audit    audit.Sink
	History  history.Sink
	Notifier Notifier
	Log      *logrus.Logger

	// RepeatWindow is how far back a resolved defect on the same server and
	// part type counts as a repeat. Zero disables the check.
	RepeatWindow time.Duration
}

// Engine implements the defect repair workflow.
type Engine struct {
	db           *gorm.DB
	sm           sw.StateMachine
	ledger       ledger.Ledger
	pool         pool.Manager
	tickets      ticket.Service
	deadline     sla.DeadlineCalculator
	audit        audit.Sink
	history      history.Sink
	notifier     Notifier
	log          *logrus.Logger
	repeatWindow time.Duration
}

// New creates an Engine. Nil sinks and notifier fall back to no-ops.
func New(opts Options) *Engine {
	if opts.Audit == nil {
		opts.Audit = audit.NopSink{}
	}
	if opts.History == nil {
		opts.History = history.NopSink{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	return &Engine{
		db:           opts.DB,
		sm:           newDefectStateMachine(),
		ledger:       opts.Ledger,
		pool:         opts.Pool,
		tickets:      opts.Tickets,
		deadline:     opts.Deadline,
		audit:        opts.Audit,
		history:      opts.History,
		notifier:     opts.Notifier,
		log:          opts.Log,
		repeatWindow: opts.RepeatWindow,
	}
}

// CreateSpec describes a newly reported defect.
type CreateSpec struct {
	ServerID                 int64
	ProblemDescription       string
	PartType                 model.ComponentType
	Priority                 model.DefectPriority
	DefectPartSerial         string
	DefectPartInternalSerial string
	DefectInventoryItemID    *int64
	DetectedAt               *time.Time
	Notes                    string
}

// Create opens a defect record. The server flips to DEFECT, the SLA deadline
// is fixed from the detection time, and a recent resolved defect on the same
// server and part type flags the new record as repeated. A faulty part given
// by inventory id, or by a serial that resolves to a component installed on
// the server, is marked DEFECTIVE in the ledger; a serial matching nothing
// stays as free text on the record.
func (e *Engine) Create(ctx context.Context, spec CreateSpec, actorID int64) (*model.DefectRecord, error) {
	if spec.ProblemDescription == "" {
		return nil, fault.Validation("problem description is required")
	}
	if spec.PartType == "" {
		return nil, fault.Validation("part type is required")
	}
	if spec.Priority == "" {
		spec.Priority = model.PriorityMedium
	}
	detectedAt := time.Now().UTC()
	if spec.DetectedAt != nil {
		detectedAt = spec.DetectedAt.UTC()
	}

	rec := model.DefectRecord{
		ServerID:                 spec.ServerID,
		ProblemDescription:       spec.ProblemDescription,
		PartType:                 spec.PartType,
		Priority:                 spec.Priority,
		DefectPartSerial:         spec.DefectPartSerial,
		DefectPartInternalSerial: spec.DefectPartInternalSerial,
		DefectInventoryItemID:    spec.DefectInventoryItemID,
		Status:                   model.DefectNew,
		DetectedAt:               detectedAt,
		DetectedByID:             actorID,
		Notes:                    spec.Notes,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var server model.Server
		if err := tx.First(&server, spec.ServerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NotFound("server", spec.ServerID)
			}
			return err
		}

		if e.repeatWindow > 0 {
			var prev model.DefectRecord
			err := tx.Where(
				"server_id = ? AND part_type = ? AND status IN ? AND detected_at >= ?",
				spec.ServerID, spec.PartType,
				[]model.DefectStatus{model.DefectResolved, model.DefectClosed},
				detectedAt.Add(-e.repeatWindow),
			).Order("detected_at DESC").First(&prev).Error
			switch {
			case err == nil:
				rec.IsRepeatedDefect = true
				rec.PreviousDefectID = &prev.ID
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return err
			}
		}

		if e.deadline != nil {
			rec.SlaDeadline = e.deadline.CalculateDeadline(spec.PartType, spec.Priority, detectedAt)
		}

		if rec.DefectInventoryItemID == nil {
			item, err := findInstalledComponent(tx, spec.ServerID,
				spec.DefectPartSerial, spec.DefectPartInternalSerial)
			if err != nil {
				return err
			}
			if item != nil {
				rec.DefectInventoryItemID = &item.ID
			}
		}

		if err := tx.Omit(clause.Associations).Create(&rec).Error; err != nil {
			return err
		}

		if rec.DefectInventoryItemID != nil {
			if _, err := e.ledger.WithTx(tx).MarkDefective(ctx,
				*rec.DefectInventoryItemID, actorID, "reported defective", &rec.ID); err != nil {
				return err
			}
		}

		return tx.Model(&server).Update("status", model.ServerStatusDefect).Error
	})
	if err != nil {
		return nil, err
	}

	e.audit.LogEvent(ctx, actorID, "DEFECT_CREATED", audit.EntityDefectRecord, rec.ID,
		"defect record opened", map[string]any{
			"serverId": rec.ServerID,
			"partType": rec.PartType,
			"repeated": rec.IsRepeatedDefect,
		})
	e.history.Append(ctx, audit.EntityDefectRecord, rec.ID, "CREATED", actorID, spec.ProblemDescription)
	if rec.IsRepeatedDefect {
		e.log.WithFields(logrus.Fields{
			"defect_id":          rec.ID,
			"previous_defect_id": *rec.PreviousDefectID,
		}).Warn("repeated defect detected")
	}
	return e.GetByID(ctx, rec.ID)
}

// findInstalledComponent resolves reported serials against the components
// installed on the server, matching on either serial column. A serial that
// matches nothing is not an error.
func findInstalledComponent(tx *gorm.DB, serverID int64, serials ...string) (*model.ComponentInventoryItem, error) {
	vals := make([]string, 0, len(serials))
	for _, s := range serials {
		if s != "" {
			vals = append(vals, s)
		}
	}
	if len(vals) == 0 {
		return nil, nil
	}

	var item model.ComponentInventoryItem
	err := tx.Where(
		"current_server_id = ? AND (serial_number IN ? OR internal_serial_number IN ?)",
		serverID, vals, vals,
	).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// StartDiagnosis moves NEW to DIAGNOSING and pins the diagnostician.
func (e *Engine) StartDiagnosis(ctx context.Context, defectID, diagnosticianID, actorID int64) (*model.DefectRecord, error) {
	rec, err := e.mutate(ctx, defectID, actorID, "DIAGNOSIS_STARTED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionStartDiagnosis); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.DiagnosisStartedAt = &now
		rec.DiagnosticianID = &diagnosticianID
		return nil
	})
	return rec, err
}

// DiagnosisSpec carries diagnosis findings.
type DiagnosisSpec struct {
	Findings                 string
	PartType                 model.ComponentType
	DefectPartSerial         string
	DefectPartInternalSerial string
}

// CompleteDiagnosis records findings and the confirmed faulty part without
// changing the workflow status; the record stays DIAGNOSING until a repair
// path is chosen.
func (e *Engine) CompleteDiagnosis(ctx context.Context, defectID, actorID int64, spec DiagnosisSpec) (*model.DefectRecord, error) {
	if spec.Findings == "" {
		return nil, fault.Validation("diagnosis findings are required")
	}
	return e.mutate(ctx, defectID, actorID, "DIAGNOSIS_COMPLETED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if rec.Status != model.DefectDiagnosing {
			return fault.InvalidTransition("defect record", string(rec.Status))
		}
		now := time.Now().UTC()
		rec.DiagnosisCompletedAt = &now
		rec.Notes = appendNote(rec.Notes, "diagnosis: "+spec.Findings)
		if spec.PartType != "" {
			rec.PartType = spec.PartType
		}
		if spec.DefectPartSerial != "" {
			rec.DefectPartSerial = spec.DefectPartSerial
		}
		if spec.DefectPartInternalSerial != "" {
			rec.DefectPartInternalSerial = spec.DefectPartInternalSerial
		}
		return nil
	})
}

// SetWaitingParts parks the record until a replacement part arrives.
// Re-entering WAITING_PARTS is allowed so the note can be refreshed.
func (e *Engine) SetWaitingParts(ctx context.Context, defectID, actorID int64, note string) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "WAITING_PARTS", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionSetWaitingParts); err != nil {
			return err
		}
		if note != "" {
			rec.Notes = appendNote(rec.Notes, "waiting parts: "+note)
		}
		return nil
	})
}

// ReserveReplacementComponent reserves a ledger item as the replacement for
// this defect. With a nil itemID the best available part of the record's part
// type is picked. The reservation and the record update commit together.
func (e *Engine) ReserveReplacementComponent(ctx context.Context, defectID int64, itemID *int64, actorID int64) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "REPLACEMENT_RESERVED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		switch rec.Status {
		case model.DefectDiagnosing, model.DefectWaitingParts, model.DefectRepairing:
		default:
			return fault.InvalidTransition("defect record", string(rec.Status))
		}
		if rec.ReplacementInventoryItemID != nil {
			return fault.Validation("replacement component already reserved")
		}

		lg := e.ledger.WithTx(tx)
		var pickID int64
		if itemID != nil {
			pickID = *itemID
		} else {
			candidates, err := lg.ListAvailableByType(ctx, rec.PartType, 1)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return errors.Wrapf(fault.ErrNotFound, "no available %s in inventory", rec.PartType)
			}
			pickID = candidates[0].ID
		}

		item, err := lg.Reserve(ctx, pickID, rec.ID, actorID)
		if err != nil {
			return err
		}
		if item.Type != rec.PartType {
			return fault.Validation(fmt.Sprintf("item type %s does not match defect part type %s", item.Type, rec.PartType))
		}

		rec.ReplacementInventoryItemID = &item.ID
		rec.ReplacementPartSerial = item.SerialNumber
		rec.ReplacementPartInternalSerial = item.InternalSerialNumber
		return nil
	})
}

// StartRepair moves the record to REPAIRING.
func (e *Engine) StartRepair(ctx context.Context, defectID, actorID int64) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "REPAIR_STARTED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionStartRepair); err != nil {
			return err
		}
		if rec.RepairStartedAt == nil {
			now := time.Now().UTC()
			rec.RepairStartedAt = &now
		}
		return nil
	})
}

// ReplacementSpec describes the physical swap performed during repair.
// Either the reserved ledger item is installed, or serials of an untracked
// part are recorded manually.
type ReplacementSpec struct {
	ManualSerial         string
	ManualInternalSerial string
	Details              string
}

// PerformComponentReplacement installs the reserved replacement into the
// server, or records a manual swap when no ledger item is involved. The
// record must be REPAIRING; the status does not change.
func (e *Engine) PerformComponentReplacement(ctx context.Context, defectID, actorID int64, spec ReplacementSpec) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "COMPONENT_REPLACED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if rec.Status != model.DefectRepairing {
			return fault.InvalidTransition("defect record", string(rec.Status))
		}

		if rec.ReplacementInventoryItemID != nil {
			item, err := e.ledger.WithTx(tx).InstallToServer(ctx,
				*rec.ReplacementInventoryItemID, rec.ServerID, actorID, &rec.ID)
			if err != nil {
				return err
			}
			rec.ReplacementPartSerial = item.SerialNumber
			rec.ReplacementPartInternalSerial = item.InternalSerialNumber
		} else {
			if spec.ManualSerial == "" {
				return fault.Validation("replacement serial is required when no item is reserved")
			}
			rec.ReplacementPartSerial = spec.ManualSerial
			rec.ReplacementPartInternalSerial = spec.ManualInternalSerial
		}

		if spec.Details != "" {
			rec.RepairDetails = appendNote(rec.RepairDetails, spec.Details)
		}
		return nil
	})
}

// SendSpec describes the shipment to the external repair vendor.
type SendSpec struct {
	// TicketNumber carries the vendor's own ticket reference when one
	// exists; left empty, a local RT number is generated.
	TicketNumber   string
	Subject        string
	Description    string
	TrackingNumber string
}

// SendToExternalRepair opens a vendor ticket, forwards a tracked faulty part
// to IN_REPAIR and moves the record to SENT_TO_EXTERNAL_REPAIR, all in one
// transaction.
func (e *Engine) SendToExternalRepair(ctx context.Context, defectID, actorID int64, spec SendSpec) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "SENT_TO_EXTERNAL_REPAIR", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionSendToRepair); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.SentToRepairAt = &now

		subject := spec.Subject
		if subject == "" {
			subject = fmt.Sprintf("defect %d: %s replacement", rec.ID, rec.PartType)
		}
		t, err := e.tickets.WithTx(tx).Open(ctx, ticket.OpenSpec{
			TicketNumber:   spec.TicketNumber,
			DefectRecordID: rec.ID,
			ServerID:       rec.ServerID,
			Subject:        subject,
			Description:    spec.Description,
			ComponentType:  rec.PartType,
			TrackingNumber: spec.TrackingNumber,
			CreatedByID:    actorID,
		})
		if err != nil {
			return err
		}
		rec.TicketNumber = t.TicketNumber

		if rec.DefectInventoryItemID != nil {
			if _, err := e.ledger.WithTx(tx).SendToExternalRepair(ctx,
				*rec.DefectInventoryItemID, t.TicketNumber, actorID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReturnSpec describes the part coming back from the vendor.
type ReturnSpec struct {
	Condition   model.ComponentCondition
	VendorNotes string
}

// ReturnFromExternalRepair confirms receipt from the vendor: the record moves
// to RETURNED, the vendor ticket is marked received and a tracked part
// re-enters the ledger as RETURNED with its post-repair condition.
func (e *Engine) ReturnFromExternalRepair(ctx context.Context, defectID, actorID int64, spec ReturnSpec) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "RETURNED_FROM_EXTERNAL_REPAIR", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionReturnFromRepair); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.ReturnedFromRepairAt = &now
		if spec.VendorNotes != "" {
			rec.Notes = appendNote(rec.Notes, "vendor: "+spec.VendorNotes)
		}

		if rec.TicketNumber != "" {
			if _, err := e.tickets.WithTx(tx).MarkReceived(ctx, rec.TicketNumber); err != nil {
				return err
			}
		}
		if rec.DefectInventoryItemID != nil {
			if _, err := e.ledger.WithTx(tx).ReturnFromExternalRepair(ctx,
				*rec.DefectInventoryItemID, actorID, spec.Condition); err != nil {
				return err
			}
		}
		return nil
	})
}

// IssueSubstituteServer claims a substitute for the defect's user. With a nil
// entryID the least-used available entry is picked. A defect holds at most
// one substitute at a time.
func (e *Engine) IssueSubstituteServer(ctx context.Context, defectID int64, entryID *int64, actorID int64) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "SUBSTITUTE_ISSUED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		switch rec.Status {
		case model.DefectResolved, model.DefectClosed:
			return fault.InvalidTransition("defect record", string(rec.Status))
		}
		if rec.SubstitutePoolEntryID != nil {
			return fault.Validation("substitute server already issued for this defect")
		}

		pl := e.pool.WithTx(tx)
		var pickID int64
		if entryID != nil {
			pickID = *entryID
		} else {
			entry, err := pl.FindAvailableOne(ctx)
			if err != nil {
				return err
			}
			pickID = entry.ID
		}

		entry, err := pl.Issue(ctx, pickID, rec.ID, actorID)
		if err != nil {
			return err
		}
		rec.SubstitutePoolEntryID = &entry.ID
		if entry.Server != nil {
			rec.SubstituteServerSerial = entry.Server.SerialNumber
		}
		return nil
	})
}

// ReturnSubstituteServer returns the issued substitute to the pool. The serial
// stays on the record for reporting.
func (e *Engine) ReturnSubstituteServer(ctx context.Context, defectID, actorID int64) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "SUBSTITUTE_RETURNED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if rec.SubstitutePoolEntryID == nil {
			return fault.Validation("no substitute server issued for this defect")
		}
		if _, err := e.pool.WithTx(tx).Return(ctx, *rec.SubstitutePoolEntryID, actorID); err != nil {
			return err
		}
		rec.SubstitutePoolEntryID = nil
		return nil
	})
}

// Resolve completes the repair. The record moves to RESOLVED, total downtime
// is fixed from detection to now, and the server returns to DONE. The vendor
// ticket and an outstanding substitute are cleaned up best-effort after
// commit; subscribers of the server are notified.
func (e *Engine) Resolve(ctx context.Context, defectID, actorID int64, resolution string) (*model.DefectRecord, error) {
	if resolution == "" {
		return nil, fault.Validation("resolution text is required")
	}

	var serverID int64
	rec, err := e.mutate(ctx, defectID, actorID, "RESOLVED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionResolve); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec.ResolvedAt = &now
		rec.ResolvedByID = &actorID
		rec.Resolution = resolution
		downtime := int64(math.Round(now.Sub(rec.DetectedAt).Minutes()))
		rec.TotalDowntimeMinutes = &downtime
		serverID = rec.ServerID

		return tx.Model(&model.Server{}).
			Where("id = ?", rec.ServerID).
			Update("status", model.ServerStatusDone).Error
	})
	if err != nil {
		return nil, err
	}

	if rec.TicketNumber != "" {
		if _, err := e.tickets.Close(ctx, rec.TicketNumber, resolution); err != nil {
			if !errors.Is(err, fault.ErrInvalidTransition) && !errors.Is(err, fault.ErrNotFound) {
				e.log.WithError(err).WithField("ticket", rec.TicketNumber).Warn("ticket auto-close failed")
			}
		}
	}
	if rec.SubstitutePoolEntryID != nil {
		if _, err := e.ReturnSubstituteServer(ctx, rec.ID, actorID); err != nil {
			e.log.WithError(err).WithField("defect_id", rec.ID).Warn("substitute auto-return failed")
		}
	}
	e.notifier.Dispatch(serverID)

	return e.GetByID(ctx, rec.ID)
}

// Close archives a resolved record.
func (e *Engine) Close(ctx context.Context, defectID, actorID int64, note string) (*model.DefectRecord, error) {
	return e.mutate(ctx, defectID, actorID, "CLOSED", func(tx *gorm.DB, rec *model.DefectRecord) error {
		if err := e.transition(rec, TransitionClose); err != nil {
			return err
		}
		if note != "" {
			rec.Notes = appendNote(rec.Notes, "closed: "+note)
		}
		return nil
	})
}

// GetByID loads a record with its server.
func (e *Engine) GetByID(ctx context.Context, defectID int64) (*model.DefectRecord, error) {
	var rec model.DefectRecord
	err := e.db.WithContext(ctx).Preload("Server").First(&rec, defectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fault.NotFound("defect record", defectID)
		}
		return nil, err
	}
	return &rec, nil
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	Status          model.DefectStatus
	PartType        model.ComponentType
	ServerID        *int64
	DiagnosticianID *int64
	Repeated        *bool
	SlaBreached     bool
	DetectedFrom    *time.Time
	DetectedTo      *time.Time
	Search          string
	Limit           int
	Offset          int
}

// List returns records matching the filter, newest detection first, plus the
// total match count for paging.
func (e *Engine) List(ctx context.Context, f Filter) ([]model.DefectRecord, int64, error) {
	q := e.db.WithContext(ctx).Model(&model.DefectRecord{})

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PartType != "" {
		q = q.Where("part_type = ?", f.PartType)
	}
	if f.ServerID != nil {
		q = q.Where("server_id = ?", *f.ServerID)
	}
	if f.DiagnosticianID != nil {
		q = q.Where("diagnostician_id = ?", *f.DiagnosticianID)
	}
	if f.Repeated != nil {
		q = q.Where("is_repeated_defect = ?", *f.Repeated)
	}
	if f.SlaBreached {
		now := time.Now().UTC()
		q = q.Where(
			"sla_deadline IS NOT NULL AND ((resolved_at IS NULL AND sla_deadline < ?) OR resolved_at > sla_deadline)",
			now,
		)
	}
	if f.DetectedFrom != nil {
		q = q.Where("detected_at >= ?", *f.DetectedFrom)
	}
	if f.DetectedTo != nil {
		q = q.Where("detected_at <= ?", *f.DetectedTo)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(
			"ticket_number LIKE ? OR problem_description LIKE ? OR defect_part_serial LIKE ? OR replacement_part_serial LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var recs []model.DefectRecord
	err := q.Preload("Server").
		Order("detected_at DESC, id DESC").
		Limit(limit).Offset(f.Offset).
		Find(&recs).Error
	return recs, total, err
}

// Stats summarizes the defect workload.
type Stats struct {
	ByStatus         map[model.DefectStatus]int64  `json:"byStatus"`
	ByPartType       map[model.ComponentType]int64 `json:"byPartType"`
	Total            int64                         `json:"total"`
	Open             int64                         `json:"open"`
	Repeated         int64                         `json:"repeated"`
	SlaBreached      int64                         `json:"slaBreached"`
	AvgRepairMinutes float64                       `json:"avgRepairMinutes"`
}

// Stats computes the workload summary.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[model.DefectStatus]int64),
		ByPartType: make(map[model.ComponentType]int64),
	}

	type statusRow struct {
		Status model.DefectStatus
		Count  int64
	}
	var byStatus []statusRow
	if err := e.db.WithContext(ctx).Model(&model.DefectRecord{}).
		Select("status, COUNT(id) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, r := range byStatus {
		stats.ByStatus[r.Status] = r.Count
		stats.Total += r.Count
		if r.Status != model.DefectResolved && r.Status != model.DefectClosed {
			stats.Open += r.Count
		}
	}

	type typeRow struct {
		PartType model.ComponentType
		Count    int64
	}
	var byType []typeRow
	if err := e.db.WithContext(ctx).Model(&model.DefectRecord{}).
		Select("part_type, COUNT(id) AS count").
		Group("part_type").
		Scan(&byType).Error; err != nil {
		return nil, err
	}
	for _, r := range byType {
		stats.ByPartType[r.PartType] = r.Count
	}

	if err := e.db.WithContext(ctx).Model(&model.DefectRecord{}).
		Where("is_repeated_defect = ?", true).
		Count(&stats.Repeated).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.db.WithContext(ctx).Model(&model.DefectRecord{}).
		Where("sla_deadline IS NOT NULL AND ((resolved_at IS NULL AND sla_deadline < ?) OR resolved_at > sla_deadline)", now).
		Count(&stats.SlaBreached).Error; err != nil {
		return nil, err
	}

	var avg *float64
	if err := e.db.WithContext(ctx).Model(&model.DefectRecord{}).
		Select("AVG(total_downtime_minutes)").
		Where("total_downtime_minutes IS NOT NULL").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AvgRepairMinutes = *avg
	}
	return stats, nil
}

// mutate runs one workflow mutation: load the record, apply fn, persist the
// record, commit, then fire the sinks.
func (e *Engine) mutate(ctx context.Context, defectID, actorID int64, action string, fn func(tx *gorm.DB, rec *model.DefectRecord) error) (*model.DefectRecord, error) {
	var rec model.DefectRecord

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, defectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NotFound("defect record", defectID)
			}
			return err
		}
		if err := fn(tx, &rec); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(&rec).Error
	})
	if err != nil {
		return nil, err
	}

	e.audit.LogEvent(ctx, actorID, action, audit.EntityDefectRecord, rec.ID,
		"defect record updated", map[string]any{"status": rec.Status})
	e.history.Append(ctx, audit.EntityDefectRecord, rec.ID, action, actorID, "")
	return &rec, nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
