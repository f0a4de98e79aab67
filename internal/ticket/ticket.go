// Package ticket tracks round trips to the external repair vendor. The
// vendor's internal process is opaque; only submission, receipt confirmation
// and closure are recorded here.
package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/model"
)

// OpenSpec describes a new vendor ticket. TicketNumber is optional; when
// empty a local RT number is generated.
type OpenSpec struct {
	TicketNumber   string
	DefectRecordID int64
	ServerID       int64
	Subject        string
	Description    string
	ComponentType  model.ComponentType
	TrackingNumber string
	CreatedByID    int64
}

// Service manages repair tickets.
type Service interface {
	Open(ctx context.Context, spec OpenSpec) (*model.RepairTicket, error)
	MarkReceived(ctx context.Context, ticketNumber string) (*model.RepairTicket, error)
	Close(ctx context.Context, ticketNumber, resolution string) (*model.RepairTicket, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*model.RepairTicket, error)
	ListByDefect(ctx context.Context, defectID int64) ([]model.RepairTicket, error)

	// WithTx returns a Service bound to an existing transaction.
	WithTx(tx *gorm.DB) Service
}

type gormService struct {
	db *gorm.DB
}

// New creates a GORM-backed ticket service.
func New(db *gorm.DB) Service {
	return &gormService{db: db}
}

func (s *gormService) WithTx(tx *gorm.DB) Service {
	return &gormService{db: tx}
}

func (s *gormService) Open(ctx context.Context, spec OpenSpec) (*model.RepairTicket, error) {
	now := time.Now().UTC()
	number := spec.TicketNumber
	if number == "" {
		number = fmt.Sprintf("RT-%d", now.UnixNano())
	}
	t := model.RepairTicket{
		TicketNumber:   number,
		DefectRecordID: spec.DefectRecordID,
		ServerID:       spec.ServerID,
		Status:         model.TicketSubmitted,
		Subject:        spec.Subject,
		Description:    spec.Description,
		ComponentType:  spec.ComponentType,
		TrackingNumber: spec.TrackingNumber,
		SentAt:         &now,
		CreatedByID:    spec.CreatedByID,
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormService) MarkReceived(ctx context.Context, ticketNumber string) (*model.RepairTicket, error) {
	var t model.RepairTicket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findTicket(tx, ticketNumber, &t); err != nil {
			return err
		}
		if t.Status != model.TicketSubmitted {
			return fault.InvalidTransition("repair ticket", string(t.Status))
		}
		now := time.Now().UTC()
		return tx.Model(&t).Updates(map[string]any{
			"status":      model.TicketReceived,
			"received_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormService) Close(ctx context.Context, ticketNumber, resolution string) (*model.RepairTicket, error) {
	var t model.RepairTicket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findTicket(tx, ticketNumber, &t); err != nil {
			return err
		}
		if t.Status == model.TicketClosed {
			return fault.InvalidTransition("repair ticket", string(t.Status))
		}
		now := time.Now().UTC()
		return tx.Model(&t).Updates(map[string]any{
			"status":     model.TicketClosed,
			"closed_at":  now,
			"resolution": resolution,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormService) GetByNumber(ctx context.Context, ticketNumber string) (*model.RepairTicket, error) {
	var t model.RepairTicket
	if err := findTicket(s.db.WithContext(ctx), ticketNumber, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormService) ListByDefect(ctx context.Context, defectID int64) ([]model.RepairTicket, error) {
	var tickets []model.RepairTicket
	err := s.db.WithContext(ctx).
		Where("defect_record_id = ?", defectID).
		Order("created_at DESC").
		Find(&tickets).Error
	return tickets, err
}

func findTicket(tx *gorm.DB, ticketNumber string, dst *model.RepairTicket) error {
	err := tx.Where("ticket_number = ?", ticketNumber).First(dst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(fault.ErrNotFound, "repair ticket %s", ticketNumber)
		}
		return err
	}
	return nil
}
