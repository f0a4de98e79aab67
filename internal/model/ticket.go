package model

import "time"

// TicketStatus tracks a ticket opened with the external repair vendor. The
// vendor's own workflow is opaque; only the round-trip milestones are kept.
type TicketStatus string

const (
	TicketSubmitted TicketStatus = "SUBMITTED"
	TicketReceived  TicketStatus = "RECEIVED"
	TicketClosed    TicketStatus = "CLOSED"
)

// RepairTicket records a defect's excursion to the external repair vendor.
type RepairTicket struct {
	ID             int64         `gorm:"primaryKey" json:"id"`
	TicketNumber   string        `gorm:"size:50;uniqueIndex;not null" json:"ticketNumber"`
	DefectRecordID int64         `gorm:"index;not null" json:"defectRecordId"`
	ServerID       int64         `gorm:"index" json:"serverId"`
	Status         TicketStatus  `gorm:"size:20;index;not null;default:SUBMITTED" json:"status"`
	Subject        string        `gorm:"size:255" json:"subject"`
	Description    string        `gorm:"type:text" json:"description"`
	ComponentType  ComponentType `gorm:"size:32" json:"componentType"`
	TrackingNumber string        `gorm:"size:100" json:"trackingNumber"`
	SentAt         *time.Time    `json:"sentAt"`
	ReceivedAt     *time.Time    `json:"receivedAt"`
	ClosedAt       *time.Time    `json:"closedAt"`
	Resolution     string        `gorm:"type:text" json:"resolution"`
	CreatedByID    int64         `json:"createdById"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}
