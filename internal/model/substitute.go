package model

import "time"

// SubstituteStatus is the status of a substitute pool entry.
type SubstituteStatus string

const (
	SubstituteAvailable   SubstituteStatus = "AVAILABLE"
	SubstituteInUse       SubstituteStatus = "IN_USE"
	SubstituteMaintenance SubstituteStatus = "MAINTENANCE"
	SubstituteRetired     SubstituteStatus = "RETIRED"
)

// SubstitutePoolEntry wraps a Server dedicated to stand-in duty while another
// unit is under repair. A server appears in at most one entry; IN_USE implies
// exactly one active defect reference. UsageCount is a monotonic lifetime
// counter, never decremented on return.
type SubstitutePoolEntry struct {
	ID              int64            `gorm:"primaryKey" json:"id"`
	ServerID        int64            `gorm:"uniqueIndex;not null" json:"serverId"`
	Server          *Server          `gorm:"foreignKey:ServerID" json:"server,omitempty"`
	Status          SubstituteStatus `gorm:"size:32;index;not null;default:AVAILABLE" json:"status"`
	CurrentDefectID *int64           `gorm:"index" json:"currentDefectId"`
	IssuedAt        *time.Time       `json:"issuedAt"`
	IssuedToActorID *int64           `json:"issuedToActorId"`
	ReturnedAt      *time.Time       `json:"returnedAt"`
	UsageCount      int              `gorm:"not null;default:0" json:"usageCount"`
	Notes           string           `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
