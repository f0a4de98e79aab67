package model

import "time"

// DefectStatus is the workflow status of a defect record.
//
// NEW → DIAGNOSING → {WAITING_PARTS, REPAIRING, SENT_TO_EXTERNAL_REPAIR};
// WAITING_PARTS → {REPAIRING, SENT_TO_EXTERNAL_REPAIR};
// REPAIRING → {RESOLVED, SENT_TO_EXTERNAL_REPAIR};
// SENT_TO_EXTERNAL_REPAIR → RETURNED → {REPAIRING, RESOLVED};
// RESOLVED → CLOSED. CLOSED is terminal. REPEATED is a reporting
// classification, never reached by a direct transition.
type DefectStatus string

const (
	DefectNew          DefectStatus = "NEW"
	DefectDiagnosing   DefectStatus = "DIAGNOSING"
	DefectWaitingParts DefectStatus = "WAITING_PARTS"
	DefectRepairing    DefectStatus = "REPAIRING"
	DefectSentToRepair DefectStatus = "SENT_TO_EXTERNAL_REPAIR"
	DefectReturned     DefectStatus = "RETURNED"
	DefectResolved     DefectStatus = "RESOLVED"
	DefectRepeated     DefectStatus = "REPEATED"
	DefectClosed       DefectStatus = "CLOSED"
)

// DefectPriority feeds the SLA deadline calculation at creation time.
type DefectPriority string

const (
	PriorityLow      DefectPriority = "LOW"
	PriorityMedium   DefectPriority = "MEDIUM"
	PriorityHigh     DefectPriority = "HIGH"
	PriorityCritical DefectPriority = "CRITICAL"
)

// DefectRecord is one reported hardware fault on a Server, driven through the
// repair workflow. Rows are never deleted; terminal records stay for audit.
type DefectRecord struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	ServerID int64  `gorm:"index;not null" json:"serverId"`
	Server   Server `gorm:"foreignKey:ServerID" json:"server"`

	TicketNumber       string         `gorm:"size:50;index" json:"ticketNumber"`
	ProblemDescription string         `gorm:"type:text;not null" json:"problemDescription"`
	PartType           ComponentType  `gorm:"size:32;index" json:"partType"`
	Priority           DefectPriority `gorm:"size:20;not null;default:MEDIUM" json:"priority"`

	DefectPartSerial         string `gorm:"size:100" json:"defectPartSerial"`
	DefectPartInternalSerial string `gorm:"size:100" json:"defectPartInternalSerial"`
	DefectInventoryItemID    *int64 `json:"defectInventoryItemId"`

	Status DefectStatus `gorm:"size:32;index;not null;default:NEW" json:"status"`

	DetectedAt           time.Time  `gorm:"index;not null" json:"detectedAt"`
	DetectedByID         int64      `json:"detectedById"`
	DiagnosticianID      *int64     `gorm:"index" json:"diagnosticianId"`
	DiagnosisStartedAt   *time.Time `json:"diagnosisStartedAt"`
	DiagnosisCompletedAt *time.Time `json:"diagnosisCompletedAt"`
	RepairStartedAt      *time.Time `json:"repairStartedAt"`
	SentToRepairAt       *time.Time `json:"sentToRepairAt"`
	ReturnedFromRepairAt *time.Time `json:"returnedFromRepairAt"`
	ResolvedAt           *time.Time `json:"resolvedAt"`
	ResolvedByID         *int64     `json:"resolvedById"`

	IsRepeatedDefect bool   `gorm:"index;not null;default:false" json:"isRepeatedDefect"`
	PreviousDefectID *int64 `json:"previousDefectId"`

	SlaDeadline *time.Time `gorm:"index" json:"slaDeadline"`

	ReplacementPartSerial         string `gorm:"size:100" json:"replacementPartSerial"`
	ReplacementPartInternalSerial string `gorm:"size:100" json:"replacementPartInternalSerial"`
	ReplacementInventoryItemID    *int64 `json:"replacementInventoryItemId"`
	RepairDetails                 string `gorm:"type:text" json:"repairDetails"`

	SubstitutePoolEntryID  *int64 `json:"substitutePoolEntryId"`
	SubstituteServerSerial string `gorm:"size:100" json:"substituteServerSerial"`

	Resolution           string `gorm:"type:text" json:"resolution"`
	TotalDowntimeMinutes *int64 `json:"totalDowntimeMinutes"`
	Notes                string `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
