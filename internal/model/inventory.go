package model

import "time"

// ComponentType identifies the kind of a serial-tracked spare part.
type ComponentType string

const (
	ComponentCPU         ComponentType = "CPU"
	ComponentRAM         ComponentType = "RAM"
	ComponentHDD         ComponentType = "HDD"
	ComponentSSD         ComponentType = "SSD"
	ComponentNVME        ComponentType = "NVME"
	ComponentMotherboard ComponentType = "MOTHERBOARD"
	ComponentGPU         ComponentType = "GPU"
	ComponentNIC         ComponentType = "NIC"
	ComponentRAID        ComponentType = "RAID"
	ComponentPSU         ComponentType = "PSU"
	ComponentFan         ComponentType = "FAN"
	ComponentBMC         ComponentType = "BMC"
	ComponentBackplane   ComponentType = "BACKPLANE"
	ComponentCable       ComponentType = "CABLE"
	ComponentChassis     ComponentType = "CHASSIS"
	ComponentOther       ComponentType = "OTHER"
)

// InventoryStatus is the lifecycle status of an inventory item.
// SCRAPPED is terminal.
type InventoryStatus string

const (
	InventoryAvailable InventoryStatus = "AVAILABLE"
	InventoryReserved  InventoryStatus = "RESERVED"
	InventoryInUse     InventoryStatus = "IN_USE"
	InventoryInRepair  InventoryStatus = "IN_REPAIR"
	InventoryDefective InventoryStatus = "DEFECTIVE"
	InventoryScrapped  InventoryStatus = "SCRAPPED"
	InventoryReturned  InventoryStatus = "RETURNED"
)

// ComponentCondition is the physical condition of a part.
type ComponentCondition string

const (
	ConditionNew         ComponentCondition = "NEW"
	ConditionRefurbished ComponentCondition = "REFURBISHED"
	ConditionUsed        ComponentCondition = "USED"
	ConditionDamaged     ComponentCondition = "DAMAGED"
)

// ConditionRank orders conditions for fair allocation: better condition first.
func ConditionRank(c ComponentCondition) int {
	switch c {
	case ConditionNew:
		return 0
	case ConditionRefurbished:
		return 1
	case ConditionUsed:
		return 2
	case ConditionDamaged:
		return 3
	default:
		return 4
	}
}

// ComponentInventoryItem is a trackable spare part.
//
// Invariants maintained by the ledger:
//   - Status == RESERVED iff ReservedForDefectID != nil
//   - Status == IN_USE implies CurrentServerID != nil
//   - at most one of {reservation, installation} is active at a time
type ComponentInventoryItem struct {
	ID                   int64              `gorm:"primaryKey" json:"id"`
	Type                 ComponentType      `gorm:"size:32;index;not null" json:"type"`
	SerialNumber         string             `gorm:"size:100;index;not null" json:"serialNumber"`
	InternalSerialNumber string             `gorm:"size:100;index" json:"internalSerialNumber"`
	Manufacturer         string             `gorm:"size:100" json:"manufacturer"`
	Model                string             `gorm:"size:150" json:"model"`
	Status               InventoryStatus    `gorm:"size:32;index;not null;default:AVAILABLE" json:"status"`
	Condition            ComponentCondition `gorm:"size:32;not null;default:NEW" json:"condition"`
	ConditionRank        int                `gorm:"not null;default:0" json:"-"`
	Location             string             `gorm:"size:100" json:"location"`
	CurrentServerID      *int64             `gorm:"index" json:"currentServerId"`
	ReservedForDefectID  *int64             `gorm:"index" json:"reservedForDefectId"`
	PurchaseDate         *time.Time         `json:"purchaseDate"`
	WarrantyExpires      *time.Time         `json:"warrantyExpires"`
	LastTestedAt         *time.Time         `json:"lastTestedAt"`
	Notes                string             `gorm:"type:text" json:"notes"`
	CreatedByID          int64              `json:"createdById"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// HistoryAction classifies a ComponentHistoryEntry.
type HistoryAction string

const (
	HistoryReceived           HistoryAction = "RECEIVED"
	HistoryInstalled          HistoryAction = "INSTALLED"
	HistoryRemoved            HistoryAction = "REMOVED"
	HistorySentToRepair       HistoryAction = "SENT_TO_REPAIR"
	HistoryReturnedFromRepair HistoryAction = "RETURNED_FROM_REPAIR"
	HistoryTested             HistoryAction = "TESTED"
	HistoryReserved           HistoryAction = "RESERVED"
	HistoryReleased           HistoryAction = "RELEASED"
	HistoryScrapped           HistoryAction = "SCRAPPED"
	HistoryTransferred        HistoryAction = "TRANSFERRED"
)

// ComponentHistoryEntry is an append-only log row written in the same
// transaction as the inventory mutation it describes. Immutable once written.
type ComponentHistoryEntry struct {
	ID              int64         `gorm:"primaryKey" json:"id"`
	ItemID          int64         `gorm:"index;not null" json:"itemId"`
	Action          HistoryAction `gorm:"size:32;index;not null" json:"action"`
	FromServerID    *int64        `json:"fromServerId"`
	ToServerID      *int64        `json:"toServerId"`
	FromLocation    string        `gorm:"size:100" json:"fromLocation"`
	ToLocation      string        `gorm:"size:100" json:"toLocation"`
	RelatedDefectID *int64        `gorm:"index" json:"relatedDefectId"`
	TicketRef       string        `gorm:"size:50" json:"ticketRef"`
	ActorID         int64         `json:"actorId"`
	PerformedAt     time.Time     `gorm:"index;not null" json:"performedAt"`
	Note            string        `gorm:"type:text" json:"note"`
}
