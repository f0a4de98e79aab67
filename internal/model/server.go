package model

import "time"

// ServerStatus is the lifecycle status of a tracked physical server.
type ServerStatus string

const (
	ServerStatusNew      ServerStatus = "NEW"
	ServerStatusAssembly ServerStatus = "ASSEMBLY"
	ServerStatusTesting  ServerStatus = "TESTING"
	ServerStatusDefect   ServerStatus = "DEFECT"
	ServerStatusDone     ServerStatus = "DONE"
	ServerStatusArchived ServerStatus = "ARCHIVED"
)

// Server represents a physical unit under tracking. The workflow engine is
// the only writer of Status once a defect is open.
type Server struct {
	ID              int64        `gorm:"primaryKey" json:"id"`
	SerialNumber    string       `gorm:"size:100;uniqueIndex;not null" json:"serialNumber"`
	OrgSerialNumber string       `gorm:"size:100;index" json:"orgSerialNumber"`
	Hostname        string       `gorm:"size:255" json:"hostname"`
	Status          ServerStatus `gorm:"size:32;index;not null;default:NEW" json:"status"`
	BatchCode       string       `gorm:"size:50" json:"batchCode"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}
