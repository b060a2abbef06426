package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceStatus defines the lifecycle state of a sensor node
type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusInactive    DeviceStatus = "inactive"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
	DeviceStatusError       DeviceStatus = "error"
)

// Valid reports whether s is a known device status
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusActive, DeviceStatusInactive, DeviceStatusMaintenance, DeviceStatusError:
		return true
	}
	return false
}

// DefaultDeviceType is the hardware revision assumed when none is given
const DefaultDeviceType = "greenpulse-v1"

// Device is a sensor node installed on a farm.
// ID is internal; DeviceID is the external identifier the hardware reports with.
type Device struct {
	ID              string       `gorm:"primaryKey;type:uuid" json:"id"`
	DeviceID        string       `gorm:"size:64;uniqueIndex;not null" json:"device_id"`
	UserID          string       `gorm:"type:uuid;index;not null" json:"user_id"`
	FarmID          string       `gorm:"type:uuid;index;not null" json:"farm_id"`
	DeviceName      string       `gorm:"not null" json:"device_name"`
	Location        string       `json:"location,omitempty"`
	Status          DeviceStatus `gorm:"size:16;not null;default:'active'" json:"status"`
	DeviceType      string       `gorm:"size:32" json:"device_type"`
	FirmwareVersion string       `gorm:"size:32" json:"firmware_version,omitempty"`
	LastActivity    *time.Time   `json:"last_activity,omitempty"`
	LatestAlertID   *string      `gorm:"type:uuid" json:"latest_alert_id,omitempty"`

	Configuration *DeviceConfiguration `gorm:"foreignKey:DeviceRef" json:"configuration,omitempty"`
	Farm          *Farm                `gorm:"foreignKey:FarmID" json:"farm,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Device
func (Device) TableName() string {
	return "devices"
}

// BeforeCreate assigns a UUID when none was set
func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
