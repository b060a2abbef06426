package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FarmStatus is the operating state of a farm
type FarmStatus string

const (
	FarmStatusActive      FarmStatus = "active"
	FarmStatusInactive    FarmStatus = "inactive"
	FarmStatusMaintenance FarmStatus = "maintenance"
)

// Farm is a site owned by a single user. One farm per owner.
type Farm struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	FarmName    string     `gorm:"not null" json:"farm_name"`
	UserID      string     `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Location    string     `json:"location,omitempty"`
	Status      FarmStatus `gorm:"size:16;not null;default:'active'" json:"status"`
	Description string     `json:"description,omitempty"`
	Area        float64    `json:"area,omitempty"`
	TankCount   int        `json:"tank_count,omitempty"`

	Devices []Device `gorm:"foreignKey:FarmID" json:"devices,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Farm
func (Farm) TableName() string {
	return "farms"
}

// BeforeCreate assigns a UUID when none was set
func (f *Farm) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
