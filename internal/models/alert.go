package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertStatus is the triage state of an alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// OpenAlertStatuses are the states that block a new alert for the same device and parameter
var OpenAlertStatuses = []AlertStatus{AlertStatusActive, AlertStatusAcknowledged}

// IsOpen reports whether the alert still needs attention
func (s AlertStatus) IsOpen() bool {
	return s == AlertStatusActive || s == AlertStatusAcknowledged
}

// Valid reports whether s is a known status
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusDismissed:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s.
// resolved and dismissed are terminal.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertStatusActive:
		return next == AlertStatusAcknowledged || next == AlertStatusResolved || next == AlertStatusDismissed
	case AlertStatusAcknowledged:
		return next == AlertStatusResolved
	}
	return false
}

// AlertSeverity ranks how far a reading strayed
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Valid reports whether s is a known severity
func (s AlertSeverity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// Alert records a threshold violation or a manually raised issue.
// DeviceID is the device's external identifier.
type Alert struct {
	ID             string        `gorm:"primaryKey;type:uuid" json:"id"`
	DeviceID       string        `gorm:"size:64;not null;index:idx_alerts_device_status,priority:1" json:"device_id"`
	UserID         string        `gorm:"type:uuid;index:idx_alerts_user_status,priority:1" json:"user_id"`
	FarmID         *string       `gorm:"type:uuid" json:"farm_id,omitempty"`
	DataID         *string       `gorm:"type:uuid" json:"data_id,omitempty"`
	AlertType      string        `gorm:"size:64;not null" json:"alert_type"`
	Parameter      string        `gorm:"size:64;not null;default:''" json:"parameter"`
	ThresholdValue *float64      `json:"threshold_value,omitempty"`
	ActualValue    *float64      `json:"actual_value,omitempty"`
	Severity       AlertSeverity `gorm:"size:16;not null" json:"severity"`
	Title          string        `json:"title"`
	Message        string        `json:"message"`
	Status         AlertStatus   `gorm:"size:16;not null;default:'active';index:idx_alerts_device_status,priority:2;index:idx_alerts_user_status,priority:2" json:"status"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// BeforeCreate assigns a UUID when none was set
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
