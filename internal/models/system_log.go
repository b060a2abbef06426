package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LogType is the level of an audit entry
type LogType string

const (
	LogInfo    LogType = "INFO"
	LogWarning LogType = "WARNING"
	LogError   LogType = "ERROR"
)

// Audit events
const (
	EventSensorReading = "SENSOR_READING"
	EventConfigUpdate  = "CONFIG_UPDATE"
	EventStatusChange  = "STATUS_CHANGE"
	EventDeviceCreated = "DEVICE_CREATED"
)

// SystemLog is an append-only audit entry about a device
type SystemLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	DeviceRef string         `gorm:"type:uuid;index;not null" json:"device_ref"`
	ConfigID  *string        `gorm:"type:uuid" json:"config_id,omitempty"`
	LogType   LogType        `gorm:"size:16;not null" json:"log_type"`
	Event     string         `gorm:"size:32;not null;index" json:"event"`
	Message   string         `json:"message"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for SystemLog
func (SystemLog) TableName() string {
	return "system_logs"
}

// BeforeCreate assigns a UUID when none was set
func (l *SystemLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// NewSystemLog builds an entry, encoding metadata as JSON when given
func NewSystemLog(deviceRef string, logType LogType, event, message string, metadata interface{}) *SystemLog {
	entry := &SystemLog{
		DeviceRef: deviceRef,
		LogType:   logType,
		Event:     event,
		Message:   message,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	return entry
}

// All returns every persisted model, in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Farm{},
		&Device{},
		&DeviceConfiguration{},
		&SensorReading{},
		&Alert{},
		&SystemLog{},
	}
}
