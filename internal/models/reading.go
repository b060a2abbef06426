package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Parameter names a measured quantity. Values match the reading's JSON field names.
type Parameter string

const (
	ParamPH        Parameter = "ph_value"
	ParamEC        Parameter = "ec_value"
	ParamTDS       Parameter = "tds_value"
	ParamWaterTemp Parameter = "water_temperature_c"
	ParamAirTemp   Parameter = "air_temperature_c"
	ParamHumidity  Parameter = "air_humidity"
	ParamLight     Parameter = "light_intensity"
)

// MonitoredParameters are the parameters with configurable alert bounds, in evaluation order.
var MonitoredParameters = []Parameter{ParamPH, ParamEC, ParamLight, ParamAirTemp, ParamWaterTemp}

// Label is a short human-readable name
func (p Parameter) Label() string {
	switch p {
	case ParamPH:
		return "pH"
	case ParamEC:
		return "EC"
	case ParamTDS:
		return "TDS"
	case ParamWaterTemp:
		return "Water temperature"
	case ParamAirTemp:
		return "Air temperature"
	case ParamHumidity:
		return "Humidity"
	case ParamLight:
		return "Light intensity"
	}
	return string(p)
}

// QualityFlag classifies a reading at ingestion time
type QualityFlag string

const (
	QualityValid   QualityFlag = "valid"
	QualitySuspect QualityFlag = "suspect"
	QualityError   QualityFlag = "error"
)

// Reading sources
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// SensorReading is an immutable measurement sample. DeviceID is the device's external identifier.
type SensorReading struct {
	ID                string      `gorm:"primaryKey;type:uuid" json:"id"`
	DataID            string      `gorm:"type:uuid;uniqueIndex;not null" json:"data_id"`
	DeviceID          string      `gorm:"size:64;not null;index:idx_readings_device_time,priority:1" json:"device_id"`
	PHValue           float64     `gorm:"column:ph_value" json:"ph_value"`
	ECValue           float64     `gorm:"column:ec_value" json:"ec_value"`
	TDSValue          float64     `gorm:"column:tds_value" json:"tds_value"`
	WaterTemperatureC float64     `gorm:"column:water_temperature_c" json:"water_temperature_c"`
	AirTemperatureC   float64     `gorm:"column:air_temperature_c" json:"air_temperature_c"`
	AirHumidity       *float64    `gorm:"column:air_humidity" json:"air_humidity,omitempty"`
	LightIntensity    float64     `gorm:"column:light_intensity" json:"light_intensity"`
	QualityFlag       QualityFlag `gorm:"size:16;not null" json:"quality_flag"`
	Source            string      `gorm:"size:8" json:"source"`
	CreatedAt         time.Time   `gorm:"not null;index:idx_readings_device_time,priority:2" json:"created_at"`
}

// TableName specifies the table name for SensorReading
func (SensorReading) TableName() string {
	return "sensor_readings"
}

// BeforeCreate assigns identifiers when none were set
func (r *SensorReading) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.DataID == "" {
		r.DataID = uuid.NewString()
	}
	return nil
}

// Value returns the reading's value for p. ok is false for an absent optional value.
func (r *SensorReading) Value(p Parameter) (v float64, ok bool) {
	switch p {
	case ParamPH:
		return r.PHValue, true
	case ParamEC:
		return r.ECValue, true
	case ParamTDS:
		return r.TDSValue, true
	case ParamWaterTemp:
		return r.WaterTemperatureC, true
	case ParamAirTemp:
		return r.AirTemperatureC, true
	case ParamLight:
		return r.LightIntensity, true
	case ParamHumidity:
		if r.AirHumidity == nil {
			return 0, false
		}
		return *r.AirHumidity, true
	}
	return 0, false
}

// MarshalJSON adds a timestamp alias of created_at for dashboard clients
func (r SensorReading) MarshalJSON() ([]byte, error) {
	type plain SensorReading
	return json.Marshal(struct {
		plain
		Timestamp time.Time `json:"timestamp"`
	}{plain(r), r.CreatedAt})
}
