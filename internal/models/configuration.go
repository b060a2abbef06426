package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSamplingInterval in seconds
const DefaultSamplingInterval = 300

// Range is an inclusive operating band. A nil end is unbounded.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// DefaultRanges are the operating bands applied to new devices and used
// for quality flagging when a device has no configuration.
var DefaultRanges = map[Parameter]Range{
	ParamPH:        {Min: f(6.0), Max: f(7.5)},
	ParamEC:        {Min: f(1.0), Max: f(2.5)},
	ParamLight:     {Min: f(3500), Max: f(6000)},
	ParamAirTemp:   {Min: f(18), Max: f(35)},
	ParamWaterTemp: {Min: f(20), Max: f(28)},
}

func f(v float64) *float64 { return &v }

// DeviceConfiguration holds per-device sampling and alert thresholds
type DeviceConfiguration struct {
	ID               string   `gorm:"primaryKey;type:uuid" json:"id"`
	DeviceRef        string   `gorm:"type:uuid;uniqueIndex;not null" json:"device_ref"`
	MQTTTopic        string   `gorm:"column:mqtt_topic" json:"mqtt_topic"`
	AlertEnabled     bool     `gorm:"not null" json:"alert_enabled"`
	SamplingInterval int      `gorm:"not null" json:"sampling_interval"`
	PHMin            *float64 `gorm:"column:ph_min" json:"ph_min"`
	PHMax            *float64 `gorm:"column:ph_max" json:"ph_max"`
	ECValueMin       *float64 `gorm:"column:ec_value_min" json:"ec_value_min"`
	ECValueMax       *float64 `gorm:"column:ec_value_max" json:"ec_value_max"`
	LightMin         *float64 `gorm:"column:light_intensity_min" json:"light_intensity_min"`
	LightMax         *float64 `gorm:"column:light_intensity_max" json:"light_intensity_max"`
	AirTempMin       *float64 `gorm:"column:air_temp_min" json:"air_temp_min"`
	AirTempMax       *float64 `gorm:"column:air_temp_max" json:"air_temp_max"`
	WaterTempMin     *float64 `gorm:"column:water_temp_min" json:"water_temp_min"`
	WaterTempMax     *float64 `gorm:"column:water_temp_max" json:"water_temp_max"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for DeviceConfiguration
func (DeviceConfiguration) TableName() string {
	return "device_configurations"
}

// BeforeCreate assigns a UUID when none was set
func (c *DeviceConfiguration) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// NewDefaultConfiguration returns the configuration a freshly registered device starts with
func NewDefaultConfiguration(deviceRef, externalID string) *DeviceConfiguration {
	return &DeviceConfiguration{
		DeviceRef:        deviceRef,
		MQTTTopic:        "devices/" + externalID + "/data",
		AlertEnabled:     true,
		SamplingInterval: DefaultSamplingInterval,
		PHMin:            f(*DefaultRanges[ParamPH].Min),
		PHMax:            f(*DefaultRanges[ParamPH].Max),
		ECValueMin:       f(*DefaultRanges[ParamEC].Min),
		ECValueMax:       f(*DefaultRanges[ParamEC].Max),
		LightMin:         f(*DefaultRanges[ParamLight].Min),
		LightMax:         f(*DefaultRanges[ParamLight].Max),
		AirTempMin:       f(*DefaultRanges[ParamAirTemp].Min),
		AirTempMax:       f(*DefaultRanges[ParamAirTemp].Max),
		WaterTempMin:     f(*DefaultRanges[ParamWaterTemp].Min),
		WaterTempMax:     f(*DefaultRanges[ParamWaterTemp].Max),
	}
}

// Bound returns the configured range for p
func (c *DeviceConfiguration) Bound(p Parameter) Range {
	switch p {
	case ParamPH:
		return Range{c.PHMin, c.PHMax}
	case ParamEC:
		return Range{c.ECValueMin, c.ECValueMax}
	case ParamLight:
		return Range{c.LightMin, c.LightMax}
	case ParamAirTemp:
		return Range{c.AirTempMin, c.AirTempMax}
	case ParamWaterTemp:
		return Range{c.WaterTempMin, c.WaterTempMax}
	}
	return Range{}
}

// Validate checks that every configured range has min <= max
func (c *DeviceConfiguration) Validate() []Parameter {
	var bad []Parameter
	for _, p := range MonitoredParameters {
		r := c.Bound(p)
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			bad = append(bad, p)
		}
	}
	return bad
}
