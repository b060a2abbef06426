// Package ingest turns raw sensor payloads from HTTP or MQTT into reading values.
package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// TDSFactor converts EC (mS/cm) to TDS (ppt)
const TDSFactor = 0.64

// aliases lists accepted payload keys per parameter, canonical name first.
// HTTP clients send the canonical names; firmware publishing over MQTT sends the short ones.
var aliases = map[models.Parameter][]string{
	models.ParamPH:        {"ph_value", "ph"},
	models.ParamEC:        {"ec_value", "ec"},
	models.ParamTDS:       {"tds_value", "tds"},
	models.ParamWaterTemp: {"water_temperature_c", "temperature_water_c", "water_temp"},
	models.ParamAirTemp:   {"air_temperature_c", "temperature_air_c", "air_temp"},
	models.ParamHumidity:  {"air_humidity", "humidity"},
	models.ParamLight:     {"light_intensity", "light"},
}

// required parameters must be present in every payload. TDS is derived when absent.
var required = []models.Parameter{
	models.ParamPH,
	models.ParamEC,
	models.ParamWaterTemp,
	models.ParamAirTemp,
	models.ParamLight,
}

// Values are the parsed numeric fields of one payload
type Values struct {
	PH         float64
	EC         float64
	TDS        float64
	WaterTemp  float64
	AirTemp    float64
	Light      float64
	Humidity   *float64
	TDSDerived bool
}

// Get returns the value for p
func (v *Values) Get(p models.Parameter) (float64, bool) {
	switch p {
	case models.ParamPH:
		return v.PH, true
	case models.ParamEC:
		return v.EC, true
	case models.ParamTDS:
		return v.TDS, true
	case models.ParamWaterTemp:
		return v.WaterTemp, true
	case models.ParamAirTemp:
		return v.AirTemp, true
	case models.ParamLight:
		return v.Light, true
	case models.ParamHumidity:
		if v.Humidity == nil {
			return 0, false
		}
		return *v.Humidity, true
	}
	return 0, false
}

// DeviceIDFrom extracts the device identifier from a payload, if present
func DeviceIDFrom(raw map[string]interface{}) string {
	for _, key := range []string{"device_id", "deviceId"} {
		if s, ok := raw[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Normalize parses a payload. Every required parameter must be present and numeric;
// each may be a number, a numeric string, or an object carrying a "value" field.
func Normalize(raw map[string]interface{}) (*Values, error) {
	parsed := make(map[models.Parameter]float64, len(aliases))
	var missing []string

	for param, keys := range aliases {
		val, key, found := lookup(raw, keys)
		if !found {
			continue
		}
		num, ok := toFloat(val)
		if !ok {
			return nil, apperr.Validation("%s must be numeric", key)
		}
		parsed[param] = num
	}

	for _, p := range required {
		if _, ok := parsed[p]; !ok {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("All sensor parameters are required (missing: %s)", strings.Join(missing, ", "))
	}

	v := &Values{
		PH:        parsed[models.ParamPH],
		EC:        parsed[models.ParamEC],
		WaterTemp: parsed[models.ParamWaterTemp],
		AirTemp:   parsed[models.ParamAirTemp],
		Light:     parsed[models.ParamLight],
	}
	if tds, ok := parsed[models.ParamTDS]; ok {
		v.TDS = tds
	} else {
		v.TDS = DeriveTDS(v.EC)
		v.TDSDerived = true
	}
	if h, ok := parsed[models.ParamHumidity]; ok {
		v.Humidity = &h
	}
	return v, nil
}

// DeriveTDS computes TDS from EC, rounded to 2 decimals
func DeriveTDS(ec float64) float64 {
	return math.Round(ec*TDSFactor*100) / 100
}

func lookup(raw map[string]interface{}, keys []string) (interface{}, string, bool) {
	for _, key := range keys {
		if val, ok := raw[key]; ok && val != nil {
			return val, key, true
		}
	}
	return nil, "", false
}

func toFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case map[string]interface{}:
		// {value, status} shape from older firmware
		inner, ok := v["value"]
		if !ok || inner == nil {
			return 0, false
		}
		if _, nested := inner.(map[string]interface{}); nested {
			return 0, false
		}
		return toFloat(inner)
	}
	return 0, false
}
