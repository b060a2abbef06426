package ingest

import "github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"

// Quality flags a reading. error beats suspect beats valid:
// error when a value is physically impossible, suspect when a value leaves its
// operating range (the device's configured bound, or the default band).
func Quality(v *Values, cfg *models.DeviceConfiguration) models.QualityFlag {
	if implausible(v) {
		return models.QualityError
	}
	for _, p := range models.MonitoredParameters {
		value, ok := v.Get(p)
		if !ok {
			continue
		}
		if outside(value, operatingRange(p, cfg)) {
			return models.QualitySuspect
		}
	}
	return models.QualityValid
}

func implausible(v *Values) bool {
	if v.PH < 0 || v.PH > 14 {
		return true
	}
	if v.EC < 0 || v.TDS < 0 || v.Light < 0 {
		return true
	}
	if v.Humidity != nil && (*v.Humidity < 0 || *v.Humidity > 100) {
		return true
	}
	return false
}

// operatingRange prefers configured ends and falls back to the default band per end
func operatingRange(p models.Parameter, cfg *models.DeviceConfiguration) models.Range {
	r := models.DefaultRanges[p]
	if cfg == nil {
		return r
	}
	c := cfg.Bound(p)
	if c.Min != nil {
		r.Min = c.Min
	}
	if c.Max != nil {
		r.Max = c.Max
	}
	return r
}

func outside(value float64, r models.Range) bool {
	return (r.Min != nil && value < *r.Min) || (r.Max != nil && value > *r.Max)
}
