package alerting

import (
	"fmt"
	"math"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// Direction says which side of the band a value fell on
type Direction string

const (
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
)

// criticalMargin is the fraction of the bound's magnitude beyond which a violation is critical
const criticalMargin = 0.10

// Violation is one parameter outside its configured bound
type Violation struct {
	Parameter models.Parameter
	Direction Direction
	Threshold float64
	Actual    float64
}

// AlertType is the machine-readable type, e.g. ph_value_low
func (v Violation) AlertType() string {
	return fmt.Sprintf("%s_%s", v.Parameter, v.Direction)
}

// Severity is critical when the value overshoots the bound by more than 10% of |bound|.
// A zero bound has no relative margin, so any overshoot of it is critical.
func (v Violation) Severity() models.AlertSeverity {
	margin := math.Abs(v.Threshold) * criticalMargin
	overshoot := v.Actual - v.Threshold
	if v.Direction == DirectionLow {
		overshoot = v.Threshold - v.Actual
	}
	if overshoot > margin {
		return models.SeverityCritical
	}
	return models.SeverityWarning
}

// Title is a short headline for dashboards
func (v Violation) Title() string {
	if v.Direction == DirectionLow {
		return "Low " + v.Parameter.Label()
	}
	return "High " + v.Parameter.Label()
}

// Message is the human-readable alert text
func (v Violation) Message() string {
	return fmt.Sprintf("%s measured %s while threshold is %s",
		v.Parameter.Label(), formatValue(v.Actual), formatValue(v.Threshold))
}

func formatValue(f float64) string {
	return fmt.Sprintf("%g", math.Round(f*100)/100)
}

// Check compares a reading against the configured bounds. Comparisons are strict,
// so a value equal to a bound is in range. Parameters without a bound are skipped.
func Check(cfg *models.DeviceConfiguration, reading *models.SensorReading) []Violation {
	if cfg == nil {
		return nil
	}
	var out []Violation
	for _, p := range models.MonitoredParameters {
		value, ok := reading.Value(p)
		if !ok {
			continue
		}
		bound := cfg.Bound(p)
		switch {
		case bound.Min != nil && value < *bound.Min:
			out = append(out, Violation{Parameter: p, Direction: DirectionLow, Threshold: *bound.Min, Actual: value})
		case bound.Max != nil && value > *bound.Max:
			out = append(out, Violation{Parameter: p, Direction: DirectionHigh, Threshold: *bound.Max, Actual: value})
		}
	}
	return out
}
