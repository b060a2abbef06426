package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertTransitions(t *testing.T) {
	allowed := map[AlertStatus][]AlertStatus{
		AlertStatusActive:       {AlertStatusAcknowledged, AlertStatusResolved, AlertStatusDismissed},
		AlertStatusAcknowledged: {AlertStatusResolved},
	}
	all := []AlertStatus{AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusDismissed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOpenStatuses(t *testing.T) {
	assert.True(t, AlertStatusActive.IsOpen())
	assert.True(t, AlertStatusAcknowledged.IsOpen())
	assert.False(t, AlertStatusResolved.IsOpen())
	assert.False(t, AlertStatusDismissed.IsOpen())
}

func TestDefaultConfiguration(t *testing.T) {
	cfg := NewDefaultConfiguration("ref-1", "GREENPULSE-V1-00001")

	assert.Equal(t, "devices/GREENPULSE-V1-00001/data", cfg.MQTTTopic)
	assert.True(t, cfg.AlertEnabled)
	assert.Equal(t, 300, cfg.SamplingInterval)

	ph := cfg.Bound(ParamPH)
	require.NotNil(t, ph.Min)
	assert.Equal(t, 6.0, *ph.Min)
	assert.Equal(t, 7.5, *ph.Max)
	assert.Empty(t, cfg.Validate())

	// Bounds are copies, not shared with the defaults table.
	*cfg.PHMin = 1
	assert.Equal(t, 6.0, *DefaultRanges[ParamPH].Min)
}

func TestConfigurationValidate(t *testing.T) {
	cfg := NewDefaultConfiguration("ref", "X")
	lo, hi := 30.0, 10.0
	cfg.WaterTempMin, cfg.WaterTempMax = &lo, &hi

	assert.Equal(t, []Parameter{ParamWaterTemp}, cfg.Validate())
}

func TestReadingJSONIncludesTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := SensorReading{DeviceID: "D1", PHValue: 6.5, CreatedAt: at}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "2026-03-01T12:00:00Z", out["timestamp"])
	assert.Equal(t, "2026-03-01T12:00:00Z", out["created_at"])
	assert.Equal(t, 6.5, out["ph_value"])
	assert.NotContains(t, out, "air_humidity")
}

func TestReadingValue(t *testing.T) {
	r := SensorReading{LightIntensity: 4000}
	v, ok := r.Value(ParamLight)
	assert.True(t, ok)
	assert.Equal(t, 4000.0, v)

	_, ok = r.Value(ParamHumidity)
	assert.False(t, ok)
}
