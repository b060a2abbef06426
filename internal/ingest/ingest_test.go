package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

func httpPayload() map[string]interface{} {
	return map[string]interface{}{
		"device_id":           "GREENPULSE-V1-00001",
		"ph_value":            6.8,
		"ec_value":            1.5,
		"water_temperature_c": 24.0,
		"air_temperature_c":   27.5,
		"light_intensity":     4200.0,
	}
}

func TestNormalizeDerivesTDS(t *testing.T) {
	for _, ec := range []float64{0, 0.5, 1.234, 1.5, 2.25, 3.999} {
		raw := httpPayload()
		raw["ec_value"] = ec

		v, err := Normalize(raw)
		require.NoError(t, err)
		assert.True(t, v.TDSDerived)
		assert.InDelta(t, DeriveTDS(ec), v.TDS, 1e-9)
	}

	assert.Equal(t, 0.96, DeriveTDS(1.5))
	assert.Equal(t, 0.79, DeriveTDS(1.234))
}

func TestNormalizeKeepsSuppliedTDS(t *testing.T) {
	raw := httpPayload()
	raw["tds_value"] = 1.1

	v, err := Normalize(raw)
	require.NoError(t, err)
	assert.False(t, v.TDSDerived)
	assert.Equal(t, 1.1, v.TDS)
}

func TestNormalizeMQTTFieldNames(t *testing.T) {
	v, err := Normalize(map[string]interface{}{
		"ph":         6.1,
		"ec":         "1.8",
		"water_temp": 22,
		"air_temp":   map[string]interface{}{"value": 30.5, "status": "ok"},
		"humidity":   65.0,
		"light":      5000,
	})
	require.NoError(t, err)

	assert.Equal(t, 6.1, v.PH)
	assert.Equal(t, 1.8, v.EC)
	assert.Equal(t, 22.0, v.WaterTemp)
	assert.Equal(t, 30.5, v.AirTemp)
	assert.Equal(t, 5000.0, v.Light)
	require.NotNil(t, v.Humidity)
	assert.Equal(t, 65.0, *v.Humidity)
}

func TestNormalizeLegacyAliases(t *testing.T) {
	raw := httpPayload()
	delete(raw, "water_temperature_c")
	delete(raw, "air_temperature_c")
	raw["temperature_water_c"] = 21.0
	raw["temperature_air_c"] = 26.0

	v, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 21.0, v.WaterTemp)
	assert.Equal(t, 26.0, v.AirTemp)
}

func TestNormalizeMissingField(t *testing.T) {
	for _, field := range []string{"ph_value", "ec_value", "water_temperature_c", "air_temperature_c", "light_intensity"} {
		raw := httpPayload()
		delete(raw, field)

		_, err := Normalize(raw)
		require.Error(t, err, field)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Contains(t, err.Error(), field)
	}
}

func TestNormalizeNonNumeric(t *testing.T) {
	cases := []interface{}{"acid", true, map[string]interface{}{"status": "ok"}, []interface{}{1.0}}
	for _, bad := range cases {
		raw := httpPayload()
		raw["ph_value"] = bad

		_, err := Normalize(raw)
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
}

func TestDeviceIDFrom(t *testing.T) {
	assert.Equal(t, "A1", DeviceIDFrom(map[string]interface{}{"device_id": " A1 "}))
	assert.Equal(t, "B2", DeviceIDFrom(map[string]interface{}{"deviceId": "B2"}))
	assert.Empty(t, DeviceIDFrom(map[string]interface{}{"device_id": 12}))
}

func TestQuality(t *testing.T) {
	base := func() *Values {
		return &Values{PH: 6.8, EC: 1.5, TDS: 0.96, WaterTemp: 24, AirTemp: 27, Light: 4200}
	}

	assert.Equal(t, models.QualityValid, Quality(base(), nil))

	// Bounds are inclusive.
	edge := base()
	edge.PH = 7.5
	assert.Equal(t, models.QualityValid, Quality(edge, nil))

	suspect := base()
	suspect.PH = 5.4
	assert.Equal(t, models.QualitySuspect, Quality(suspect, nil))

	impossible := base()
	impossible.PH = 15
	assert.Equal(t, models.QualityError, Quality(impossible, nil))

	negative := base()
	negative.Light = -1
	assert.Equal(t, models.QualityError, Quality(negative, nil))

	h := 140.0
	humid := base()
	humid.Humidity = &h
	assert.Equal(t, models.QualityError, Quality(humid, nil))
}

func TestQualityUsesDeviceConfiguration(t *testing.T) {
	cfg := models.NewDefaultConfiguration("ref", "D")
	lo := 5.0
	cfg.PHMin = &lo

	v := &Values{PH: 5.4, EC: 1.5, WaterTemp: 24, AirTemp: 27, Light: 4200}
	assert.Equal(t, models.QualityValid, Quality(v, cfg))

	// A nil configured end falls back to the default band.
	cfg.ECValueMax = nil
	v.EC = 2.6
	assert.Equal(t, models.QualitySuspect, Quality(v, cfg))
}
