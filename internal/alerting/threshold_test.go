package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

func TestSeverity(t *testing.T) {
	cases := []struct {
		name string
		v    Violation
		want models.AlertSeverity
	}{
		{"slightly low pH", Violation{models.ParamPH, DirectionLow, 6.0, 5.8}, models.SeverityWarning},
		{"far low pH", Violation{models.ParamPH, DirectionLow, 6.0, 5.0}, models.SeverityCritical},
		{"slightly high EC", Violation{models.ParamEC, DirectionHigh, 2.5, 2.7}, models.SeverityWarning},
		{"far high EC", Violation{models.ParamEC, DirectionHigh, 2.5, 3.0}, models.SeverityCritical},
		{"zero bound", Violation{models.ParamAirTemp, DirectionLow, 0, -0.5}, models.SeverityCritical},
		{"negative bound", Violation{models.ParamAirTemp, DirectionLow, -10, -10.5}, models.SeverityWarning},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.v.Severity(), tc.name)
	}
}

func TestCheckSkipsUnboundedParameters(t *testing.T) {
	cfg := &models.DeviceConfiguration{AlertEnabled: true}
	hi := 7.0
	cfg.PHMax = &hi

	r := &models.SensorReading{PHValue: 7.2, ECValue: 99, LightIntensity: -5}
	v := Check(cfg, r)

	assert.Len(t, v, 1)
	assert.Equal(t, "ph_value_high", v[0].AlertType())
	assert.Equal(t, "High pH", v[0].Title())
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := NewKeyedMutex()

	release := k.Lock("a")
	other := k.Lock("b")
	assert.Equal(t, 2, k.Len())

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r := k.Lock("a")
		close(acquired)
		r()
		close(done)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key should block")
	default:
	}

	release()
	<-acquired
	<-done
	other()
	assert.Zero(t, k.Len())
}
