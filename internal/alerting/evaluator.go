// Package alerting decides which readings raise alerts and keeps at most one
// open alert per device and parameter.
package alerting

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// ErrDuplicateOpenAlert is returned by Store.CreateAlert when another open alert
// for the same device and parameter already exists.
var ErrDuplicateOpenAlert = errors.New("open alert already exists for device and parameter")

// Store is the persistence the evaluator needs
type Store interface {
	// FindOpenAlert returns the open alert for the pair, or nil if there is none.
	FindOpenAlert(ctx context.Context, deviceID string, parameter models.Parameter) (*models.Alert, error)
	// LatestAlert returns the most recent alert for the pair in any status, or nil.
	LatestAlert(ctx context.Context, deviceID string, parameter models.Parameter) (*models.Alert, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
	SetLatestAlert(ctx context.Context, deviceRef, alertID string) error
}

// Notifier receives newly raised alerts
type Notifier interface {
	AlertRaised(device *models.Device, alert *models.Alert)
}

// Evaluator applies device thresholds to stored readings
type Evaluator struct {
	store    Store
	notifier Notifier
	locks    *KeyedMutex
	cooldown time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// Option customizes an Evaluator
type Option func(*Evaluator)

// WithCooldown suppresses a new alert while the newest alert for the same
// device and parameter is younger than d, whatever its status.
func WithCooldown(d time.Duration) Option {
	return func(e *Evaluator) { e.cooldown = d }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an Evaluator
func NewEvaluator(store Store, notifier Notifier, log *zap.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:    store,
		notifier: notifier,
		locks:    NewKeyedMutex(),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks reading against the device configuration and returns the alerts it created.
// It is a no-op when the device has no configuration or alerts are disabled.
// Evaluation for one device is serialized so concurrent readings cannot both miss an open alert.
func (e *Evaluator) Evaluate(ctx context.Context, device *models.Device, reading *models.SensorReading) ([]*models.Alert, error) {
	cfg := device.Configuration
	if cfg == nil || !cfg.AlertEnabled {
		return nil, nil
	}

	violations := Check(cfg, reading)
	if len(violations) == 0 {
		return nil, nil
	}

	unlock := e.locks.Lock(device.DeviceID)
	defer unlock()

	var created []*models.Alert
	for _, v := range violations {
		suppressed, err := e.suppressed(ctx, device.DeviceID, v.Parameter)
		if err != nil {
			return created, err
		}
		if suppressed {
			e.log.Debug("alert suppressed",
				zap.String("device_id", device.DeviceID),
				zap.String("parameter", string(v.Parameter)))
			continue
		}

		alert := newAlert(device, reading, v)
		if err := e.store.CreateAlert(ctx, alert); err != nil {
			if errors.Is(err, ErrDuplicateOpenAlert) {
				// Another instance won the race.
				continue
			}
			return created, err
		}
		if err := e.store.SetLatestAlert(ctx, device.ID, alert.ID); err != nil {
			return created, err
		}
		device.LatestAlertID = &alert.ID

		e.log.Info("alert raised",
			zap.String("device_id", device.DeviceID),
			zap.String("alert_type", alert.AlertType),
			zap.String("severity", string(alert.Severity)),
			zap.Float64("actual", v.Actual),
			zap.Float64("threshold", v.Threshold))

		if e.notifier != nil {
			e.notifier.AlertRaised(device, alert)
		}
		created = append(created, alert)
	}
	return created, nil
}

func (e *Evaluator) suppressed(ctx context.Context, deviceID string, p models.Parameter) (bool, error) {
	open, err := e.store.FindOpenAlert(ctx, deviceID, p)
	if err != nil {
		return false, err
	}
	if open != nil {
		return true, nil
	}
	if e.cooldown <= 0 {
		return false, nil
	}
	latest, err := e.store.LatestAlert(ctx, deviceID, p)
	if err != nil {
		return false, err
	}
	return latest != nil && e.now().Sub(latest.CreatedAt) < e.cooldown, nil
}

func newAlert(device *models.Device, reading *models.SensorReading, v Violation) *models.Alert {
	threshold, actual := v.Threshold, v.Actual
	alert := &models.Alert{
		DeviceID:       device.DeviceID,
		UserID:         device.UserID,
		AlertType:      v.AlertType(),
		Parameter:      string(v.Parameter),
		ThresholdValue: &threshold,
		ActualValue:    &actual,
		Severity:       v.Severity(),
		Title:          v.Title(),
		Message:        v.Message(),
		Status:         models.AlertStatusActive,
	}
	if device.FarmID != "" {
		farmID := device.FarmID
		alert.FarmID = &farmID
	}
	if reading.DataID != "" {
		dataID := reading.DataID
		alert.DataID = &dataID
	}
	return alert
}
