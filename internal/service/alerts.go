package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// AlertFilter narrows an alert listing
type AlertFilter struct {
	DeviceID string
	Status   models.AlertStatus
	Severity models.AlertSeverity
	// Resolved selects closed (true) or open (false) alerts when set
	Resolved *bool
	Limit    int
}

// AlertInput raises a manual alert
type AlertInput struct {
	DeviceID  string               `json:"device_id"`
	AlertType string               `json:"alert_type"`
	Severity  models.AlertSeverity `json:"severity"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
}

// AlertUpdate edits an alert's text and severity
type AlertUpdate struct {
	Title    *string               `json:"title"`
	Message  *string               `json:"message"`
	Severity *models.AlertSeverity `json:"severity"`
}

// AlertService handles alert triage
type AlertService struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewAlertService creates an AlertService. notifier may be nil.
func NewAlertService(db *gorm.DB, notifier Notifier, log *zap.Logger) *AlertService {
	return &AlertService{
		db:       db,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns alerts visible to actor, newest first
func (s *AlertService) List(ctx context.Context, actor Actor, f AlertFilter) ([]models.Alert, error) {
	q := s.scope(ctx, actor)
	if f.DeviceID != "" {
		q = q.Where("device_id = ?", strings.ToUpper(f.DeviceID))
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, apperr.Validation("Invalid alert status %q", f.Status)
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		if !f.Severity.Valid() {
			return nil, apperr.Validation("Invalid severity %q", f.Severity)
		}
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Resolved != nil {
		if *f.Resolved {
			q = q.Where("status NOT IN ?", models.OpenAlertStatuses)
		} else {
			q = q.Where("status IN ?", models.OpenAlertStatuses)
		}
	}
	var alerts []models.Alert
	if err := q.Order("created_at DESC").Limit(clampLimit(f.Limit, 100, 1000)).Find(&alerts).Error; err != nil {
		return nil, apperr.Internal(err, "list alerts")
	}
	return alerts, nil
}

// Unresolved returns open alerts visible to actor
func (s *AlertService) Unresolved(ctx context.Context, actor Actor) ([]models.Alert, error) {
	open := false
	return s.List(ctx, actor, AlertFilter{Resolved: &open})
}

// ByDevice returns alerts for one device
func (s *AlertService) ByDevice(ctx context.Context, actor Actor, deviceID string, limit int) ([]models.Alert, error) {
	device, err := s.device(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}
	var alerts []models.Alert
	err = s.db.WithContext(ctx).Where("device_id = ?", device.DeviceID).
		Order("created_at DESC").Limit(clampLimit(limit, 100, 1000)).Find(&alerts).Error
	if err != nil {
		return nil, apperr.Internal(err, "list alerts")
	}
	return alerts, nil
}

// Get returns one alert
func (s *AlertService) Get(ctx context.Context, actor Actor, id string) (*models.Alert, error) {
	alert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(alert.UserID) {
		return nil, apperr.Authorization("Access denied to this alert")
	}
	return alert, nil
}

// Create raises a manual alert. Manual alerts carry no parameter and are not deduplicated.
func (s *AlertService) Create(ctx context.Context, actor Actor, in AlertInput) (*models.Alert, error) {
	if strings.TrimSpace(in.DeviceID) == "" {
		return nil, apperr.Validation("device_id is required")
	}
	alertType := strings.TrimSpace(in.AlertType)
	if alertType == "" {
		return nil, apperr.Validation("alert_type is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, apperr.Validation("message is required")
	}
	if in.Severity == "" {
		in.Severity = models.SeverityInfo
	}
	if !in.Severity.Valid() {
		return nil, apperr.Validation("Invalid severity %q", in.Severity)
	}

	device, err := s.device(ctx, in.DeviceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = alertType
	}
	farmID := device.FarmID
	alert := &models.Alert{
		DeviceID:  device.DeviceID,
		UserID:    device.UserID,
		FarmID:    &farmID,
		AlertType: alertType,
		Severity:  in.Severity,
		Title:     title,
		Message:   strings.TrimSpace(in.Message),
		Status:    models.AlertStatusActive,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(alert).Error; err != nil {
			return err
		}
		return tx.Model(&models.Device{}).Where("id = ?", device.ID).Update("latest_alert_id", alert.ID).Error
	})
	if err != nil {
		return nil, dbError(err, "Alert")
	}
	if s.notifier != nil {
		s.notifier.AlertRaised(device, alert)
	}
	return alert, nil
}

// Update edits an alert's title, message or severity
func (s *AlertService) Update(ctx context.Context, actor Actor, id string, in AlertUpdate) (*models.Alert, error) {
	alert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(alert.UserID) {
		return nil, apperr.Authorization("Access denied to this alert")
	}
	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Message != nil {
		updates["message"] = strings.TrimSpace(*in.Message)
	}
	if in.Severity != nil {
		if !in.Severity.Valid() {
			return nil, apperr.Validation("Invalid severity %q", *in.Severity)
		}
		updates["severity"] = *in.Severity
	}
	if len(updates) == 0 {
		return alert, nil
	}
	if err := s.db.WithContext(ctx).Model(alert).Updates(updates).Error; err != nil {
		return nil, apperr.Internal(err, "update alert")
	}
	return s.load(ctx, id)
}

// Transition moves an alert through its lifecycle
func (s *AlertService) Transition(ctx context.Context, actor Actor, id string, next models.AlertStatus) (*models.Alert, error) {
	if !next.Valid() {
		return nil, apperr.Validation("Invalid alert status %q", next)
	}
	alert, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(alert.UserID) {
		return nil, apperr.Authorization("Access denied to this alert")
	}
	if !alert.Status.CanTransitionTo(next) {
		return nil, apperr.Validation("Cannot change alert from %s to %s", alert.Status, next)
	}

	now := s.now()
	updates := map[string]interface{}{"status": next}
	switch next {
	case models.AlertStatusAcknowledged:
		updates["acknowledged_at"] = now
		alert.AcknowledgedAt = &now
	case models.AlertStatusResolved, models.AlertStatusDismissed:
		updates["resolved_at"] = now
		alert.ResolvedAt = &now
	}

	// Guard on the current status so concurrent transitions cannot both win.
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND status = ?", alert.ID, alert.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error, "update alert")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("Alert was modified concurrently")
	}
	s.log.Info("alert transitioned",
		zap.String("alert_id", alert.ID),
		zap.String("from", string(alert.Status)),
		zap.String("to", string(next)),
		zap.String("by", actor.UserID))
	alert.Status = next
	return alert, nil
}

// Delete removes an alert
func (s *AlertService) Delete(ctx context.Context, actor Actor, id string) error {
	alert, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanWrite(alert.UserID) {
		return apperr.Authorization("Access denied to this alert")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Device{}).Where("latest_alert_id = ?", alert.ID).
			Update("latest_alert_id", nil).Error; err != nil {
			return apperr.Internal(err, "clear latest alert")
		}
		if err := tx.Delete(alert).Error; err != nil {
			return apperr.Internal(err, "delete alert")
		}
		return nil
	})
}

func (s *AlertService) scope(ctx context.Context, actor Actor) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Alert{})
	if !actor.SeesAll() {
		q = q.Where("user_id = ?", actor.UserID)
	}
	return q
}

func (s *AlertService) load(ctx context.Context, id string) (*models.Alert, error) {
	if !isUUID(id) {
		return nil, apperr.NotFound("Alert not found")
	}
	var alert models.Alert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "Alert")
	}
	return &alert, nil
}

func (s *AlertService) device(ctx context.Context, deviceID string) (*models.Device, error) {
	return findDevice(s.db.WithContext(ctx), deviceID)
}
