// Package repository holds the GORM queries used on the ingestion path.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/alerting"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// Store implements the ingestion and alerting persistence on GORM
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindDeviceByExternalID loads a device and its configuration by hardware identifier
func (s *Store) FindDeviceByExternalID(ctx context.Context, deviceID string) (*models.Device, error) {
	deviceID = strings.ToUpper(strings.TrimSpace(deviceID))
	var device models.Device
	err := s.db.WithContext(ctx).
		Preload("Configuration").
		Where("device_id = ?", deviceID).
		First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Device %s not found", deviceID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "load device")
	}
	return &device, nil
}

// CreateReading inserts a reading
func (s *Store) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return apperr.Internal(err, "insert reading")
	}
	return nil
}

// TouchDevice records activity on a device
func (s *Store) TouchDevice(ctx context.Context, deviceRef string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceRef).
		Update("last_activity", at).Error
	if err != nil {
		return apperr.Internal(err, "update device activity")
	}
	return nil
}

// AppendLog writes an audit entry
func (s *Store) AppendLog(ctx context.Context, entry *models.SystemLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperr.Internal(err, "insert system log")
	}
	return nil
}

// FindOpenAlert returns the open alert for a device and parameter, or nil
func (s *Store) FindOpenAlert(ctx context.Context, deviceID string, parameter models.Parameter) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND parameter = ? AND status IN ?", deviceID, string(parameter), models.OpenAlertStatuses).
		Order("created_at DESC").
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "find open alert")
	}
	return &alert, nil
}

// LatestAlert returns the newest alert for a device and parameter in any status, or nil
func (s *Store) LatestAlert(ctx context.Context, deviceID string, parameter models.Parameter) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND parameter = ?", deviceID, string(parameter)).
		Order("created_at DESC").
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "find latest alert")
	}
	return &alert, nil
}

// CreateAlert inserts an alert. A unique violation on the open-alert index
// surfaces as alerting.ErrDuplicateOpenAlert.
func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	err := s.db.WithContext(ctx).Create(alert).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return alerting.ErrDuplicateOpenAlert
	}
	if err != nil {
		return apperr.Internal(err, "insert alert")
	}
	return nil
}

// SetLatestAlert points a device at its newest alert
func (s *Store) SetLatestAlert(ctx context.Context, deviceRef, alertID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", deviceRef).
		Update("latest_alert_id", alertID).Error
	if err != nil {
		return apperr.Internal(err, "update latest alert")
	}
	return nil
}
