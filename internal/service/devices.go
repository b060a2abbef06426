package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// DeviceFilter narrows a device listing
type DeviceFilter struct {
	FarmID string
	Status models.DeviceStatus
}

// DeviceInput creates or updates a device. Nil fields are left unchanged on update.
type DeviceInput struct {
	DeviceID        *string `json:"device_id"`
	DeviceName      *string `json:"device_name"`
	FarmID          *string `json:"farm_id"`
	Location        *string `json:"location"`
	DeviceType      *string `json:"device_type"`
	FirmwareVersion *string `json:"firmware_version"`
}

// ConfigurationInput changes a device configuration. Nil fields are left unchanged.
type ConfigurationInput struct {
	MQTTTopic        *string  `json:"mqtt_topic"`
	AlertEnabled     *bool    `json:"alert_enabled"`
	SamplingInterval *int     `json:"sampling_interval"`
	PHMin            *float64 `json:"ph_min"`
	PHMax            *float64 `json:"ph_max"`
	ECValueMin       *float64 `json:"ec_value_min"`
	ECValueMax       *float64 `json:"ec_value_max"`
	LightMin         *float64 `json:"light_intensity_min"`
	LightMax         *float64 `json:"light_intensity_max"`
	AirTempMin       *float64 `json:"air_temp_min"`
	AirTempMax       *float64 `json:"air_temp_max"`
	WaterTempMin     *float64 `json:"water_temp_min"`
	WaterTempMax     *float64 `json:"water_temp_max"`
}

// DeviceService manages devices, their configuration and audit log
type DeviceService struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewDeviceService creates a DeviceService. notifier may be nil.
func NewDeviceService(db *gorm.DB, notifier Notifier, log *zap.Logger) *DeviceService {
	return &DeviceService{
		db:       db,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GenerateDeviceID returns a fresh external identifier
func GenerateDeviceID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("GREENPULSE-V1-%s-%s", strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)), suffix)
}

// List returns the devices visible to actor
func (s *DeviceService) List(ctx context.Context, actor Actor, f DeviceFilter) ([]models.Device, error) {
	q := s.db.WithContext(ctx).Preload("Configuration").Preload("Farm")
	if !actor.SeesAll() {
		q = q.Where("user_id = ?", actor.UserID)
	}
	if f.FarmID != "" {
		q = q.Where("farm_id = ?", f.FarmID)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, apperr.Validation("Invalid device status %q", f.Status)
		}
		q = q.Where("status = ?", f.Status)
	}
	var devices []models.Device
	if err := q.Order("created_at DESC").Find(&devices).Error; err != nil {
		return nil, apperr.Internal(err, "list devices")
	}
	return devices, nil
}

// Get returns a device by internal uuid or external device_id
func (s *DeviceService) Get(ctx context.Context, actor Actor, id string) (*models.Device, error) {
	device, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}
	return device, nil
}

// Create registers a device on a farm with the default configuration
func (s *DeviceService) Create(ctx context.Context, actor Actor, in DeviceInput) (*models.Device, error) {
	if actor.Role == models.RoleViewer {
		return nil, apperr.Authorization("Viewers cannot register devices")
	}
	name := ""
	if in.DeviceName != nil {
		name = strings.TrimSpace(*in.DeviceName)
	}
	if name == "" {
		return nil, apperr.Validation("device_name is required")
	}
	now := s.now()
	externalID := GenerateDeviceID(now)
	if in.DeviceID != nil && strings.TrimSpace(*in.DeviceID) != "" {
		externalID = strings.ToUpper(strings.TrimSpace(*in.DeviceID))
	}

	device := &models.Device{
		DeviceID:   externalID,
		DeviceName: name,
		Status:     models.DeviceStatusActive,
		DeviceType: models.DefaultDeviceType,
	}
	applyDeviceInput(device, in)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		farm, err := s.resolveFarm(tx, actor, in.FarmID)
		if err != nil {
			return err
		}
		device.FarmID = farm.ID
		device.UserID = farm.UserID

		var taken int64
		if err := tx.Model(&models.Device{}).Where("device_id = ?", externalID).Count(&taken).Error; err != nil {
			return apperr.Internal(err, "check device id")
		}
		if taken > 0 {
			return apperr.Conflict("Device ID already exists")
		}
		if err := tx.Create(device).Error; err != nil {
			return dbError(err, "Device")
		}

		cfg := models.NewDefaultConfiguration(device.ID, device.DeviceID)
		if err := tx.Create(cfg).Error; err != nil {
			return dbError(err, "Configuration")
		}
		device.Configuration = cfg

		entry := models.NewSystemLog(device.ID, models.LogInfo, models.EventDeviceCreated,
			fmt.Sprintf("Device %s registered on farm %s", device.DeviceID, farm.FarmName),
			map[string]interface{}{"device_id": device.DeviceID, "farm_id": farm.ID, "created_by": actor.UserID})
		entry.ConfigID = &cfg.ID
		if err := tx.Create(entry).Error; err != nil {
			return apperr.Internal(err, "append log")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("device created", zap.String("device_id", device.DeviceID), zap.String("farm_id", device.FarmID))
	return device, nil
}

// Update changes a device's descriptive fields. The external id is immutable.
func (s *DeviceService) Update(ctx context.Context, actor Actor, id string, in DeviceInput) (*models.Device, error) {
	device, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}
	if in.DeviceID != nil && !strings.EqualFold(strings.TrimSpace(*in.DeviceID), device.DeviceID) {
		return nil, apperr.Validation("device_id cannot be changed")
	}
	if in.DeviceName != nil {
		name := strings.TrimSpace(*in.DeviceName)
		if name == "" {
			return nil, apperr.Validation("device_name cannot be empty")
		}
		device.DeviceName = name
	}
	applyDeviceInput(device, in)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.FarmID != nil && *in.FarmID != device.FarmID {
			farm, err := s.resolveFarm(tx, actor, in.FarmID)
			if err != nil {
				return err
			}
			device.FarmID = farm.ID
			device.UserID = farm.UserID
			device.Farm = farm
		}
		return tx.Omit("Configuration", "Farm").Save(device).Error
	})
	if err != nil {
		return nil, dbError(err, "Device")
	}
	return device, nil
}

// UpdateStatus changes a device's lifecycle status and broadcasts it
func (s *DeviceService) UpdateStatus(ctx context.Context, actor Actor, id string, status models.DeviceStatus) (*models.Device, error) {
	if !status.Valid() {
		return nil, apperr.Validation("Invalid status. Must be one of: active, inactive, maintenance, error")
	}
	device, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}
	previous := device.Status

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Device{}).Where("id = ?", device.ID).Update("status", status).Error; err != nil {
			return err
		}
		entry := models.NewSystemLog(device.ID, models.LogInfo, models.EventStatusChange,
			fmt.Sprintf("Status changed from %s to %s", previous, status),
			map[string]interface{}{"from": previous, "to": status, "changed_by": actor.UserID})
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, apperr.Internal(err, "update device status")
	}
	device.Status = status

	if s.notifier != nil {
		s.notifier.DeviceStatusChanged(device)
	}
	return device, nil
}

// GetConfiguration returns a device's configuration
func (s *DeviceService) GetConfiguration(ctx context.Context, actor Actor, id string) (*models.DeviceConfiguration, error) {
	device, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if device.Configuration == nil {
		return nil, apperr.NotFound("Configuration not found")
	}
	return device.Configuration, nil
}

// UpdateConfiguration upserts a device's configuration and records the changed fields
func (s *DeviceService) UpdateConfiguration(ctx context.Context, actor Actor, id string, in ConfigurationInput) (*models.DeviceConfiguration, error) {
	device, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}

	cfg := device.Configuration
	if cfg == nil {
		cfg = models.NewDefaultConfiguration(device.ID, device.DeviceID)
	}
	updated := applyConfigurationInput(cfg, in)
	if cfg.SamplingInterval < 1 {
		return nil, apperr.Validation("sampling_interval must be at least 1 second")
	}
	if bad := cfg.Validate(); len(bad) > 0 {
		names := make([]string, len(bad))
		for i, p := range bad {
			names[i] = p.Label()
		}
		return nil, apperr.Validation("Minimum exceeds maximum for: %s", strings.Join(names, ", "))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(cfg).Error; err != nil {
			return err
		}
		entry := models.NewSystemLog(device.ID, models.LogInfo, models.EventConfigUpdate,
			fmt.Sprintf("Configuration updated (%d field(s))", len(updated)),
			map[string]interface{}{"updated_fields": updated, "updated_by": actor.UserID})
		entry.ConfigID = &cfg.ID
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, dbError(err, "Configuration")
	}
	return cfg, nil
}

// Delete removes a device with its configuration and logs. Readings and alerts are kept.
func (s *DeviceService) Delete(ctx context.Context, actor Actor, id string) error {
	device, err := s.load(s.db.WithContext(ctx), id)
	if err != nil {
		return err
	}
	if !actor.CanWrite(device.UserID) {
		return apperr.Authorization("Access denied to this device")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteDeviceRows(tx, []string{device.ID})
	})
	if err != nil {
		return err
	}
	s.log.Info("device deleted", zap.String("device_id", device.DeviceID), zap.String("by", actor.UserID))
	return nil
}

// Logs returns a device's audit entries, newest first
func (s *DeviceService) Logs(ctx context.Context, actor Actor, id, event string, limit int) ([]models.SystemLog, error) {
	device, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("device_ref = ?", device.ID)
	if event != "" {
		q = q.Where("event = ?", strings.ToUpper(event))
	}
	var logs []models.SystemLog
	if err := q.Order("created_at DESC").Limit(clampLimit(limit, 50, 500)).Find(&logs).Error; err != nil {
		return nil, apperr.Internal(err, "list logs")
	}
	return logs, nil
}

// load finds a device by uuid or external id with its configuration and farm
func (s *DeviceService) load(db *gorm.DB, id string) (*models.Device, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound("Device not found")
	}
	q := db.Preload("Configuration").Preload("Farm")
	var device models.Device
	var err error
	if isUUID(id) {
		err = q.First(&device, "id = ?", id).Error
	} else {
		err = q.First(&device, "device_id = ?", strings.ToUpper(id)).Error
	}
	if err != nil {
		return nil, dbError(err, "Device")
	}
	return &device, nil
}

// resolveFarm picks the explicit farm when given, otherwise the actor's own farm
func (s *DeviceService) resolveFarm(tx *gorm.DB, actor Actor, farmID *string) (*models.Farm, error) {
	var farm models.Farm
	if farmID != nil && *farmID != "" {
		if !isUUID(*farmID) {
			return nil, apperr.NotFound("Farm not found")
		}
		if err := tx.First(&farm, "id = ?", *farmID).Error; err != nil {
			return nil, dbError(err, "Farm")
		}
		if !actor.CanWrite(farm.UserID) {
			return nil, apperr.Authorization("Access denied to this farm")
		}
		return &farm, nil
	}
	if err := tx.First(&farm, "user_id = ?", actor.UserID).Error; err != nil {
		if apperr.KindOf(dbError(err, "Farm")) == apperr.KindNotFound {
			return nil, apperr.Validation("No farm found for this user. Create a farm first")
		}
		return nil, dbError(err, "Farm")
	}
	return &farm, nil
}

func applyDeviceInput(device *models.Device, in DeviceInput) {
	if in.Location != nil {
		device.Location = strings.TrimSpace(*in.Location)
	}
	if in.DeviceType != nil && strings.TrimSpace(*in.DeviceType) != "" {
		device.DeviceType = strings.TrimSpace(*in.DeviceType)
	}
	if in.FirmwareVersion != nil {
		device.FirmwareVersion = strings.TrimSpace(*in.FirmwareVersion)
	}
}

// applyConfigurationInput copies the given fields and returns their names
func applyConfigurationInput(cfg *models.DeviceConfiguration, in ConfigurationInput) []string {
	var updated []string
	setFloat := func(name string, dst **float64, v *float64) {
		if v != nil {
			val := *v
			*dst = &val
			updated = append(updated, name)
		}
	}
	if in.MQTTTopic != nil {
		cfg.MQTTTopic = strings.TrimSpace(*in.MQTTTopic)
		updated = append(updated, "mqtt_topic")
	}
	if in.AlertEnabled != nil {
		cfg.AlertEnabled = *in.AlertEnabled
		updated = append(updated, "alert_enabled")
	}
	if in.SamplingInterval != nil {
		cfg.SamplingInterval = *in.SamplingInterval
		updated = append(updated, "sampling_interval")
	}
	setFloat("ph_min", &cfg.PHMin, in.PHMin)
	setFloat("ph_max", &cfg.PHMax, in.PHMax)
	setFloat("ec_value_min", &cfg.ECValueMin, in.ECValueMin)
	setFloat("ec_value_max", &cfg.ECValueMax, in.ECValueMax)
	setFloat("light_intensity_min", &cfg.LightMin, in.LightMin)
	setFloat("light_intensity_max", &cfg.LightMax, in.LightMax)
	setFloat("air_temp_min", &cfg.AirTempMin, in.AirTempMin)
	setFloat("air_temp_max", &cfg.AirTempMax, in.AirTempMax)
	setFloat("water_temp_min", &cfg.WaterTempMin, in.WaterTempMin)
	setFloat("water_temp_max", &cfg.WaterTempMax, in.WaterTempMax)
	return updated
}
