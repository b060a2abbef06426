package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// FarmSummary is a farm with device counts for listings
type FarmSummary struct {
	models.Farm
	DeviceCount       int64 `json:"deviceCount"`
	ActiveDeviceCount int64 `json:"activeDeviceCount"`
}

// FarmStatistics summarises the state of one farm
type FarmStatistics struct {
	FarmID          string                        `json:"farm_id"`
	TotalDevices    int64                         `json:"total_devices"`
	DevicesByStatus map[models.DeviceStatus]int64 `json:"devices_by_status"`
	ActiveAlerts    int64                         `json:"active_alerts"`
	ReadingsLast24h int64                         `json:"readings_last_24h"`
	LastReadingAt   *time.Time                    `json:"last_reading_at,omitempty"`
}

// FarmInput creates or updates a farm. Nil fields are left unchanged on update.
type FarmInput struct {
	FarmName    *string            `json:"farm_name"`
	UserID      *string            `json:"user_id"`
	Location    *string            `json:"location"`
	Status      *models.FarmStatus `json:"status"`
	Description *string            `json:"description"`
	Area        *float64           `json:"area"`
	TankCount   *int               `json:"tank_count"`
}

// FarmService manages farms
type FarmService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewFarmService creates a FarmService
func NewFarmService(db *gorm.DB, log *zap.Logger) *FarmService {
	return &FarmService{db: db, log: log}
}

// List returns the farms visible to actor with device counts
func (s *FarmService) List(ctx context.Context, actor Actor) ([]FarmSummary, error) {
	q := s.db.WithContext(ctx).Model(&models.Farm{})
	if !actor.SeesAll() {
		q = q.Where("user_id = ?", actor.UserID)
	}
	var farms []models.Farm
	if err := q.Order("created_at DESC").Find(&farms).Error; err != nil {
		return nil, apperr.Internal(err, "list farms")
	}
	if len(farms) == 0 {
		return []FarmSummary{}, nil
	}

	ids := make([]string, len(farms))
	for i, f := range farms {
		ids[i] = f.ID
	}
	type countRow struct {
		FarmID string
		Total  int64
		Active int64
	}
	var rows []countRow
	err := s.db.WithContext(ctx).Model(&models.Device{}).
		Select("farm_id, COUNT(*) AS total, COUNT(*) FILTER (WHERE status = ?) AS active", models.DeviceStatusActive).
		Where("farm_id IN ?", ids).
		Group("farm_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "count farm devices")
	}
	counts := make(map[string]countRow, len(rows))
	for _, r := range rows {
		counts[r.FarmID] = r
	}

	out := make([]FarmSummary, len(farms))
	for i, f := range farms {
		c := counts[f.ID]
		out[i] = FarmSummary{Farm: f, DeviceCount: c.Total, ActiveDeviceCount: c.Active}
	}
	return out, nil
}

// Get returns a farm with its devices
func (s *FarmService) Get(ctx context.Context, actor Actor, id string) (*models.Farm, error) {
	farm, err := s.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(farm.UserID) {
		return nil, apperr.Authorization("Access denied to this farm")
	}
	return farm, nil
}

// Create adds a farm. An owner has at most one farm.
func (s *FarmService) Create(ctx context.Context, actor Actor, in FarmInput) (*models.Farm, error) {
	if actor.Role == models.RoleViewer {
		return nil, apperr.Authorization("Viewers cannot create farms")
	}
	name := ""
	if in.FarmName != nil {
		name = strings.TrimSpace(*in.FarmName)
	}
	if name == "" {
		return nil, apperr.Validation("farm_name is required")
	}
	ownerID := actor.UserID
	if in.UserID != nil && *in.UserID != "" && *in.UserID != actor.UserID {
		if !actor.IsAdmin() {
			return nil, apperr.Authorization("Only admins can create farms for other users")
		}
		ownerID = *in.UserID
	}

	farm := &models.Farm{FarmName: name, UserID: ownerID, Status: models.FarmStatusActive}
	if err := applyFarmInput(farm, in); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owners int64
		if err := tx.Model(&models.User{}).Where("id = ?", ownerID).Count(&owners).Error; err != nil {
			return apperr.Internal(err, "check owner")
		}
		if owners == 0 {
			return apperr.NotFound("User not found")
		}
		var existing int64
		if err := tx.Model(&models.Farm{}).Where("user_id = ?", ownerID).Count(&existing).Error; err != nil {
			return apperr.Internal(err, "check farm")
		}
		if existing > 0 {
			return apperr.Conflict("User already has a farm")
		}
		if err := tx.Create(farm).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("User already has a farm")
			}
			return dbError(err, "Farm")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("farm created", zap.String("farm_id", farm.ID), zap.String("user_id", ownerID))
	return farm, nil
}

// Update changes a farm's details
func (s *FarmService) Update(ctx context.Context, actor Actor, id string, in FarmInput) (*models.Farm, error) {
	farm, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(farm.UserID) {
		return nil, apperr.Authorization("Access denied to this farm")
	}
	if in.FarmName != nil {
		name := strings.TrimSpace(*in.FarmName)
		if name == "" {
			return nil, apperr.Validation("farm_name cannot be empty")
		}
		farm.FarmName = name
	}
	if err := applyFarmInput(farm, in); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(farm).Error; err != nil {
		return nil, dbError(err, "Farm")
	}
	return farm, nil
}

// Delete removes a farm that has no devices
func (s *FarmService) Delete(ctx context.Context, actor Actor, id string) error {
	farm, err := s.load(ctx, id, false)
	if err != nil {
		return err
	}
	if !actor.CanWrite(farm.UserID) {
		return apperr.Authorization("Access denied to this farm")
	}
	var devices int64
	if err := s.db.WithContext(ctx).Model(&models.Device{}).Where("farm_id = ?", id).Count(&devices).Error; err != nil {
		return apperr.Internal(err, "count devices")
	}
	if devices > 0 {
		return apperr.Validation("Cannot delete farm with %d device(s). Remove devices first", devices)
	}
	if err := s.db.WithContext(ctx).Delete(farm).Error; err != nil {
		return apperr.Internal(err, "delete farm")
	}
	s.log.Info("farm deleted", zap.String("farm_id", id))
	return nil
}

// Devices lists a farm's devices
func (s *FarmService) Devices(ctx context.Context, actor Actor, id string) ([]models.Device, error) {
	farm, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(farm.UserID) {
		return nil, apperr.Authorization("Access denied to this farm")
	}
	var devices []models.Device
	err = s.db.WithContext(ctx).Preload("Configuration").
		Where("farm_id = ?", id).Order("created_at DESC").Find(&devices).Error
	if err != nil {
		return nil, apperr.Internal(err, "list devices")
	}
	return devices, nil
}

// Statistics summarises a farm's devices, alerts and recent readings
func (s *FarmService) Statistics(ctx context.Context, actor Actor, id string) (*FarmStatistics, error) {
	farm, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(farm.UserID) {
		return nil, apperr.Authorization("Access denied to this farm")
	}
	db := s.db.WithContext(ctx)

	stats := &FarmStatistics{FarmID: id, DevicesByStatus: map[models.DeviceStatus]int64{}}
	var devices []models.Device
	if err := db.Select("device_id", "status").Where("farm_id = ?", id).Find(&devices).Error; err != nil {
		return nil, apperr.Internal(err, "list devices")
	}
	stats.TotalDevices = int64(len(devices))
	if len(devices) == 0 {
		return stats, nil
	}
	externalIDs := make([]string, len(devices))
	for i, d := range devices {
		stats.DevicesByStatus[d.Status]++
		externalIDs[i] = d.DeviceID
	}

	if err := db.Model(&models.Alert{}).
		Where("device_id IN ? AND status IN ?", externalIDs, models.OpenAlertStatuses).
		Count(&stats.ActiveAlerts).Error; err != nil {
		return nil, apperr.Internal(err, "count alerts")
	}
	since := time.Now().UTC().Add(-24 * time.Hour)
	if err := db.Model(&models.SensorReading{}).
		Where("device_id IN ? AND created_at >= ?", externalIDs, since).
		Count(&stats.ReadingsLast24h).Error; err != nil {
		return nil, apperr.Internal(err, "count readings")
	}
	var latest models.SensorReading
	err = db.Where("device_id IN ?", externalIDs).Order("created_at DESC").Limit(1).Find(&latest).Error
	if err != nil {
		return nil, apperr.Internal(err, "latest reading")
	}
	if latest.ID != "" {
		stats.LastReadingAt = &latest.CreatedAt
	}
	return stats, nil
}

func (s *FarmService) load(ctx context.Context, id string, withDevices bool) (*models.Farm, error) {
	if !isUUID(id) {
		return nil, apperr.NotFound("Farm not found")
	}
	q := s.db.WithContext(ctx)
	if withDevices {
		q = q.Preload("Devices", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") })
	}
	var farm models.Farm
	if err := q.First(&farm, "id = ?", id).Error; err != nil {
		return nil, dbError(err, "Farm")
	}
	return &farm, nil
}

func applyFarmInput(farm *models.Farm, in FarmInput) error {
	if in.Location != nil {
		farm.Location = strings.TrimSpace(*in.Location)
	}
	if in.Status != nil {
		switch *in.Status {
		case models.FarmStatusActive, models.FarmStatusInactive, models.FarmStatusMaintenance:
			farm.Status = *in.Status
		default:
			return apperr.Validation("Invalid farm status %q", *in.Status)
		}
	}
	if in.Description != nil {
		farm.Description = *in.Description
	}
	if in.Area != nil {
		if *in.Area < 0 {
			return apperr.Validation("area cannot be negative")
		}
		farm.Area = *in.Area
	}
	if in.TankCount != nil {
		if *in.TankCount < 0 {
			return apperr.Validation("tank_count cannot be negative")
		}
		farm.TankCount = *in.TankCount
	}
	return nil
}
