package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// Dashboard is the landing summary for one user
type Dashboard struct {
	TotalDevices   int64                  `json:"total_devices"`
	ActiveDevices  int64                  `json:"active_devices"`
	ActiveAlerts   int64                  `json:"active_alerts"`
	CriticalAlerts int64                  `json:"critical_alerts"`
	LatestReadings []models.SensorReading `json:"latest_readings"`
	RecentAlerts   []models.Alert         `json:"recent_alerts"`
}

// RecentReading is a reading joined with its device and farm names
type RecentReading struct {
	Reading    models.SensorReading `gorm:"embedded" json:"reading"`
	DeviceName string               `json:"device_name"`
	FarmName   string               `json:"farm_name"`
}

// DeviceActivity is one device's recency for the admin view
type DeviceActivity struct {
	DeviceID     string              `json:"device_id"`
	DeviceName   string              `json:"device_name"`
	FarmName     string              `json:"farm_name"`
	Status       models.DeviceStatus `json:"status"`
	LastActivity *time.Time          `json:"last_activity"`
	Online       bool                `json:"online"`
}

// AdminStats is the system-wide summary
type AdminStats struct {
	TotalUsers     int64                 `json:"total_users"`
	UsersByRole    map[models.Role]int64 `json:"users_by_role"`
	TotalFarms     int64                 `json:"total_farms"`
	TotalDevices   int64                 `json:"total_devices"`
	ActiveDevices  int64                 `json:"active_devices"`
	ActiveAlerts   int64                 `json:"active_alerts"`
	ReadingsToday  int64                 `json:"readings_today"`
	RecentReadings []RecentReading       `json:"recent_readings"`
	DeviceActivity []DeviceActivity      `json:"device_activity"`
}

// OnlineWindow is how recently a device must have reported to count as online
const OnlineWindow = 15 * time.Minute

// AnalyticsService builds dashboard summaries
type AnalyticsService struct {
	db       *gorm.DB
	readings *ReadingService
	log      *zap.Logger
	now      func() time.Time
}

// NewAnalyticsService creates an AnalyticsService
func NewAnalyticsService(db *gorm.DB, readings *ReadingService, log *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		db:       db,
		readings: readings,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard summarises the devices and alerts visible to actor
func (s *AnalyticsService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	devices := db.Model(&models.Device{})
	alerts := db.Model(&models.Alert{}).Where("status IN ?", models.OpenAlertStatuses)
	if !actor.SeesAll() {
		devices = devices.Where("user_id = ?", actor.UserID)
		alerts = alerts.Where("user_id = ?", actor.UserID)
	}

	d := &Dashboard{}
	if err := devices.Session(&gorm.Session{}).Count(&d.TotalDevices).Error; err != nil {
		return nil, apperr.Internal(err, "count devices")
	}
	if err := devices.Session(&gorm.Session{}).Where("status = ?", models.DeviceStatusActive).Count(&d.ActiveDevices).Error; err != nil {
		return nil, apperr.Internal(err, "count active devices")
	}
	if err := alerts.Session(&gorm.Session{}).Count(&d.ActiveAlerts).Error; err != nil {
		return nil, apperr.Internal(err, "count alerts")
	}
	if err := alerts.Session(&gorm.Session{}).Where("severity = ?", models.SeverityCritical).Count(&d.CriticalAlerts).Error; err != nil {
		return nil, apperr.Internal(err, "count critical alerts")
	}
	if err := alerts.Session(&gorm.Session{}).Order("created_at DESC").Limit(5).Find(&d.RecentAlerts).Error; err != nil {
		return nil, apperr.Internal(err, "recent alerts")
	}

	latest, err := s.readings.Latest(ctx, actor)
	if err != nil {
		return nil, err
	}
	d.LatestReadings = latest
	return d, nil
}

// AdminStats summarises the whole installation
func (s *AnalyticsService) AdminStats(ctx context.Context) (*AdminStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminStats{UsersByRole: map[models.Role]int64{}}

	type roleCount struct {
		Role  models.Role
		Count int64
	}
	var roles []roleCount
	if err := db.Model(&models.User{}).Select("role, COUNT(*) AS count").Group("role").Scan(&roles).Error; err != nil {
		return nil, apperr.Internal(err, "count users")
	}
	for _, r := range roles {
		stats.UsersByRole[r.Role] = r.Count
		stats.TotalUsers += r.Count
	}

	counts := []struct {
		q    *gorm.DB
		dest *int64
		what string
	}{
		{db.Model(&models.Farm{}), &stats.TotalFarms, "count farms"},
		{db.Model(&models.Device{}), &stats.TotalDevices, "count devices"},
		{db.Model(&models.Device{}).Where("status = ?", models.DeviceStatusActive), &stats.ActiveDevices, "count active devices"},
		{db.Model(&models.Alert{}).Where("status IN ?", models.OpenAlertStatuses), &stats.ActiveAlerts, "count alerts"},
		{db.Model(&models.SensorReading{}).Where("created_at >= ?", s.now().Truncate(24*time.Hour)), &stats.ReadingsToday, "count readings"},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dest).Error; err != nil {
			return nil, apperr.Internal(err, c.what)
		}
	}

	err := db.Table("sensor_readings AS r").
		Select("r.*, d.device_name, f.farm_name").
		Joins("LEFT JOIN devices d ON d.device_id = r.device_id").
		Joins("LEFT JOIN farms f ON f.id = d.farm_id").
		Order("r.created_at DESC").
		Limit(10).
		Scan(&stats.RecentReadings).Error
	if err != nil {
		return nil, apperr.Internal(err, "recent readings")
	}

	err = db.Table("devices AS d").
		Select("d.device_id, d.device_name, f.farm_name, d.status, d.last_activity").
		Joins("LEFT JOIN farms f ON f.id = d.farm_id").
		Order("d.last_activity DESC NULLS LAST").
		Scan(&stats.DeviceActivity).Error
	if err != nil {
		return nil, apperr.Internal(err, "device activity")
	}
	cutoff := s.now().Add(-OnlineWindow)
	for i := range stats.DeviceActivity {
		a := &stats.DeviceActivity[i]
		a.Online = a.LastActivity != nil && a.LastActivity.After(cutoff)
	}
	return stats, nil
}
