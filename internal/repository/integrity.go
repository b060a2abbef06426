package repository

import (
	"context"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// IntegrityReport lists rows that break ownership rules the schema cannot enforce
type IntegrityReport struct {
	Users    int64 `json:"users"`
	Farms    int64 `json:"farms"`
	Devices  int64 `json:"devices"`
	Readings int64 `json:"readings"`
	Alerts   int64 `json:"alerts"`

	// OrphanDevices point at a farm that no longer exists
	OrphanDevices []string `json:"orphan_devices"`
	// OwnerMismatches are devices owned by someone other than their farm's owner
	OwnerMismatches []string `json:"owner_mismatches"`
	// UnconfiguredDevices have no configuration row
	UnconfiguredDevices []string `json:"unconfigured_devices"`
	// DetachedReadings belong to deleted devices. They are kept on purpose.
	DetachedReadings int64 `json:"detached_readings"`
}

// Healthy reports whether nothing needs repair
func (r *IntegrityReport) Healthy() bool {
	return len(r.OrphanDevices) == 0 && len(r.OwnerMismatches) == 0 && len(r.UnconfiguredDevices) == 0
}

const (
	orphanDevicesQuery = `SELECT d.device_id FROM devices d
LEFT JOIN farms f ON f.id = d.farm_id
WHERE f.id IS NULL ORDER BY d.device_id`

	ownerMismatchQuery = `SELECT d.device_id FROM devices d
JOIN farms f ON f.id = d.farm_id
WHERE d.user_id <> f.user_id ORDER BY d.device_id`

	unconfiguredQuery = `SELECT d.device_id FROM devices d
LEFT JOIN device_configurations c ON c.device_ref = d.id
WHERE c.id IS NULL ORDER BY d.device_id`

	detachedReadingsQuery = `SELECT COUNT(*) FROM sensor_readings r
WHERE NOT EXISTS (SELECT 1 FROM devices d WHERE d.device_id = r.device_id)`
)

// Integrity counts every table and lists devices that violate ownership rules
func (s *Store) Integrity(ctx context.Context) (*IntegrityReport, error) {
	db := s.db.WithContext(ctx)
	report := &IntegrityReport{}

	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&models.User{}, &report.Users},
		{&models.Farm{}, &report.Farms},
		{&models.Device{}, &report.Devices},
		{&models.SensorReading{}, &report.Readings},
		{&models.Alert{}, &report.Alerts},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dest).Error; err != nil {
			return nil, apperr.Internal(err, "count rows")
		}
	}

	lists := []struct {
		query string
		dest  *[]string
	}{
		{orphanDevicesQuery, &report.OrphanDevices},
		{ownerMismatchQuery, &report.OwnerMismatches},
		{unconfiguredQuery, &report.UnconfiguredDevices},
	}
	for _, l := range lists {
		if err := db.Raw(l.query).Scan(l.dest).Error; err != nil {
			return nil, apperr.Internal(err, "integrity check")
		}
	}

	if err := db.Raw(detachedReadingsQuery).Scan(&report.DetachedReadings).Error; err != nil {
		return nil, apperr.Internal(err, "count detached readings")
	}
	return report, nil
}
