// Package seed loads demo users, farms, devices and a week of readings.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/ingest"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/utils"
)

// Demo credentials
const (
	AdminEmail     = "admin@greenpulse.com"
	AdminPassword  = "admin123"
	FarmerPassword = "farmer123"
	ViewerPassword = "viewer123"
)

// Options controls how much data is generated
type Options struct {
	// Reset deletes every existing row first
	Reset bool
	// Days of history per device
	Days int
	// Step between readings
	Step time.Duration
	Now  time.Time
	Seed int64
}

// DefaultOptions is a week of readings every 15 minutes
func DefaultOptions() Options {
	return Options{Days: 7, Step: 15 * time.Minute, Now: time.Now().UTC(), Seed: time.Now().UnixNano()}
}

// Summary counts what was inserted
type Summary struct {
	Users    int
	Farms    int
	Devices  int
	Readings int
	Alerts   int
}

type farmerSpec struct {
	name, email, phone string
	farm, location     string
	devices            []deviceSpec
}

type deviceSpec struct {
	id, name, zone string
}

var farmers = []farmerSpec{
	{
		name: "John Farmer", email: "john@farm.com", phone: "+1234567891",
		farm: "Main Farm", location: "Bangkok, Thailand",
		devices: []deviceSpec{
			{"GREENPULSE-V1-00001", "Main Tank Alpha", "Zone A"},
			{"GREENPULSE-V1-00002", "North Bed Monitor", "Zone B"},
		},
	},
	{
		name: "Mary Farmer", email: "mary@greenfarm.com", phone: "+1234567892",
		farm: "Research Farm", location: "Chiang Mai, Thailand",
		devices: []deviceSpec{
			{"GREENPULSE-V1-00003", "Research Tank", "Zone C"},
		},
	},
}

// Run inserts the demo data set in one transaction
func Run(ctx context.Context, db *gorm.DB, opts Options, log *zap.Logger) (*Summary, error) {
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if opts.Step <= 0 {
		opts.Step = 15 * time.Minute
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	sum := &Summary{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Reset {
			if err := reset(tx); err != nil {
				return err
			}
			log.Info("cleared existing data")
		} else {
			var count int64
			if err := tx.Model(&models.User{}).Where("email = ?", AdminEmail).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("demo data already present (%s exists); rerun with reset", AdminEmail)
			}
		}

		if _, err := createUser(tx, "Admin User", AdminEmail, AdminPassword, "+1234567890", models.RoleAdmin); err != nil {
			return err
		}
		if _, err := createUser(tx, "Farm Observer", "viewer@greenpulse.com", ViewerPassword, "", models.RoleViewer); err != nil {
			return err
		}
		sum.Users += 2

		var devices []*models.Device
		for _, f := range farmers {
			user, err := createUser(tx, f.name, f.email, FarmerPassword, f.phone, models.RoleFarmer)
			if err != nil {
				return err
			}
			sum.Users++

			farm := &models.Farm{
				FarmName:  f.farm,
				UserID:    user.ID,
				Location:  f.location,
				Status:    models.FarmStatusActive,
				TankCount: len(f.devices),
			}
			if err := tx.Create(farm).Error; err != nil {
				return fmt.Errorf("create farm %s: %w", f.farm, err)
			}
			sum.Farms++

			for _, d := range f.devices {
				device, err := createDevice(tx, user, farm, d, opts.Now)
				if err != nil {
					return err
				}
				devices = append(devices, device)
				sum.Devices++
			}
		}

		for _, device := range devices {
			readings := Readings(device, opts.Now, opts.Days, opts.Step, rng)
			if err := tx.CreateInBatches(readings, 500).Error; err != nil {
				return fmt.Errorf("insert readings for %s: %w", device.DeviceID, err)
			}
			sum.Readings += len(readings)
		}

		alerts := sampleAlerts(devices, opts.Now)
		if err := tx.Create(&alerts).Error; err != nil {
			return fmt.Errorf("insert alerts: %w", err)
		}
		sum.Alerts = len(alerts)
		for _, a := range alerts {
			if !a.Status.IsOpen() {
				continue
			}
			if err := tx.Model(&models.Device{}).Where("device_id = ?", a.DeviceID).
				Update("latest_alert_id", a.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("demo data seeded",
		zap.Int("users", sum.Users),
		zap.Int("farms", sum.Farms),
		zap.Int("devices", sum.Devices),
		zap.Int("readings", sum.Readings),
		zap.Int("alerts", sum.Alerts))
	return sum, nil
}

// reset deletes all rows, children first
func reset(tx *gorm.DB) error {
	for _, model := range []interface{}{
		&models.SystemLog{},
		&models.Alert{},
		&models.SensorReading{},
		&models.DeviceConfiguration{},
		&models.Device{},
		&models.Farm{},
		&models.User{},
	} {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

func createUser(tx *gorm.DB, name, email, password, phone string, role models.Role) (*models.User, error) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		UserName: name,
		Email:    email,
		Password: hash,
		Phone:    phone,
		Role:     role,
		IsActive: true,
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	return user, nil
}

func createDevice(tx *gorm.DB, user *models.User, farm *models.Farm, d deviceSpec, now time.Time) (*models.Device, error) {
	device := &models.Device{
		DeviceID:        d.id,
		UserID:          user.ID,
		FarmID:          farm.ID,
		DeviceName:      d.name,
		Location:        farm.FarmName + " - " + d.zone,
		Status:          models.DeviceStatusActive,
		DeviceType:      models.DefaultDeviceType,
		FirmwareVersion: "1.0.0",
		LastActivity:    &now,
	}
	if err := tx.Create(device).Error; err != nil {
		return nil, fmt.Errorf("create device %s: %w", d.id, err)
	}

	cfg := models.NewDefaultConfiguration(device.ID, device.DeviceID)
	if err := tx.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("create configuration for %s: %w", d.id, err)
	}
	device.Configuration = cfg

	entry := models.NewSystemLog(device.ID, models.LogInfo, models.EventDeviceCreated,
		"Device "+device.DeviceID+" registered", map[string]string{"farm_id": farm.ID})
	entry.ConfigID = &cfg.ID
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("log device %s: %w", d.id, err)
	}
	return device, nil
}

// Readings generates days of history for device ending at now, one reading per step, oldest first
func Readings(device *models.Device, now time.Time, days int, step time.Duration, rng *rand.Rand) []models.SensorReading {
	n := int(time.Duration(days) * 24 * time.Hour / step)
	out := make([]models.SensorReading, 0, n)
	between := func(base, spread float64, places int) float64 {
		p := math.Pow(10, float64(places))
		return math.Round((base+(rng.Float64()*2-1)*spread)*p) / p
	}

	for i := n - 1; i >= 0; i-- {
		humidity := between(70, 10, 1)
		v := &ingest.Values{
			PH:        between(6.5, 0.5, 2),
			EC:        between(1.8, 0.3, 2),
			WaterTemp: between(24, 2, 1),
			AirTemp:   between(26, 3, 1),
			Light:     math.Round(between(4500, 500, 0)),
			Humidity:  &humidity,
		}
		v.TDS = ingest.DeriveTDS(v.EC)

		out = append(out, models.SensorReading{
			DeviceID:          device.DeviceID,
			PHValue:           v.PH,
			ECValue:           v.EC,
			TDSValue:          v.TDS,
			WaterTemperatureC: v.WaterTemp,
			AirTemperatureC:   v.AirTemp,
			AirHumidity:       v.Humidity,
			LightIntensity:    v.Light,
			QualityFlag:       ingest.Quality(v, device.Configuration),
			Source:            models.SourceHTTP,
			CreatedAt:         now.Add(-time.Duration(i) * step),
		})
	}
	return out
}

func sampleAlerts(devices []*models.Device, now time.Time) []models.Alert {
	ptr := func(v float64) *float64 { return &v }
	resolvedAt := now.Add(-2 * time.Hour)
	specs := []struct {
		param     models.Parameter
		kind      string
		threshold float64
		actual    float64
		severity  models.AlertSeverity
		status    models.AlertStatus
		age       time.Duration
		message   string
	}{
		{models.ParamPH, "low", 6.0, 5.4, models.SeverityWarning, models.AlertStatusActive, 30 * time.Minute,
			"pH level dropped below minimum threshold (6.0)"},
		{models.ParamWaterTemp, "high", 28, 31, models.SeverityCritical, models.AlertStatusAcknowledged, 2 * time.Hour,
			"Water temperature exceeded configured threshold (28°C)"},
		{models.ParamLight, "low", 3500, 3000, models.SeverityCritical, models.AlertStatusResolved, 24 * time.Hour,
			"Light intensity below acceptable range (3500 lux)"},
	}

	alerts := make([]models.Alert, 0, len(specs))
	for i, s := range specs {
		device := devices[i%len(devices)]
		farmID := device.FarmID
		a := models.Alert{
			DeviceID:       device.DeviceID,
			UserID:         device.UserID,
			FarmID:         &farmID,
			AlertType:      string(s.param) + "_" + s.kind,
			Parameter:      string(s.param),
			ThresholdValue: ptr(s.threshold),
			ActualValue:    ptr(s.actual),
			Severity:       s.severity,
			Title:          s.param.Label() + " " + s.kind,
			Message:        s.message,
			Status:         s.status,
			CreatedAt:      now.Add(-s.age),
		}
		switch s.status {
		case models.AlertStatusAcknowledged:
			ack := now.Add(-time.Hour)
			a.AcknowledgedAt = &ack
		case models.AlertStatusResolved:
			a.ResolvedAt = &resolvedAt
		}
		alerts = append(alerts, a)
	}
	return alerts
}
