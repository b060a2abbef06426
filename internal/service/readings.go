package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/analytics"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// MaxExportRows caps a single export
const MaxExportRows = 50000

// HistoryQuery selects a device's readings
type HistoryQuery struct {
	Range     string
	StartDate string
	EndDate   string
	Limit     int
}

// AggregateResult is a bucketed view over a window of readings
type AggregateResult struct {
	DeviceID    string                `json:"device_id"`
	Aggregation analytics.Granularity `json:"aggregation"`
	From        time.Time             `json:"from"`
	To          time.Time             `json:"to"`
	Buckets     []analytics.Bucket    `json:"buckets"`
}

// ReadingService answers queries over stored readings
type ReadingService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// NewReadingService creates a ReadingService
func NewReadingService(db *gorm.DB, log *zap.Logger) *ReadingService {
	return &ReadingService{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Latest returns the newest reading of every device visible to actor
func (s *ReadingService) Latest(ctx context.Context, actor Actor) ([]models.SensorReading, error) {
	q := s.db.WithContext(ctx).Model(&models.SensorReading{}).
		Select("DISTINCT ON (device_id) *").
		Order("device_id, created_at DESC")
	if !actor.SeesAll() {
		q = q.Where("device_id IN (?)",
			s.db.Model(&models.Device{}).Select("device_id").Where("user_id = ?", actor.UserID))
	}
	var readings []models.SensorReading
	if err := q.Find(&readings).Error; err != nil {
		return nil, apperr.Internal(err, "latest readings")
	}
	return readings, nil
}

// DeviceLatest returns a device's newest reading
func (s *ReadingService) DeviceLatest(ctx context.Context, actor Actor, deviceID string) (*models.SensorReading, error) {
	device, err := s.device(ctx, actor, deviceID)
	if err != nil {
		return nil, err
	}
	var reading models.SensorReading
	err = s.db.WithContext(ctx).Where("device_id = ?", device.DeviceID).Order("created_at DESC").First(&reading).Error
	if err != nil {
		return nil, dbError(err, "Sensor data")
	}
	return &reading, nil
}

// History returns a device's readings in a window, newest first
func (s *ReadingService) History(ctx context.Context, actor Actor, deviceID string, q HistoryQuery) ([]models.SensorReading, error) {
	device, err := s.device(ctx, actor, deviceID)
	if err != nil {
		return nil, err
	}
	w, err := analytics.ParseWindow(q.Range, q.StartDate, q.EndDate, 24*time.Hour, s.now())
	if err != nil {
		return nil, err
	}
	return s.window(ctx, device.DeviceID, w, "created_at DESC", clampLimit(q.Limit, 100, 1000))
}

// Export returns a device's readings in a window, oldest first
func (s *ReadingService) Export(ctx context.Context, actor Actor, deviceID string, q HistoryQuery) (*models.Device, []models.SensorReading, error) {
	device, err := s.device(ctx, actor, deviceID)
	if err != nil {
		return nil, nil, err
	}
	w, err := analytics.ParseWindow(q.Range, q.StartDate, q.EndDate, 7*24*time.Hour, s.now())
	if err != nil {
		return nil, nil, err
	}
	readings, err := s.window(ctx, device.DeviceID, w, "created_at ASC", clampLimit(q.Limit, MaxExportRows, MaxExportRows))
	if err != nil {
		return nil, nil, err
	}
	return device, readings, nil
}

// Aggregate buckets a device's readings hourly or daily
func (s *ReadingService) Aggregate(ctx context.Context, actor Actor, deviceID, aggregation string, q HistoryQuery) (*AggregateResult, error) {
	g, err := analytics.ParseGranularity(aggregation)
	if err != nil {
		return nil, err
	}
	device, err := s.device(ctx, actor, deviceID)
	if err != nil {
		return nil, err
	}
	def := 24 * time.Hour
	if g == analytics.Daily {
		def = 7 * 24 * time.Hour
	}
	w, err := analytics.ParseWindow(q.Range, q.StartDate, q.EndDate, def, s.now())
	if err != nil {
		return nil, err
	}

	// Bucketing runs in the database, so no row limit applies.
	rows, err := s.db.WithContext(ctx).
		Model(&models.SensorReading{}).
		Select(analytics.SelectList(g)).
		Where("device_id = ? AND created_at >= ? AND created_at <= ?", device.DeviceID, w.From, w.To).
		Group("bucket").
		Order("bucket").
		Rows()
	if err != nil {
		return nil, apperr.Internal(err, "aggregate readings")
	}
	defer rows.Close()

	buckets := []analytics.Bucket{}
	for rows.Next() {
		b, err := analytics.ScanBucket(rows)
		if err != nil {
			return nil, apperr.Internal(err, "scan aggregate")
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "aggregate readings")
	}

	return &AggregateResult{
		DeviceID:    device.DeviceID,
		Aggregation: g,
		From:        w.From,
		To:          w.To,
		Buckets:     buckets,
	}, nil
}

func (s *ReadingService) window(ctx context.Context, deviceID string, w analytics.Window, order string, limit int) ([]models.SensorReading, error) {
	var readings []models.SensorReading
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND created_at >= ? AND created_at <= ?", deviceID, w.From, w.To).
		Order(order).
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, apperr.Internal(err, "query readings")
	}
	return readings, nil
}

// device resolves an external or internal id and checks read access
func (s *ReadingService) device(ctx context.Context, actor Actor, deviceID string) (*models.Device, error) {
	device, err := findDevice(s.db.WithContext(ctx), deviceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanRead(device.UserID) {
		return nil, apperr.Authorization("Access denied to this device")
	}
	return device, nil
}
