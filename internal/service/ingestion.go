package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/ingest"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// ReadingStore is the persistence the ingestion path needs
type ReadingStore interface {
	FindDeviceByExternalID(ctx context.Context, deviceID string) (*models.Device, error)
	CreateReading(ctx context.Context, reading *models.SensorReading) error
	TouchDevice(ctx context.Context, deviceRef string, at time.Time) error
	AppendLog(ctx context.Context, entry *models.SystemLog) error
}

// AlertEvaluator checks a stored reading against its device's thresholds
type AlertEvaluator interface {
	Evaluate(ctx context.Context, device *models.Device, reading *models.SensorReading) ([]*models.Alert, error)
}

// IngestionResult is what one accepted reading produced
type IngestionResult struct {
	Reading *models.SensorReading `json:"reading"`
	Alerts  []*models.Alert       `json:"alerts"`
}

// IngestionService accepts readings from HTTP and MQTT alike
type IngestionService struct {
	store     ReadingStore
	evaluator AlertEvaluator
	notifier  Notifier
	now       func() time.Time
	log       *zap.Logger
}

// NewIngestionService creates an IngestionService
func NewIngestionService(store ReadingStore, evaluator AlertEvaluator, notifier Notifier, log *zap.Logger) *IngestionService {
	return &IngestionService{
		store:     store,
		evaluator: evaluator,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// Ingest validates, stores and evaluates one reading for deviceID.
// Nothing is persisted when validation fails.
func (s *IngestionService) Ingest(ctx context.Context, deviceID string, raw map[string]interface{}, source string) (*IngestionResult, error) {
	deviceID = strings.ToUpper(strings.TrimSpace(deviceID))
	if deviceID == "" {
		return nil, apperr.Validation("device_id is required")
	}

	device, err := s.store.FindDeviceByExternalID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	values, err := ingest.Normalize(raw)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reading := &models.SensorReading{
		DataID:            uuid.NewString(),
		DeviceID:          device.DeviceID,
		PHValue:           values.PH,
		ECValue:           values.EC,
		TDSValue:          values.TDS,
		WaterTemperatureC: values.WaterTemp,
		AirTemperatureC:   values.AirTemp,
		AirHumidity:       values.Humidity,
		LightIntensity:    values.Light,
		QualityFlag:       ingest.Quality(values, device.Configuration),
		Source:            source,
		CreatedAt:         now,
	}
	if err := s.store.CreateReading(ctx, reading); err != nil {
		return nil, err
	}

	if err := s.store.TouchDevice(ctx, device.ID, now); err != nil {
		return nil, err
	}
	device.LastActivity = &now

	logType := models.LogInfo
	if reading.QualityFlag != models.QualityValid {
		logType = models.LogWarning
	}
	entry := models.NewSystemLog(device.ID, logType, models.EventSensorReading,
		fmt.Sprintf("Reading %s received via %s (%s)", reading.DataID, source, reading.QualityFlag),
		map[string]interface{}{"data_id": reading.DataID, "quality_flag": reading.QualityFlag, "source": source})
	if device.Configuration != nil {
		entry.ConfigID = &device.Configuration.ID
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}

	alerts, err := s.evaluator.Evaluate(ctx, device, reading)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ReadingStored(device, reading)
	}

	s.log.Debug("reading ingested",
		zap.String("device_id", device.DeviceID),
		zap.String("data_id", reading.DataID),
		zap.String("quality", string(reading.QualityFlag)),
		zap.Int("alerts", len(alerts)))

	return &IngestionResult{Reading: reading, Alerts: alerts}, nil
}
