// Package simulator emulates GreenPulse sensor nodes for local testing.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sample is one simulated set of measurements
type Sample struct {
	PH        float64
	EC        float64
	WaterTemp float64
	AirTemp   float64
	Humidity  float64
	Light     float64
}

// Generator produces drifting readings around healthy set points.
// With AnomalyRate > 0 some samples push pH out of range to exercise alerting.
type Generator struct {
	AnomalyRate float64

	mu   sync.Mutex
	rng  *rand.Rand
	last Sample
}

// NewGenerator creates a Generator seeded with seed
func NewGenerator(seed int64, anomalyRate float64) *Generator {
	return &Generator{
		AnomalyRate: anomalyRate,
		rng:         rand.New(rand.NewSource(seed)),
		last:        Sample{PH: 6.8, EC: 1.6, WaterTemp: 24, AirTemp: 27, Humidity: 65, Light: 4800},
	}
}

// Next returns the next sample
func (g *Generator) Next() Sample {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Sample{
		PH:        g.walk(g.last.PH, 0.05, 6.2, 7.3),
		EC:        g.walk(g.last.EC, 0.04, 1.1, 2.3),
		WaterTemp: g.walk(g.last.WaterTemp, 0.2, 21, 27),
		AirTemp:   g.walk(g.last.AirTemp, 0.3, 20, 33),
		Humidity:  g.walk(g.last.Humidity, 1, 45, 85),
		Light:     g.walk(g.last.Light, 80, 3700, 5800),
	}
	g.last = s

	if g.AnomalyRate > 0 && g.rng.Float64() < g.AnomalyRate {
		s.PH = round(5.0+g.rng.Float64()*0.5, 2)
	}
	return s
}

func (g *Generator) walk(v, step, min, max float64) float64 {
	v += (g.rng.Float64()*2 - 1) * step
	v = math.Max(min, math.Min(max, v))
	return round(v, 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// HTTPPayload is the body a device posts to the ingestion endpoint
func (s Sample) HTTPPayload(deviceID string) map[string]interface{} {
	return map[string]interface{}{
		"device_id":           deviceID,
		"ph_value":            s.PH,
		"ec_value":            s.EC,
		"water_temperature_c": s.WaterTemp,
		"air_temperature_c":   s.AirTemp,
		"air_humidity":        s.Humidity,
		"light_intensity":     s.Light,
	}
}

// MQTTPayload is the message body published by firmware, using its short field names
func (s Sample) MQTTPayload(deviceID, msgID string) map[string]interface{} {
	return map[string]interface{}{
		"msg_id":     msgID,
		"device_id":  deviceID,
		"ph":         map[string]interface{}{"value": s.PH, "status": "ok"},
		"ec":         s.EC,
		"water_temp": s.WaterTemp,
		"air_temp":   s.AirTemp,
		"humidity":   s.Humidity,
		"light":      s.Light,
	}
}

// Sink delivers a sample on behalf of a device
type Sink interface {
	Send(ctx context.Context, deviceID string, s Sample) error
}

// apiResponse is the envelope returned by the backend
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HTTPSink posts samples to the REST ingestion endpoint
type HTTPSink struct {
	client *resty.Client
}

// NewHTTPSink creates an HTTPSink targeting baseURL
func NewHTTPSink(baseURL string) *HTTPSink {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPSink{client: client}
}

// Send posts one sample
func (h *HTTPSink) Send(ctx context.Context, deviceID string, s Sample) error {
	var result apiResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(s.HTTPPayload(deviceID)).
		SetResult(&result).
		SetError(&result).
		Post("/api/sensor-data")
	if err != nil {
		return fmt.Errorf("post reading: %w", err)
	}
	if resp.IsError() || !result.Success {
		return fmt.Errorf("post reading: %s: %s", resp.Status(), result.Message)
	}
	return nil
}

// Publisher is the part of an MQTT client the simulator needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink publishes samples the way firmware does
type MQTTSink struct {
	pub Publisher
	// TopicFormat has one %s for the device id
	TopicFormat string
}

// NewMQTTSink creates an MQTTSink publishing to devices/<id>/sensor
func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub, TopicFormat: "devices/%s/sensor"}
}

// Send publishes one sample with a fresh msg_id at QoS 1
func (m *MQTTSink) Send(_ context.Context, deviceID string, s Sample) error {
	body, err := json.Marshal(s.MQTTPayload(deviceID, uuid.NewString()))
	if err != nil {
		return err
	}
	return m.pub.Publish(fmt.Sprintf(m.TopicFormat, deviceID), 1, false, body)
}

// Simulator drives a set of devices on a fixed interval
type Simulator struct {
	sink      Sink
	gens      map[string]*Generator
	deviceIDs []string
	log       *zap.Logger
}

// New creates a Simulator with one generator per device
func New(sink Sink, deviceIDs []string, anomalyRate float64, log *zap.Logger) *Simulator {
	gens := make(map[string]*Generator, len(deviceIDs))
	seed := time.Now().UnixNano()
	for i, id := range deviceIDs {
		gens[id] = NewGenerator(seed+int64(i), anomalyRate)
	}
	return &Simulator{sink: sink, gens: gens, deviceIDs: deviceIDs, log: log}
}

// Tick sends one sample per device and returns how many were accepted
func (s *Simulator) Tick(ctx context.Context) int {
	sent := 0
	for _, id := range s.deviceIDs {
		sample := s.gens[id].Next()
		if err := s.sink.Send(ctx, id, sample); err != nil {
			s.log.Warn("send failed", zap.String("device_id", id), zap.Error(err))
			continue
		}
		sent++
		s.log.Debug("reading sent", zap.String("device_id", id), zap.Float64("ph", sample.PH))
	}
	return sent
}

// Run ticks every interval until ctx ends or rounds ticks have run. rounds <= 0 runs forever.
func (s *Simulator) Run(ctx context.Context, interval time.Duration, rounds int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; rounds <= 0 || n < rounds; n++ {
		sent := s.Tick(ctx)
		s.log.Info("simulation round", zap.Int("round", n+1), zap.Int("sent", sent), zap.Int("devices", len(s.deviceIDs)))
		if rounds > 0 && n+1 == rounds {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
