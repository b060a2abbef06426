package simulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGeneratorStaysInHealthyRange(t *testing.T) {
	g := NewGenerator(42, 0)
	for i := 0; i < 500; i++ {
		s := g.Next()
		assert.GreaterOrEqual(t, s.PH, 6.2)
		assert.LessOrEqual(t, s.PH, 7.3)
		assert.GreaterOrEqual(t, s.Light, 3700.0)
		assert.LessOrEqual(t, s.Light, 5800.0)
	}
}

func TestGeneratorAnomalies(t *testing.T) {
	g := NewGenerator(7, 1)
	s := g.Next()
	assert.Less(t, s.PH, 6.0)
}

func TestHTTPSinkPostsPayload(t *testing.T) {
	var mu sync.Mutex
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sensor-data", r.URL.Path)
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"message":"Sensor data saved successfully"}`))
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL + "/")
	s := Sample{PH: 6.8, EC: 1.6, WaterTemp: 24, AirTemp: 27, Humidity: 60, Light: 5000}
	require.NoError(t, sink.Send(context.Background(), "GREENPULSE-V1-00001", s))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "GREENPULSE-V1-00001", got["device_id"])
	assert.Equal(t, 6.8, got["ph_value"])
	assert.Equal(t, 5000.0, got["light_intensity"])
}

func TestHTTPSinkReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"Device not found"}`))
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL).Send(context.Background(), "NOPE", Sample{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Device not found")
}

type recordingPublisher struct {
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestMQTTSinkUsesFirmwareFormat(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, NewMQTTSink(pub).Send(context.Background(), "GREENPULSE-V1-00002", Sample{PH: 6.5, Light: 4000}))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, "devices/GREENPULSE-V1-00002/sensor", pub.topics[0])
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.payloads[0], &body))
	assert.NotEmpty(t, body["msg_id"])
	assert.Equal(t, map[string]interface{}{"value": 6.5, "status": "ok"}, body["ph"])
	assert.Equal(t, 4000.0, body["light"])
}

type countingSink struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingSink) Send(_ context.Context, deviceID string, _ Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[deviceID]++
	return nil
}

func TestRunStopsAfterRounds(t *testing.T) {
	sink := &countingSink{calls: map[string]int{}}
	sim := New(sink, []string{"A", "B"}, 0, zap.NewNop())

	require.NoError(t, sim.Run(context.Background(), time.Millisecond, 3))
	assert.Equal(t, map[string]int{"A": 3, "B": 3}, sink.calls)
}

func TestRunHonoursCancel(t *testing.T) {
	sink := &countingSink{calls: map[string]int{}}
	sim := New(sink, []string{"A"}, 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sim.Run(ctx, time.Hour, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sink.calls["A"])
}
