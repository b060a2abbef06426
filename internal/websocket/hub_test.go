package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

type received struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(func(token string) (string, error) {
		if token == "good-token" {
			return "user-1", nil
		}
		return "", errors.New("invalid token")
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := Upgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWs(upgrader, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSubscribeScopesToDevice(t *testing.T) {
	hub, url := startHub(t)

	a := dial(t, url)
	send(t, a, map[string]string{"type": "subscribe", "deviceId": "X"})
	ack := read(t, a)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "X", ack.Data["deviceId"])

	b := dial(t, url)
	send(t, b, map[string]interface{}{"type": "subscribe", "data": map[string]string{"deviceId": "Y"}})
	assert.Equal(t, TypeAck, read(t, b).Type)

	hub.BroadcastToDevice("X", TypeSensorReading, map[string]string{"seq": "x1"})
	hub.BroadcastToDevice("Y", TypeSensorReading, map[string]string{"seq": "y1"})
	hub.BroadcastToDevice("X", TypeAlert, map[string]string{"seq": "x2"})

	first := read(t, a)
	assert.Equal(t, TypeSensorReading, first.Type)
	assert.Equal(t, "x1", first.Data["seq"])
	second := read(t, a)
	assert.Equal(t, TypeAlert, second.Type)
	assert.Equal(t, "x2", second.Data["seq"])

	onlyB := read(t, b)
	assert.Equal(t, "y1", onlyB.Data["seq"])
}

func TestSubscribeIgnoresDeviceIDCase(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url)

	send(t, c, map[string]string{"type": "subscribe", "deviceId": "greenpulse-001"})
	ack := read(t, c)
	assert.Equal(t, "GREENPULSE-001", ack.Data["deviceId"])

	hub.BroadcastToDevice("GREENPULSE-001", TypeSensorReading, map[string]string{"seq": "s1"})
	assert.Equal(t, "s1", read(t, c).Data["seq"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url)

	send(t, c, map[string]string{"type": "subscribe", "deviceId": "X"})
	read(t, c)
	send(t, c, map[string]string{"type": "unsubscribe", "deviceId": "X"})
	read(t, c)
	send(t, c, map[string]string{"type": "subscribeFarm", "farmId": "F"})
	read(t, c)

	hub.BroadcastToDevice("X", TypeSensorReading, map[string]string{"seq": "dropped"})
	hub.Publish(Target{DeviceID: "Z", FarmID: "F"}, TypeSensorReading, map[string]string{"seq": "farm"})

	msg := read(t, c)
	assert.Equal(t, "farm", msg.Data["seq"])
}

func TestAuthEnablesUserBroadcast(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url)

	send(t, c, map[string]interface{}{"type": "auth", "data": map[string]string{"token": "bad"}})
	assert.Equal(t, TypeError, read(t, c).Type)

	send(t, c, map[string]interface{}{"type": "auth", "data": map[string]string{"token": "good-token"}})
	ack := read(t, c)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "user-1", ack.Data["userId"])

	hub.BroadcastToUser("user-2", TypeAlert, map[string]string{"seq": "other"})
	hub.BroadcastToUser("user-1", TypeAlert, map[string]string{"seq": "mine"})
	assert.Equal(t, "mine", read(t, c).Data["seq"])
}

func TestMatchingClientReceivesOnce(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url)

	send(t, c, map[string]string{"type": "subscribe", "deviceId": "X"})
	read(t, c)
	send(t, c, map[string]string{"type": "auth", "token": "good-token"})
	read(t, c)

	assert.Equal(t, 1, hub.Deliver(Target{DeviceID: "X", UserID: "user-1"}, []byte(`{"type":"alert","data":{"seq":"1"}}`)))
}

func TestPingPong(t *testing.T) {
	_, url := startHub(t)
	c := dial(t, url)

	send(t, c, map[string]string{"type": "ping"})
	assert.Equal(t, TypePong, read(t, c).Type)

	send(t, c, map[string]string{"type": "teleport"})
	assert.Equal(t, TypeError, read(t, c).Type)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url)
	send(t, c, map[string]string{"type": "ping"})
	read(t, c)
	assert.Equal(t, 1, hub.ClientCount())

	c.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type recordingRelay struct {
	mu      sync.Mutex
	targets []Target
}

func (r *recordingRelay) Publish(_ context.Context, target Target, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return nil
}

func TestNotifierTargets(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	relay := &recordingRelay{}
	hub.SetRelay(relay)
	n := NewNotifier(hub)

	device := &models.Device{DeviceID: "D1", FarmID: "F1", UserID: "U1", Status: models.DeviceStatusMaintenance}
	n.ReadingStored(device, &models.SensorReading{DeviceID: "D1"})
	n.AlertRaised(device, &models.Alert{DeviceID: "D1"})
	n.DeviceStatusChanged(device)

	require.Len(t, relay.targets, 3)
	assert.Equal(t, Target{DeviceID: "D1", FarmID: "F1"}, relay.targets[0])
	assert.Equal(t, Target{DeviceID: "D1", FarmID: "F1", UserID: "U1"}, relay.targets[1])
	assert.Equal(t, Target{DeviceID: "D1", FarmID: "F1", UserID: "U1"}, relay.targets[2])
}

func TestEnvelopeShape(t *testing.T) {
	raw, err := json.Marshal(Envelope{Type: TypeSensorReading, Data: map[string]int{"v": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sensorReading","data":{"v":1}}`, string(raw))
}

func TestUpgraderOrigins(t *testing.T) {
	u := Upgrader([]string{"http://dash.example"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://dash.example")
	assert.True(t, u.CheckOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, u.CheckOrigin(r))
}
