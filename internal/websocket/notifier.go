package websocket

import "github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"

// Notifier turns domain events into hub messages
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a Notifier publishing through hub
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// ReadingStored goes to device and farm subscribers
func (n *Notifier) ReadingStored(device *models.Device, reading *models.SensorReading) {
	n.hub.Publish(Target{DeviceID: device.DeviceID, FarmID: device.FarmID}, TypeSensorReading, reading)
}

// AlertRaised goes to device and farm subscribers and to the owner's session
func (n *Notifier) AlertRaised(device *models.Device, alert *models.Alert) {
	n.hub.Publish(Target{DeviceID: device.DeviceID, FarmID: device.FarmID, UserID: device.UserID}, TypeAlert, alert)
}

// DeviceStatusChanged goes to device and farm subscribers and to the owner's session
func (n *Notifier) DeviceStatusChanged(device *models.Device) {
	n.hub.Publish(Target{DeviceID: device.DeviceID, FarmID: device.FarmID, UserID: device.UserID}, TypeDeviceStatus, map[string]interface{}{
		"device_id":     device.DeviceID,
		"status":        device.Status,
		"last_activity": device.LastActivity,
	})
}
