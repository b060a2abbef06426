// Package service implements the farm, device, reading and alert operations behind the API.
package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID string
	Role   models.Role
}

// ActorFor builds the actor for a loaded user
func ActorFor(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

// IsAdmin reports whether the actor has full access
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// SeesAll reports whether the actor reads every farm's data. Viewers monitor everything read-only.
func (a Actor) SeesAll() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleViewer
}

// CanRead reports whether the actor may read a resource owned by ownerID
func (a Actor) CanRead(ownerID string) bool {
	return a.SeesAll() || a.UserID == ownerID
}

// CanWrite reports whether the actor may modify a resource owned by ownerID
func (a Actor) CanWrite(ownerID string) bool {
	if a.Role == models.RoleViewer {
		return false
	}
	return a.IsAdmin() || a.UserID == ownerID
}

// Notifier receives domain events for realtime delivery
type Notifier interface {
	ReadingStored(device *models.Device, reading *models.SensorReading)
	AlertRaised(device *models.Device, alert *models.Alert)
	DeviceStatusChanged(device *models.Device)
}

// Pagination describes a page of a listing
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

func newPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// dbError maps GORM errors onto API errors
func dbError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s already exists", what)
	default:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Internal(err, strings.ToLower(what))
	}
}

// findDevice loads a device by internal uuid or external device_id
func findDevice(db *gorm.DB, id string) (*models.Device, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.NotFound("Device not found")
	}
	var device models.Device
	var err error
	if isUUID(id) {
		err = db.First(&device, "id = ?", id).Error
	} else {
		err = db.First(&device, "device_id = ?", strings.ToUpper(id)).Error
	}
	if err != nil {
		return nil, dbError(err, "Device")
	}
	return &device, nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t") && strings.Contains(email[at:], ".")
}
