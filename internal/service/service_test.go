package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/database"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := database.Open(postgres.New(postgres.Config{Conn: sqlDB}), false, zap.NewNop())
	require.NoError(t, err)
	return sqlDB, mock, db.DB
}

const (
	alertID = "3f1f0a62-52b6-4f7d-9a3b-0e4b6b8f2a10"
	ownerID = "0a6b6f2e-1c9a-4c8e-8f6a-6a0e5c7b9d21"
)

func alertRow(status models.AlertStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "device_id", "user_id", "alert_type", "parameter", "severity", "status"}).
		AddRow(alertID, "GREENPULSE-V1-00001", ownerID, "ph_value_low", "ph_value", "warning", string(status))
}

func TestActorAccess(t *testing.T) {
	admin := Actor{UserID: "a", Role: models.RoleAdmin}
	farmer := Actor{UserID: "f", Role: models.RoleFarmer}
	viewer := Actor{UserID: "v", Role: models.RoleViewer}

	assert.True(t, admin.CanRead("x"))
	assert.True(t, admin.CanWrite("x"))

	assert.True(t, farmer.CanRead("f"))
	assert.False(t, farmer.CanRead("x"))
	assert.True(t, farmer.CanWrite("f"))
	assert.False(t, farmer.CanWrite("x"))

	assert.True(t, viewer.CanRead("x"))
	assert.False(t, viewer.CanWrite("x"))
	assert.False(t, viewer.CanWrite("v"), "viewers are read-only even for their own resources")
}

func TestPaginationAndLimits(t *testing.T) {
	assert.Equal(t, Pagination{Page: 2, Limit: 10, Total: 21, Pages: 3}, newPagination(2, 10, 21))
	assert.Equal(t, 0, newPagination(1, 10, 0).Pages)

	assert.Equal(t, 100, clampLimit(0, 100, 1000))
	assert.Equal(t, 1000, clampLimit(5000, 100, 1000))
	assert.Equal(t, 20, clampLimit(20, 100, 1000))
}

func TestDBErrorMapping(t *testing.T) {
	assert.NoError(t, dbError(nil, "Device"))
	assert.ErrorIs(t, dbError(gorm.ErrRecordNotFound, "Device"), apperr.ErrNotFound)
	assert.ErrorIs(t, dbError(gorm.ErrDuplicatedKey, "Device"), apperr.ErrConflict)

	validation := apperr.Validation("bad")
	assert.Same(t, validation, dbError(validation, "Device"))

	err := dbError(errors.New("connection reset"), "Device")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("grower@farm.io"))
	assert.False(t, validEmail("grower"))
	assert.False(t, validEmail("@farm.io"))
	assert.False(t, validEmail("grower@farm"))
	assert.False(t, validEmail("gro wer@farm.io"))
	assert.Equal(t, "grower@farm.io", normalizeEmail("  Grower@Farm.IO "))
}

func TestGenerateDeviceID(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := GenerateDeviceID(now)
	assert.Regexp(t, regexp.MustCompile(`^GREENPULSE-V1-[0-9A-Z]+-[0-9A-F]{6}$`), id)
	assert.NotEqual(t, id, GenerateDeviceID(now))
}

func TestApplyConfigurationInput(t *testing.T) {
	cfg := models.NewDefaultConfiguration("ref", "DEV")
	phMin, interval, enabled := 5.5, 60, false
	updated := applyConfigurationInput(cfg, ConfigurationInput{
		PHMin:            &phMin,
		SamplingInterval: &interval,
		AlertEnabled:     &enabled,
	})
	assert.ElementsMatch(t, []string{"ph_min", "sampling_interval", "alert_enabled"}, updated)
	assert.Equal(t, 5.5, *cfg.PHMin)
	assert.Equal(t, 7.5, *cfg.PHMax)
	assert.Equal(t, 60, cfg.SamplingInterval)
	assert.False(t, cfg.AlertEnabled)

	phMin = 9
	assert.Equal(t, 5.5, *cfg.PHMin, "input value is copied")
}

func TestTransitionAcknowledge(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()

	svc := NewAlertService(db, nil, zap.NewNop())
	fixed := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	mock.ExpectQuery(`SELECT \* FROM "alerts" WHERE id = \$1`).WillReturnRows(alertRow(models.AlertStatusActive))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "alerts" SET .*"status"=.*WHERE .*id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	alert, err := svc.Transition(context.Background(), Actor{UserID: ownerID, Role: models.RoleFarmer}, alertID, models.AlertStatusAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, alert.Status)
	require.NotNil(t, alert.AcknowledgedAt)
	assert.Equal(t, fixed, *alert.AcknowledgedAt)
	assert.Nil(t, alert.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsTerminalState(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()
	svc := NewAlertService(db, nil, zap.NewNop())

	mock.ExpectQuery(`SELECT \* FROM "alerts"`).WillReturnRows(alertRow(models.AlertStatusResolved))

	_, err := svc.Transition(context.Background(), Actor{UserID: ownerID, Role: models.RoleFarmer}, alertID, models.AlertStatusAcknowledged)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLosesRace(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()
	svc := NewAlertService(db, nil, zap.NewNop())

	mock.ExpectQuery(`SELECT \* FROM "alerts"`).WillReturnRows(alertRow(models.AlertStatusActive))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "alerts"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := svc.Transition(context.Background(), Actor{UserID: ownerID, Role: models.RoleAdmin}, alertID, models.AlertStatusResolved)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionForbiddenForOtherFarmer(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()
	svc := NewAlertService(db, nil, zap.NewNop())

	mock.ExpectQuery(`SELECT \* FROM "alerts"`).WillReturnRows(alertRow(models.AlertStatusActive))

	_, err := svc.Transition(context.Background(), Actor{UserID: "someone-else", Role: models.RoleFarmer}, alertID, models.AlertStatusResolved)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionInvalidStatus(t *testing.T) {
	svc := NewAlertService(nil, nil, zap.NewNop())
	_, err := svc.Transition(context.Background(), Actor{Role: models.RoleAdmin}, alertID, "snoozed")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAlertGetUnknownID(t *testing.T) {
	svc := NewAlertService(nil, nil, zap.NewNop())
	_, err := svc.Get(context.Background(), Actor{Role: models.RoleAdmin}, "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserSelfProtection(t *testing.T) {
	svc := NewUserService(nil, zap.NewNop())
	actor := Actor{UserID: ownerID, Role: models.RoleAdmin}

	err := svc.Delete(context.Background(), actor, ownerID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ToggleStatus(context.Background(), actor, ownerID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterRefusesAdminRole(t *testing.T) {
	svc := NewAuthService(nil, "secret", time.Hour, zap.NewNop())
	_, _, err := svc.Register(context.Background(), RegisterInput{
		UserName: "Mallory", Email: "m@example.com", Password: "secret1", Role: models.RoleAdmin,
	})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestNewUserValidation(t *testing.T) {
	_, err := newUser("", "a@b.co", "secret1", "", models.RoleFarmer)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = newUser("Ann", "a@b.co", "short", "", models.RoleFarmer)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = newUser("Ann", "a@b.co", "secret1", "", "owner")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	u, err := newUser(" Ann ", "A@B.co", "secret1", "", models.RoleFarmer)
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.UserName)
	assert.Equal(t, "a@b.co", u.Email)
	assert.NotEqual(t, "secret1", u.Password)
	assert.True(t, u.IsActive)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := NewDeviceService(nil, nil, zap.NewNop())
	_, err := svc.UpdateStatus(context.Background(), Actor{Role: models.RoleAdmin}, "DEV", "broken")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDeviceCreateRequiresName(t *testing.T) {
	svc := NewDeviceService(nil, nil, zap.NewNop())
	_, err := svc.Create(context.Background(), Actor{UserID: ownerID, Role: models.RoleFarmer}, DeviceInput{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	name := "Tank"
	_, err = svc.Create(context.Background(), Actor{UserID: ownerID, Role: models.RoleViewer}, DeviceInput{DeviceName: &name})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestFarmDeleteRefusesWhileDevicesExist(t *testing.T) {
	sqlDB, mock, db := setupMockDB(t)
	defer sqlDB.Close()
	svc := NewFarmService(db, zap.NewNop())
	farmID := "5c7a3d7e-2b1f-4e0a-9c4d-1f2e3a4b5c6d"

	mock.ExpectQuery(`SELECT \* FROM "farms" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "farm_name", "user_id"}).AddRow(farmID, "North", ownerID))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "devices" WHERE farm_id = \$1`).
		WithArgs(farmID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	err := svc.Delete(context.Background(), Actor{UserID: ownerID, Role: models.RoleFarmer}, farmID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "2 device(s)")
	assert.NoError(t, mock.ExpectationsWereMet())
}
