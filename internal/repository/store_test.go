package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/alerting"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/database"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := database.Open(postgres.New(postgres.Config{Conn: sqlDB}), false, zap.NewNop())
	require.NoError(t, err)

	return sqlDB, mock, NewStore(db.DB)
}

func TestFindDeviceByExternalID(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE device_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "user_id", "farm_id", "device_name", "status"}).
			AddRow("ref-1", "GREENPULSE-V1-00001", "user-1", "farm-1", "Tank A", "active"))
	mock.ExpectQuery(`SELECT \* FROM "device_configurations" WHERE "device_configurations"."device_ref" = \$1`).
		WithArgs("ref-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_ref", "alert_enabled", "sampling_interval", "ph_min", "ph_max"}).
			AddRow("cfg-1", "ref-1", true, 300, 6.0, 7.5))

	device, err := store.FindDeviceByExternalID(context.Background(), "GREENPULSE-V1-00001")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", device.ID)
	require.NotNil(t, device.Configuration)
	assert.True(t, device.Configuration.AlertEnabled)
	assert.Equal(t, 6.0, *device.Configuration.PHMin)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDeviceByExternalIDUpperCases(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "devices" WHERE device_id = \$1`).
		WithArgs("GREENPULSE-001", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id"}).AddRow("ref-1", "GREENPULSE-001"))
	mock.ExpectQuery(`SELECT \* FROM "device_configurations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_ref"}))

	device, err := store.FindDeviceByExternalID(context.Background(), " greenpulse-001 ")
	require.NoError(t, err)
	assert.Equal(t, "GREENPULSE-001", device.DeviceID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDeviceByExternalIDNotFound(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "devices"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindDeviceByExternalID(context.Background(), "UNKNOWN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpenAlert(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "alerts" WHERE .*device_id = \$1 AND parameter = \$2 AND status IN \(\$3,\$4\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "parameter", "status"}).
			AddRow("a-1", "D1", "ph_value", "acknowledged"))

	alert, err := store.FindOpenAlert(context.Background(), "D1", models.ParamPH)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertStatusAcknowledged, alert.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpenAlertNone(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "alerts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	alert, err := store.FindOpenAlert(context.Background(), "D1", models.ParamEC)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestCreateAlertDuplicate(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "alerts"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := store.CreateAlert(context.Background(), &models.Alert{DeviceID: "D1", Parameter: "ph_value", AlertType: "ph_value_low"})
	assert.ErrorIs(t, err, alerting.ErrDuplicateOpenAlert)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchDevice(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "devices" SET "last_activity"=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.TouchDevice(context.Background(), "ref-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReadingFailure(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "sensor_readings"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.CreateReading(context.Background(), &models.SensorReading{DeviceID: "D1"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
