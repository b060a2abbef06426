package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
)

func expectCount(mock sqlmock.Sqlmock, table string, n int64) {
	mock.ExpectQuery(`SELECT count\(\*\) FROM "` + table + `"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func TestIntegrity(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	expectCount(mock, "users", 4)
	expectCount(mock, "farms", 2)
	expectCount(mock, "devices", 3)
	expectCount(mock, "sensor_readings", 2016)
	expectCount(mock, "alerts", 3)
	mock.ExpectQuery(`LEFT JOIN farms f ON f.id = d.farm_id\s+WHERE f.id IS NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"device_id"}).AddRow("GREENPULSE-V1-00009"))
	mock.ExpectQuery(`WHERE d.user_id <> f.user_id`).
		WillReturnRows(sqlmock.NewRows([]string{"device_id"}))
	mock.ExpectQuery(`LEFT JOIN device_configurations c`).
		WillReturnRows(sqlmock.NewRows([]string{"device_id"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sensor_readings r`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	report, err := store.Integrity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Users)
	assert.Equal(t, int64(2016), report.Readings)
	assert.Equal(t, []string{"GREENPULSE-V1-00009"}, report.OrphanDevices)
	assert.Empty(t, report.OwnerMismatches)
	assert.Equal(t, int64(12), report.DetachedReadings)
	assert.False(t, report.Healthy())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrityQueryFailure(t *testing.T) {
	sqlDB, mock, store := setupMockStore(t)
	defer sqlDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users"`).WillReturnError(errors.New("connection refused"))

	_, err := store.Integrity(context.Background())
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
