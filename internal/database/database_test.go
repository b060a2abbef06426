package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/config"
)

func TestIsEmbedded(t *testing.T) {
	assert.True(t, IsEmbedded(config.DatabaseConfig{Host: "localhost"}))
	assert.False(t, IsEmbedded(config.DatabaseConfig{Host: "localhost", Password: "pw"}))
	assert.False(t, IsEmbedded(config.DatabaseConfig{Host: "db.internal"}))
	assert.False(t, IsEmbedded(config.DatabaseConfig{Host: "localhost", URL: "postgres://u@h/db"}))
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: "5432", Username: "gp", Password: "pw", Database: "greenpulse"}
	assert.Equal(t, "host=db port=5432 user=gp password=pw dbname=greenpulse sslmode=disable", DSN(cfg))

	cfg.URL = "postgres://gp:pw@db:5432/greenpulse"
	assert.Equal(t, cfg.URL, DSN(cfg))
}

func TestOpenWithMockConnection(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	// gorm pings on open
	mock.ExpectPing()
	db, err := Open(postgres.New(postgres.Config{Conn: sqlDB}), false, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, db.Config.TranslateError)

	mock.ExpectPing()
	require.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingStopper struct {
	mock    sqlmock.Sqlmock
	stopped bool
	poolErr error
}

func (s *recordingStopper) Stop() error {
	s.stopped = true
	// the pool must already be closed when the server goes down
	s.poolErr = s.mock.ExpectationsWereMet()
	return nil
}

func TestCloseShutsPoolBeforeEmbeddedServer(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := Open(postgres.New(postgres.Config{Conn: sqlDB}), false, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	stop := &recordingStopper{mock: mock}
	db.embedded = stop

	require.NoError(t, db.Close())
	assert.True(t, stop.stopped)
	assert.NoError(t, stop.poolErr)
}

func TestCloseWithoutEmbeddedServer(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := Open(postgres.New(postgres.Config{Conn: sqlDB}), false, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
