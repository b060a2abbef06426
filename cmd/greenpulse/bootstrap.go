package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/config"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/database"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/logger"
)

const serviceName = "greenpulse"

// app is what every database-backed command starts from
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *database.DB
}

// openApp loads configuration, builds the logger and connects to a migrated database
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	log.Info("synchronizing database schema")
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = log.Sync()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

// Close stops the database (and an embedded server) and flushes the logger
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("database close error", zap.Error(err))
	}
	_ = a.log.Sync()
}
