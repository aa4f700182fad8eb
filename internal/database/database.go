// Package database provides sqlite persistence for entity snapshots and the
// refresh log.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/hearth-home/hearth-backend-go/internal/config"
)

// Initialize opens and configures the sqlite database
func Initialize(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dbDir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return db, nil
}

// Migrate runs database migrations from the given directory
func Migrate(db *sqlx.DB, migrationsPath string) error {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// StartPruneSchedule prunes the refresh log daily, keeping retentionDays of
// history. Returns the scheduler so the caller can stop it on shutdown.
func StartPruneSchedule(repo *RefreshLogRepository, retentionDays int, logger *logrus.Logger) *cron.Cron {
	if retentionDays <= 0 {
		retentionDays = 30
	}

	scheduler := cron.New()
	scheduler.AddFunc("0 3 * * *", func() {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		pruned, err := repo.Prune(cutoff)
		if err != nil {
			logger.WithError(err).Warn("Refresh log prune failed")
			return
		}
		logger.WithFields(logrus.Fields{
			"pruned": pruned,
			"cutoff": cutoff.Format(time.RFC3339),
		}).Info("Refresh log pruned")
	})
	scheduler.Start()
	return scheduler
}
