package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/migrations"
)

// Database holds database connection and configuration
type Database struct {
	*sql.DB
	url    string
	logger *logrus.Logger
}

// NewDatabase creates a new database connection
func NewDatabase(ctx context.Context, databaseURL string, logger *logrus.Logger) (*Database, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")

	return &Database{
		DB:     db,
		url:    databaseURL,
		logger: logger,
	}, nil
}

// schemaMigrator is the part of *migrate.Migrate the schema check relies on.
type schemaMigrator interface {
	Version() (uint, bool, error)
	Migrate(version uint) error
	Force(version int) error
}

// MaybeCreateTables compares the stored schema version with migrations.CurrentVersion
// and migrates when they differ. Up to date schemas cost one query.
func (d *Database) MaybeCreateTables(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := d.newMigrator()
	if err != nil {
		return err
	}
	// The migrator holds its own connection, not one of the pool's.
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			d.logger.WithFields(logrus.Fields{
				"source_error":   srcErr,
				"database_error": dbErr,
			}).Warn("Failed to close migrator")
		}
	}()

	return maybeMigrate(m, migrations.CurrentVersion, d.logger)
}

func (d *Database) newMigrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, d.url)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

func maybeMigrate(m schemaMigrator, target uint, logger *logrus.Logger) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty, err = 0, false, nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == target && !dirty {
		logger.WithField("version", version).Debug("Database schema is up to date")
		return nil
	}

	if dirty {
		// A failed run left the marker dirty; step back so the statements are re-applied.
		previous := int(version) - 1
		if previous < 1 {
			previous = database.NilVersion
		}
		logger.WithFields(logrus.Fields{
			"version": version,
			"forced":  previous,
		}).Warn("Database schema marked dirty, re-applying migration")
		if err := m.Force(previous); err != nil {
			return fmt.Errorf("failed to reset dirty schema version: %w", err)
		}
	}

	if err := m.Migrate(target); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"from": version,
		"to":   target,
	}).Info("Database migrations completed successfully")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
