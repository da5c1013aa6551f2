package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pkgerrors "github.com/pkg/errors"

	"github.com/Ramsey-B/fern/db"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return false
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

type MigrationConfig struct {
	Version uint
	Force   int
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// Migrate applies the embedded migrations for the database's driver.
func (ms *MigrationService) Migrate(d *Database) error {
	source, err := iofs.New(db.Migrations, d.config.Driver)
	if err != nil {
		return pkgerrors.Wrap(err, fmt.Sprintf("no migrations for driver %s", d.config.Driver))
	}

	var driver migratedb.Driver
	switch d.config.Driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(d.DB.DB, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(d.DB.DB, &sqlite.Config{})
	default:
		err = fmt.Errorf("unsupported database driver %q", d.config.Driver)
	}
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, d.config.Driver, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = MigrationLogger{Logger: ms.logger}

	return ms.runMigration(m)
}

func (ms *MigrationService) runMigration(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	startTime := time.Now()

	var err error
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	switch {
	case err == nil:
		ms.logger.Infof("Database migrations completed in %v", time.Since(startTime))
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		ms.logger.Debug("No new migrations to apply")
		return nil
	}

	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	}
	ms.logger.WithError(err).Errorf("Failed to apply migrations. Database version is dirty=%t at version %d", dirty, version)
	return pkgerrors.Wrap(err, "failed to apply migrations")
}
