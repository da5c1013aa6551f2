package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects a SQL backend. DSN is a postgres connection string or a sqlite path.
type Config struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Migrate      bool
}

// PostgresDSN builds a lib/pq connection string.
func PostgresDSN(host string, port int, user, password, name, sslMode string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode)
}

// Database wraps sqlx with the settings needed to build queries and run migrations.
type Database struct {
	*sqlx.DB
	config Config
	logger ectologger.Logger
}

// Open creates the connection pool. Connectivity is checked by Start.
func Open(cfg Config, logger ectologger.Logger) (*Database, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	switch {
	case cfg.Driver == DriverSQLite:
		// every sqlite connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Database{DB: db, config: cfg, logger: logger}, nil
}

// Flavor returns the sqlbuilder flavor matching the driver.
func (d *Database) Flavor() sqlbuilder.Flavor {
	if d.config.Driver == DriverSQLite {
		return sqlbuilder.SQLite
	}
	return sqlbuilder.PostgreSQL
}

// DriverName returns the configured driver.
func (d *Database) DriverName() string {
	return d.config.Driver
}

// GetName implements startup.Dependency
func (d *Database) GetName() string {
	return "database"
}

// DependsOn implements startup.Dependency
func (d *Database) DependsOn() []string {
	return nil
}

// Start pings the database and applies migrations when enabled.
func (d *Database) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", d.config.Driver, err)
	}
	d.logger.Infof("Connected to %s database", d.config.Driver)

	if !d.config.Migrate {
		return nil
	}
	return NewMigrationService(d.logger, &MigrationConfig{}).Migrate(d)
}

// Stop closes the pool.
func (d *Database) Stop(_ context.Context) error {
	return d.Close()
}

// Excluded references the proposed row in an ON CONFLICT clause.
func Excluded(column string) string {
	return "EXCLUDED." + column
}
