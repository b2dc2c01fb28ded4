package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// MigrationRunner is the set of commands the migrator exposes.
	MigrationRunner interface {
		// Up applies all pending migrations
		Up() error

		// Down rolls back the last migration
		Down() error

		// Status reports the applied version and how many migrations are pending
		Status() error

		// Version reports the applied version
		Version() error

		// Drop drops every table (destructive)
		Drop() error

		// Close releases the database connection
		Close() error
	}

	// Runner implements MigrationRunner with golang-migrate and the embedded migrations.
	Runner struct {
		config   *Config
		migrate  *migrate.Migrate
		db       *sql.DB
		embedded *EmbeddedMigration
		logger   *slog.Logger
	}

	// migrateLogger forwards golang-migrate output to slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner validates the embedded migrations, connects and prepares golang-migrate.
func NewMigrationRunner(cfg *Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	embedded := NewEmbeddedMigration(nil)
	if err := embedded.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(embedded.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	logger.Info("Migration runner initialized",
		slog.Int("embedded_schema_version", embedded.MaxSequence()),
	)

	return &Runner{
		config:   cfg,
		migrate:  m,
		db:       db,
		embedded: embedded,
		logger:   logger,
	}, nil
}

// Up applies all pending migrations. Nothing to apply is not an error.
func (r *Runner) Up() error {
	if err := r.embedded.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No new migrations to apply")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	r.logger.Info("All migrations applied")

	return nil
}

// Down rolls back one migration.
func (r *Runner) Down() error {
	if err := r.embedded.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No migrations to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	r.logger.Info("Last migration rolled back")

	return nil
}

// Status logs the applied version, whether it is dirty and how many migrations are pending.
func (r *Runner) Status() error {
	version, dirty, err := r.currentVersion()
	if err != nil {
		return err
	}

	embedded := r.embedded.MaxSequence()

	r.logger.Info("Migration status",
		slog.Int("database_schema_version", version),
		slog.Int("embedded_schema_version", embedded),
		slog.Bool("dirty", dirty),
		slog.String("compatibility", compatibility(version, embedded)),
	)

	return nil
}

// Version logs the applied version.
func (r *Runner) Version() error {
	version, dirty, err := r.currentVersion()
	if err != nil {
		return err
	}

	r.logger.Info("Current schema version",
		slog.Int("version", version),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// Drop drops every table in the database.
func (r *Runner) Drop() error {
	if err := r.embedded.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	r.logger.Info("All tables dropped")

	return nil
}

// Close closes the migrate instance and the connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

// currentVersion returns 0 when no migration was ever applied.
func (r *Runner) currentVersion() (int, bool, error) {
	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return int(version), dirty, nil // #nosec G115 - sequence numbers are three digits
}

// compatibility compares the database schema with what this binary embeds.
func compatibility(database, embedded int) string {
	switch {
	case database == embedded:
		return "up to date"
	case database < embedded:
		return fmt.Sprintf("%d migration(s) pending", embedded-database)
	default:
		return fmt.Sprintf("database schema v%03d is newer than this migrator supports", database)
	}
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
