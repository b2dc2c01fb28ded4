package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/bioprotocol-io/bioprotocol/internal/api"
	"github.com/bioprotocol-io/bioprotocol/internal/config"
	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/metrics"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
	"github.com/bioprotocol-io/bioprotocol/internal/storage"
)

var errInvalidMsid = errors.New("invalid article id")

// backend is the storage side shared by every command: one store behind the ingest pipeline and
// the projector.
type backend struct {
	pipeline  *ingestion.Pipeline
	projector *projection.Projector
	health    api.HealthChecker
	closer    io.Closer
}

// openBackend uses PostgreSQL when DATABASE_URL is set, an in-memory store otherwise.
func openBackend(logger *slog.Logger) (*backend, error) {
	storageConfig := storage.LoadConfig()

	var (
		store interface {
			ingestion.Store
			projection.Store
		}
		health api.HealthChecker
		closer io.Closer
	)

	if config.GetEnvStr("DATABASE_URL", "") == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage",
			slog.String("note", "Protocols are lost when the process exits"),
		)

		memoryStore := storage.NewInMemoryProtocolStore()
		store, health = memoryStore, memoryStore
	} else {
		conn, err := storage.NewConnection(storageConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		protocolStore, err := storage.NewProtocolStore(conn, logger)
		if err != nil {
			_ = conn.Close()

			return nil, fmt.Errorf("failed to create protocol store: %w", err)
		}

		logger.Info("Protocol store initialized",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
			slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
			slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
			slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
			slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
		)

		store, health, closer = protocolStore, conn, conn
	}

	b := &backend{health: health, closer: closer}

	pipeline, err := ingestion.NewPipeline(store, logger, ingestion.WithRecorder(metrics.NewIngestRecorder()))
	if err != nil {
		_ = b.Close()

		return nil, err
	}

	projector, err := projection.NewProjector(store, logger)
	if err != nil {
		_ = b.Close()

		return nil, err
	}

	b.pipeline, b.projector = pipeline, projector

	return b, nil
}

// Close releases the database pool, if any.
func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}

	return b.closer.Close()
}

func newLogger() *slog.Logger {
	return config.NewLogger(config.GetEnvLogLevel("BIOPROTOCOL_LOG_LEVEL", slog.LevelInfo))
}

func parseMsid(arg string) (int64, error) {
	msid, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || msid <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidMsid, arg)
	}

	return msid, nil
}
