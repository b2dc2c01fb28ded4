package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
)

var (
	// ErrProtocolStoreFailed is returned when a protocol storage operation fails.
	ErrProtocolStoreFailed = errors.New("protocol storage failed")

	// ErrConstraintViolation is returned when a row breaks a table constraint (length, check).
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrProtocolNotFound is returned by FindProtocol when no row has the natural key.
	ErrProtocolNotFound = errors.New("protocol not found")

	// ProtocolStore implements the write side used by the ingest pipeline.
	_ ingestion.Store = (*ProtocolStore)(nil)

	// ProtocolStore implements the read side used by the projector.
	_ projection.Store = (*ProtocolStore)(nil)
)

const protocolColumns = `msid, protocol_sequencing_number, protocol_title, is_protocol, protocol_status, uri,
		created_at, updated_at`

// ProtocolStore persists article protocol rows in PostgreSQL.
//
// The natural key (msid, protocol_sequencing_number) is a unique constraint; upserts use
// INSERT … ON CONFLICT so concurrent writers of the same key never create duplicates.
type ProtocolStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewProtocolStore creates a PostgreSQL-backed protocol store. A nil logger falls back to slog.Default().
func NewProtocolStore(conn *Connection, logger *slog.Logger) (*ProtocolStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ProtocolStore{conn: conn, logger: logger}, nil
}

// HealthCheck verifies the database connection.
func (s *ProtocolStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// UpsertProtocol implements ingestion.Store.
//
// RETURNING (xmax = 0) tells an insert (true) from an update of an existing row (false).
// On update every field is overwritten and updated_at refreshed; created_at is kept.
func (s *ProtocolStore) UpsertProtocol(
	ctx context.Context,
	record *ingestion.ArticleProtocol,
) (*ingestion.ArticleProtocol, bool, error) {
	startTime := time.Now()

	query := `
		INSERT INTO article_protocols (
			msid,
			protocol_sequencing_number,
			protocol_title,
			is_protocol,
			protocol_status,
			uri
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (msid, protocol_sequencing_number)
		DO UPDATE SET
			protocol_title = EXCLUDED.protocol_title,
			is_protocol = EXCLUDED.is_protocol,
			protocol_status = EXCLUDED.protocol_status,
			uri = EXCLUDED.uri,
			updated_at = CURRENT_TIMESTAMP
		RETURNING created_at, updated_at, (xmax = 0) AS inserted
	`

	stored := *record

	var inserted bool

	err := s.conn.DB.QueryRowContext(ctx, query,
		record.Msid,
		record.ProtocolSequencingNumber,
		record.ProtocolTitle,
		record.IsProtocol,
		record.ProtocolStatus,
		nullableString(record.URI),
	).Scan(&stored.CreatedAt, &stored.UpdatedAt, &inserted)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" { // integrity_constraint_violation
			s.logger.Warn("Protocol row violates table constraint",
				slog.String("record", record.String()),
				slog.String("constraint", pqErr.Constraint),
				slog.String("error", pqErr.Message),
			)

			return nil, false, fmt.Errorf("%w: %w: %s", ErrProtocolStoreFailed, ErrConstraintViolation, pqErr.Message)
		}

		s.logger.Error("Protocol upsert failed",
			slog.String("record", record.String()),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
		)

		return nil, false, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
	}

	operation := "inserted"
	if !inserted {
		operation = "updated"
	}

	s.logger.Debug("Protocol row stored",
		slog.String("record", record.String()),
		slog.String("operation", operation),
		slog.Int64("duration_ms", time.Since(startTime).Milliseconds()),
	)

	return &stored, inserted, nil
}

// FindProtocol returns the row with the natural key, or ErrProtocolNotFound.
func (s *ProtocolStore) FindProtocol(
	ctx context.Context,
	msid int64,
	sequencingNumber string,
) (*ingestion.ArticleProtocol, error) {
	query := `SELECT ` + protocolColumns + `
		FROM article_protocols
		WHERE msid = $1 AND protocol_sequencing_number = $2`

	record, err := scanProtocol(s.conn.DB.QueryRowContext(ctx, query, msid, sequencingNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d#%s", ErrProtocolNotFound, msid, sequencingNumber)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
	}

	return record, nil
}

// ListByMsid implements projection.Store. Rows are ordered by id, which is insertion order.
func (s *ProtocolStore) ListByMsid(ctx context.Context, msid int64) ([]*ingestion.ArticleProtocol, error) {
	query := `SELECT ` + protocolColumns + `
		FROM article_protocols
		WHERE msid = $1
		ORDER BY id`

	rows, err := s.conn.DB.QueryContext(ctx, query, msid)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	records := []*ingestion.ArticleProtocol{}

	for rows.Next() {
		record, err := scanProtocol(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
	}

	return records, nil
}

// RowCount implements projection.Store.
func (s *ProtocolStore) RowCount(ctx context.Context) (int64, error) {
	var count int64

	if err := s.conn.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM article_protocols`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
	}

	return count, nil
}

// LastUpdated implements projection.Store. It returns nil when the table is empty.
func (s *ProtocolStore) LastUpdated(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime

	if err := s.conn.DB.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM article_protocols`).Scan(&last); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolStoreFailed, err)
	}

	if !last.Valid {
		return nil, nil //nolint:nilnil
	}

	t := last.Time.UTC()

	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProtocol(row rowScanner) (*ingestion.ArticleProtocol, error) {
	var (
		record ingestion.ArticleProtocol
		uri    sql.NullString
	)

	err := row.Scan(
		&record.Msid,
		&record.ProtocolSequencingNumber,
		&record.ProtocolTitle,
		&record.IsProtocol,
		&record.ProtocolStatus,
		&uri,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if uri.Valid {
		record.URI = &uri.String
	}

	return &record, nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *value, Valid: true}
}
