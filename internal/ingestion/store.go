package ingestion

import "context"

// Store is what the pipeline needs from persistence.
//
// Implementations live in internal/storage (PostgreSQL and in-memory). Whatever the backend, the
// contract is the same:
//   - the record is looked up by its natural key (Msid, ProtocolSequencingNumber)
//   - when found, every field is overwritten and UpdatedAt refreshed; CreatedAt is kept
//   - when not found, a new record is created with CreatedAt = UpdatedAt = now
//
// Concurrent upserts of the same key must not create duplicates; the store enforces uniqueness.
type Store interface {
	// UpsertProtocol creates or updates the record and returns the stored copy with its timestamps.
	// created is true when no record existed for the natural key.
	UpsertProtocol(ctx context.Context, record *ArticleProtocol) (stored *ArticleProtocol, created bool, err error)

	// HealthCheck reports whether the backend is ready to serve requests.
	HealthCheck(ctx context.Context) error
}
