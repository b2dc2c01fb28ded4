package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
)

var (
	_ ingestion.Store  = (*InMemoryProtocolStore)(nil)
	_ projection.Store = (*InMemoryProtocolStore)(nil)
)

type naturalKey struct {
	msid             int64
	sequencingNumber string
}

// InMemoryProtocolStore provides thread-safe in-memory storage for protocol rows.
// It follows the same upsert contract as ProtocolStore and is used when no database is configured.
type InMemoryProtocolStore struct {
	// rows maps natural keys to stored rows
	rows map[naturalKey]*ingestion.ArticleProtocol
	// order keeps natural keys in insertion order so listings match the database
	order []naturalKey
	// now is the clock used for created_at and updated_at
	now func() time.Time
	// mutex protects concurrent access to rows and order
	mutex sync.RWMutex
}

// MemoryStoreOption configures an InMemoryProtocolStore.
type MemoryStoreOption func(*InMemoryProtocolStore)

// WithClock replaces time.Now, for deterministic timestamps.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *InMemoryProtocolStore) {
		s.now = now
	}
}

// NewInMemoryProtocolStore creates an empty store.
func NewInMemoryProtocolStore(opts ...MemoryStoreOption) *InMemoryProtocolStore {
	s := &InMemoryProtocolStore{
		rows: make(map[naturalKey]*ingestion.ArticleProtocol),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// HealthCheck always succeeds.
func (s *InMemoryProtocolStore) HealthCheck(context.Context) error {
	return nil
}

// UpsertProtocol implements ingestion.Store.
func (s *InMemoryProtocolStore) UpsertProtocol(
	ctx context.Context,
	record *ingestion.ArticleProtocol,
) (*ingestion.ArticleProtocol, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if record == nil {
		return nil, false, fmt.Errorf("%w: nil record", ErrProtocolStoreFailed)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := naturalKey{msid: record.Msid, sequencingNumber: record.ProtocolSequencingNumber}
	now := s.now().UTC()

	stored := copyProtocol(record)
	stored.UpdatedAt = now

	existing, found := s.rows[key]
	if found {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
		s.order = append(s.order, key)
	}

	s.rows[key] = stored

	return copyProtocol(stored), !found, nil
}

// FindProtocol returns the row with the natural key, or ErrProtocolNotFound.
func (s *InMemoryProtocolStore) FindProtocol(
	_ context.Context,
	msid int64,
	sequencingNumber string,
) (*ingestion.ArticleProtocol, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, exists := s.rows[naturalKey{msid: msid, sequencingNumber: sequencingNumber}]
	if !exists {
		return nil, fmt.Errorf("%w: %d#%s", ErrProtocolNotFound, msid, sequencingNumber)
	}

	return copyProtocol(record), nil
}

// ListByMsid implements projection.Store.
func (s *InMemoryProtocolStore) ListByMsid(ctx context.Context, msid int64) ([]*ingestion.ArticleProtocol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	records := []*ingestion.ArticleProtocol{}

	for _, key := range s.order {
		if key.msid == msid {
			records = append(records, copyProtocol(s.rows[key]))
		}
	}

	return records, nil
}

// RowCount implements projection.Store.
func (s *InMemoryProtocolStore) RowCount(context.Context) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return int64(len(s.rows)), nil
}

// LastUpdated implements projection.Store. It returns nil when the store is empty.
func (s *InMemoryProtocolStore) LastUpdated(context.Context) (*time.Time, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var last *time.Time

	for _, record := range s.rows {
		if last == nil || record.UpdatedAt.After(*last) {
			t := record.UpdatedAt
			last = &t
		}
	}

	return last, nil
}

func copyProtocol(record *ingestion.ArticleProtocol) *ingestion.ArticleProtocol {
	cpy := *record

	if record.URI != nil {
		uri := *record.URI
		cpy.URI = &uri
	}

	return &cpy
}
