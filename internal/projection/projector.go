// Package projection turns stored protocol rows into the public response shapes.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
)

var (
	// ErrNotFound is returned when no row at all exists for an article.
	ErrNotFound = errors.New("article not found")

	// ErrNoStore is returned when a projector is created without a store.
	ErrNoStore = errors.New("projection store cannot be nil")
)

type (
	// Store is the read side the projector needs.
	Store interface {
		// ListByMsid returns every row of the article, protocols or not, in insertion order.
		ListByMsid(ctx context.Context, msid int64) ([]*ingestion.ArticleProtocol, error)

		// RowCount returns the total number of rows.
		RowCount(ctx context.Context) (int64, error)

		// LastUpdated returns the most recent updated_at, nil when there are no rows.
		LastUpdated(ctx context.Context) (*time.Time, error)
	}

	// ProtocolItem is the public projection of one protocol row.
	ProtocolItem struct {
		SectionID string  `json:"sectionId"`
		Title     string  `json:"title"`
		Status    bool    `json:"status"`
		URI       *string `json:"uri"`
	}

	// ProtocolData is the public listing of an article's protocols. Total always equals len(Items).
	ProtocolData struct {
		Total int            `json:"total"`
		Items []ProtocolItem `json:"items"`
	}

	// StatusReport summarizes the store. LastUpdated is RFC 3339 in UTC, or null when empty.
	StatusReport struct {
		LastUpdated *string `json:"last-updated"`
		RowCount    int64   `json:"row-count"`
	}

	// Projector answers read queries from a Store.
	Projector struct {
		store  Store
		logger *slog.Logger
	}
)

// NewProjector creates a Projector. A nil logger falls back to slog.Default().
func NewProjector(store Store, logger *slog.Logger) (*Projector, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Projector{store: store, logger: logger}, nil
}

// Query returns the public protocol listing of an article.
//
// An article with no rows at all is ErrNotFound. An article whose rows are all non-protocols
// is known and yields {total: 0, items: []}.
func (p *Projector) Query(ctx context.Context, msid int64) (*ProtocolData, error) {
	records, err := p.store.ListByMsid(ctx, msid)
	if err != nil {
		return nil, fmt.Errorf("list protocols of %d: %w", msid, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, msid)
	}

	data := Project(records)

	p.logger.Debug("Projected article protocols",
		slog.Int64("msid", msid),
		slog.Int("rows", len(records)),
		slog.Int("protocols", data.Total),
	)

	return &data, nil
}

// Status reports the row count and the most recent update.
func (p *Projector) Status(ctx context.Context) (*StatusReport, error) {
	last, err := p.store.LastUpdated(ctx)
	if err != nil {
		return nil, fmt.Errorf("last updated: %w", err)
	}

	count, err := p.store.RowCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("row count: %w", err)
	}

	report := &StatusReport{RowCount: count}

	if last != nil {
		formatted := last.UTC().Format(time.RFC3339)
		report.LastUpdated = &formatted
	}

	return report, nil
}

// Project keeps only protocol rows and maps each one to its public shape, in input order.
// A non-zero status code projects to true.
func Project(records []*ingestion.ArticleProtocol) ProtocolData {
	items := make([]ProtocolItem, 0, len(records))

	for _, record := range records {
		if !record.IsProtocol {
			continue
		}

		items = append(items, ProtocolItem{
			SectionID: record.ProtocolSequencingNumber,
			Title:     record.ProtocolTitle,
			Status:    record.ProtocolStatus != 0,
			URI:       record.URI,
		})
	}

	return ProtocolData{Total: len(items), Items: items}
}
