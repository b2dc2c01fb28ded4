package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
)

var errStoreDown = errors.New("store down")

type fakeStore struct {
	records []*ingestion.ArticleProtocol
	last    *time.Time
	err     error
}

func (f *fakeStore) ListByMsid(_ context.Context, msid int64) ([]*ingestion.ArticleProtocol, error) {
	if f.err != nil {
		return nil, f.err
	}

	out := []*ingestion.ArticleProtocol{}

	for _, record := range f.records {
		if record.Msid == msid {
			out = append(out, record)
		}
	}

	return out, nil
}

func (f *fakeStore) RowCount(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}

	return int64(len(f.records)), nil
}

func (f *fakeStore) LastUpdated(context.Context) (*time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.last, nil
}

func ptr(s string) *string {
	return &s
}

func row(msid int64, seq string, isProtocol bool, status int, uri *string) *ingestion.ArticleProtocol {
	return &ingestion.ArticleProtocol{
		Msid:                     msid,
		ProtocolSequencingNumber: seq,
		ProtocolTitle:            "Title " + seq,
		IsProtocol:               isProtocol,
		ProtocolStatus:           status,
		URI:                      uri,
	}
}

func newProjector(t *testing.T, store Store) *Projector {
	t.Helper()

	projector, err := NewProjector(store, nil)
	require.NoError(t, err)

	return projector
}

func TestNewProjector_NilStore(t *testing.T) {
	_, err := NewProjector(nil, nil)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestQuery_FiltersNonProtocolsInOrder(t *testing.T) {
	store := &fakeStore{records: []*ingestion.ArticleProtocol{
		row(12345, "s4-1", false, 0, ptr("https://example.org/s4-1")),
		row(12345, "s4-3", true, 0, ptr("https://example.org/s4-3")),
		row(99999, "s1-1", true, 0, nil),
		row(12345, "s4-4", true, 1, ptr("https://example.org/s4-4")),
		row(12345, "s4-5", true, 0, nil),
	}}

	data, err := newProjector(t, store).Query(context.Background(), 12345)
	require.NoError(t, err)

	assert.Equal(t, 3, data.Total)
	assert.Len(t, data.Items, data.Total)
	assert.Equal(t, []ProtocolItem{
		{SectionID: "s4-3", Title: "Title s4-3", Status: false, URI: ptr("https://example.org/s4-3")},
		{SectionID: "s4-4", Title: "Title s4-4", Status: true, URI: ptr("https://example.org/s4-4")},
		{SectionID: "s4-5", Title: "Title s4-5", Status: false, URI: nil},
	}, data.Items)
}

func TestQuery_KnownArticleWithoutProtocols(t *testing.T) {
	store := &fakeStore{records: []*ingestion.ArticleProtocol{
		row(12345, "s4-1", false, 0, nil),
		row(12345, "s4-2", false, 0, nil),
	}}

	data, err := newProjector(t, store).Query(context.Background(), 12345)
	require.NoError(t, err)

	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 0, "items": []}`, string(encoded))
}

func TestQuery_UnknownArticle(t *testing.T) {
	store := &fakeStore{records: []*ingestion.ArticleProtocol{row(12345, "s4-1", true, 0, nil)}}

	_, err := newProjector(t, store).Query(context.Background(), 54321)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuery_StoreFailure(t *testing.T) {
	_, err := newProjector(t, &fakeStore{err: errStoreDown}).Query(context.Background(), 12345)
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestQuery_JSONShape(t *testing.T) {
	store := &fakeStore{records: []*ingestion.ArticleProtocol{
		row(12345, "s4-3", true, 1, ptr("https://example.org/s4-3")),
		row(12345, "s4-5", true, 0, nil),
	}}

	data, err := newProjector(t, store).Query(context.Background(), 12345)
	require.NoError(t, err)

	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"total": 2,
		"items": [
			{"sectionId": "s4-3", "title": "Title s4-3", "status": true, "uri": "https://example.org/s4-3"},
			{"sectionId": "s4-5", "title": "Title s4-5", "status": false, "uri": null}
		]
	}`, string(encoded))
}

func TestStatus(t *testing.T) {
	updated := time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name     string
		store    *fakeStore
		expected string
	}{
		{
			name:     "empty store",
			store:    &fakeStore{},
			expected: `{"last-updated": null, "row-count": 0}`,
		},
		{
			name: "populated store reports UTC",
			store: &fakeStore{
				records: []*ingestion.ArticleProtocol{row(1, "s1", true, 0, nil), row(1, "s2", false, 0, nil)},
				last:    &updated,
			},
			expected: `{"last-updated": "2024-03-01T09:30:00Z", "row-count": 2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newProjector(t, tt.store).Status(context.Background())
			require.NoError(t, err)

			encoded, err := json.Marshal(report)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(encoded))
		})
	}
}

func TestStatus_StoreFailure(t *testing.T) {
	_, err := newProjector(t, &fakeStore{err: errStoreDown}).Status(context.Background())
	assert.ErrorIs(t, err, errStoreDown)
}

func TestProject_Empty(t *testing.T) {
	data := Project(nil)

	assert.Equal(t, 0, data.Total)
	assert.NotNil(t, data.Items)
}
