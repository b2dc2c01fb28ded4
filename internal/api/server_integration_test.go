package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/bioprotocol-io/bioprotocol/internal/config"
	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
	"github.com/bioprotocol-io/bioprotocol/internal/storage"
)

// TestArticleRoundTripIntegration posts partner rows and reads them back through PostgreSQL.
func TestArticleRoundTripIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewProtocolStore(&storage.Connection{DB: testDB.Connection}, logger)
	require.NoError(t, err)

	pipeline, err := ingestion.NewPipeline(store, logger)
	require.NoError(t, err)

	projector, err := projection.NewProjector(store, logger)
	require.NoError(t, err)

	server, err := NewServer(testConfig(), Dependencies{
		Protocols: projector,
		Ingester:  pipeline,
		Health:    store,
		Logger:    logger,
	})
	require.NoError(t, err)

	rows := fixtureRows(t)
	rows[0]["foo"] = "bar"

	rec := doRequest(t, server.Handler(), http.MethodPost, "/article/"+testMsid, encode(t, rows), jsonHeaders())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, IngestResponse{Msid: 12345, Successful: 5, Failed: 1}, decodeIngestResponse(t, rec))

	rec = doRequest(t, server.Handler(), http.MethodPost, "/article/"+testMsid,
		encode(t, fixtureRows(t)), jsonHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	// A NUL character fails its own row; the rows around it are still stored.
	rows = fixtureRows(t)
	rows[2]["ProtocolTitle"] = "bad\x00title"

	rec = doRequest(t, server.Handler(), http.MethodPost, "/article/"+testMsid, encode(t, rows), jsonHeaders())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, IngestResponse{Msid: 12345, Successful: 5, Failed: 1}, decodeIngestResponse(t, rec))

	rec = doRequest(t, server.Handler(), http.MethodGet, "/article/"+testMsid, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data projection.ProtocolData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, 3, data.Total)
	assert.Len(t, data.Items, 3)

	rec = doRequest(t, server.Handler(), http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report projection.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, int64(6), report.RowCount)
	assert.NotNil(t, report.LastUpdated)

	rec = doRequest(t, server.Handler(), http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
