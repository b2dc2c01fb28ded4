package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/bioprotocol-io/bioprotocol/internal/config"
	"github.com/bioprotocol-io/bioprotocol/internal/ingestion"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
)

func setupProtocolStore(ctx context.Context, t *testing.T) *ProtocolStore {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	store, err := NewProtocolStore(&Connection{DB: testDB.Connection}, nil)
	require.NoError(t, err)

	return store
}

func TestProtocolStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupProtocolStore(ctx, t)

	t.Run("HealthCheck", func(t *testing.T) {
		require.NoError(t, store.HealthCheck(ctx))
	})

	t.Run("empty table status", func(t *testing.T) {
		last, err := store.LastUpdated(ctx)
		require.NoError(t, err)
		assert.Nil(t, last)

		count, err := store.RowCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("upsert inserts then updates in place", func(t *testing.T) {
		first, created, err := store.UpsertProtocol(ctx, newProtocol(11111, "s2-1", false))
		require.NoError(t, err)
		assert.True(t, created)
		assert.False(t, first.CreatedAt.IsZero())

		time.Sleep(10 * time.Millisecond)

		changed := newProtocol(11111, "s2-1", true)
		changed.ProtocolStatus = 1
		changed.URI = nil

		second, created, err := store.UpsertProtocol(ctx, changed)
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
		assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

		found, err := store.FindProtocol(ctx, 11111, "s2-1")
		require.NoError(t, err)
		assert.True(t, found.IsProtocol)
		assert.Equal(t, 1, found.ProtocolStatus)
		assert.Nil(t, found.URI)

		records, err := store.ListByMsid(ctx, 11111)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("find missing row", func(t *testing.T) {
		_, err := store.FindProtocol(ctx, 11111, "missing")
		assert.ErrorIs(t, err, ErrProtocolNotFound)
	})

	t.Run("overlong sequencing number violates constraint", func(t *testing.T) {
		record := newProtocol(11111, strings.Repeat("x", 26), true)

		_, _, err := store.UpsertProtocol(ctx, record)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocolStoreFailed)
	})

	t.Run("non-positive msid violates check", func(t *testing.T) {
		_, _, err := store.UpsertProtocol(ctx, newProtocol(0, "s1", true))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConstraintViolation)
	})

	t.Run("partner batch through pipeline and projection", func(t *testing.T) {
		raw, err := os.ReadFile("../ingestion/testdata/partner-batch.json")
		require.NoError(t, err)

		items, err := ingestion.DecodePartnerRows(raw)
		require.NoError(t, err)

		pipeline, err := ingestion.NewPipeline(store, nil)
		require.NoError(t, err)

		for range 2 {
			result, err := pipeline.AddResult(ctx, ingestion.Batch{Msid: 12345, Items: items})
			require.NoError(t, err)
			assert.Len(t, result.Successful, 6)
			assert.Empty(t, result.Failed)
		}

		records, err := store.ListByMsid(ctx, 12345)
		require.NoError(t, err)
		require.Len(t, records, 6)
		assert.Equal(t, "s4-1", records[0].ProtocolSequencingNumber)
		assert.Equal(t, "s4-6", records[5].ProtocolSequencingNumber)

		projector, err := projection.NewProjector(store, nil)
		require.NoError(t, err)

		data, err := projector.Query(ctx, 12345)
		require.NoError(t, err)
		assert.Equal(t, 3, data.Total)
		assert.Equal(t, "s4-3", data.Items[0].SectionID)
		assert.True(t, data.Items[1].Status)
		assert.Nil(t, data.Items[2].URI)

		report, err := projector.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), report.RowCount)
		require.NotNil(t, report.LastUpdated)
	})
}
