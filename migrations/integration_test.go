package main

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgresContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	pgContainer, err := postgrescontainer.Run(ctx,
		"postgres:16-alpine",
		postgrescontainer.WithDatabase("bioprotocol_migrations"),
		postgrescontainer.WithUsername("test"),
		postgrescontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connStr
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()

	var exists bool

	err := db.QueryRowContext(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
	).Scan(&exists)
	require.NoError(t, err)

	return exists
}

func TestRunnerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr := setupPostgresContainer(ctx, t)

	runner, err := NewMigrationRunner(&Config{DatabaseURL: connStr, MigrationTable: defaultMigrationTable}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = runner.Close()
	})

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	version, dirty, err := runner.currentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
	assert.False(t, dirty)

	require.NoError(t, runner.Up())
	assert.True(t, tableExists(t, db, "article_protocols"))

	// Applying again is a no-op.
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Status())
	require.NoError(t, runner.Version())

	version, _, err = runner.currentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.ExecContext(ctx, `INSERT INTO article_protocols
		(msid, protocol_sequencing_number, protocol_title, is_protocol, protocol_status, uri)
		VALUES (12345, 's4-1', 'Antibodies', false, 0, NULL)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO article_protocols
		(msid, protocol_sequencing_number, protocol_title, is_protocol, protocol_status, uri)
		VALUES (12345, 's4-1', 'Duplicate', true, 0, NULL)`)
	require.Error(t, err, "natural key must be unique")

	require.NoError(t, runner.Down())
	assert.False(t, tableExists(t, db, "article_protocols"))
}

func TestNewMigrationRunner_UnreachableDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	_, err := NewMigrationRunner(&Config{
		DatabaseURL:    "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
		MigrationTable: defaultMigrationTable,
	}, nil)
	assert.ErrorContains(t, err, "failed to ping database")
}
