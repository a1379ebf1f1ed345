package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "nested", "state.db"),
		Profile: ProfileDurable,
		Name:    "state",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableNames(t *testing.T, conn *sql.DB) []string {
	t.Helper()
	rows, err := conn.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestNew_CreatesDirectoryAndAppliesProfile(t *testing.T) {
	db := newStateDB(t)

	assert.FileExists(t, db.Path())
	assert.Equal(t, ProfileDurable, db.Profile())
	assert.Equal(t, "state", db.Name())

	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var sync int
	require.NoError(t, db.Conn().QueryRow("PRAGMA synchronous").Scan(&sync))
	assert.Equal(t, 2, sync) // FULL
}

func TestNew_DefaultsToStandardProfile(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Name: "scratch"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestMigrate_StateSchema(t *testing.T) {
	db := newStateDB(t)

	require.NoError(t, db.Migrate())
	// Running twice is harmless
	require.NoError(t, db.Migrate())

	assert.Equal(t,
		[]string{"entity_state", "failure_records", "runs", "snapshot"},
		tableNames(t, db.Conn()))
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Name: "unknown"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	assert.Empty(t, tableNames(t, db.Conn()))
}

func TestStateSchema_PortableToCgoDriver(t *testing.T) {
	content, err := schemaFS.ReadFile(schemaFiles["state"])
	require.NoError(t, err)

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(string(content))
	require.NoError(t, err)

	_, err = conn.Exec(`INSERT INTO snapshot (id, run_id, security_count, data, updated_at) VALUES (2, 'r', 0, x'', 0)`)
	assert.Error(t, err, "snapshot is a single-row table")

	_, err = conn.Exec(`INSERT INTO failure_records VALUES ('AAPL', 0, 0, 0)`)
	assert.Error(t, err, "failure rows need a positive count")
}

func TestWithTransaction(t *testing.T) {
	db := newStateDB(t)
	require.NoError(t, db.Migrate())
	ctx := context.Background()

	count := func() int {
		var n int
		require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM entity_state`).Scan(&n))
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO entity_state VALUES ('BRK', '2024-01-01', 1)`)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec(`INSERT INTO entity_state VALUES ('AKO', '2024-01-01', 1)`); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec(`INSERT INTO entity_state VALUES ('GLRE', '2024-01-01', 1)`)
			panic("unexpected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
		assert.Equal(t, 1, count())
	})

	t.Run("nil connection", func(t *testing.T) {
		err := WithTransaction(ctx, nil, func(tx *sql.Tx) error { return nil })
		assert.Error(t, err)
	})
}

func TestHealthCheck(t *testing.T) {
	db := newStateDB(t)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))

	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestDB_Maintenance(t *testing.T) {
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "state.db"),
		Profile: ProfileDurable,
		Name:    "state",
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	ctx := context.Background()
	size, err := db.Size(ctx)
	require.NoError(t, err)
	assert.Positive(t, size)

	assert.NoError(t, db.Checkpoint(ctx))
	assert.NoError(t, db.Vacuum(ctx))
}
