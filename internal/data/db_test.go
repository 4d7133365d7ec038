package data

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Opening and migrating
// =============================================================================

func TestNewDB(t *testing.T) {
	t.Run("creates the database file in a nested directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "var", "lib", "alcance")

		store, err := NewDB(dir)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(filepath.Join(dir, DBFileName))
		require.NoError(t, err)
		require.NoError(t, store.Health())
	})

	t.Run("fails when the directory is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "taken")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

		_, err := NewDB(file)
		assert.Error(t, err)
	})
}

func TestMigrate_RecordsVersion(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	v, err := store.userVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), v)

	for _, table := range []string{"profiles", "referrals", "notes", "templates", "usage_counters", "oauth_tokens"} {
		var name string
		err := store.db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestMigrate_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewDB(dir)
	require.NoError(t, err)
	p, err := first.UpsertProfile(ctx, "ana@example.com", "Ana")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewDB(dir)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.Migrate(ctx), "migrating again is a no-op")
	got, err := second.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ReferralCode, got.ReferralCode)
}

func TestMigrate_UpgradesUnversionedDatabase(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, "PRAGMA user_version = 0")
	require.NoError(t, err)
	assert.Error(t, store.Health(), "stale version is unhealthy")

	require.NoError(t, store.Migrate(ctx))
	assert.NoError(t, store.Health())
}

func TestHealth_ClosedStore(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Close())
	assert.Error(t, store.Health())
}

// =============================================================================
// Connection settings
// =============================================================================

func TestConnPragmas(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	var journal string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)

	var fk int
	require.NoError(t, store.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var busy int
	require.NoError(t, store.db.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 5000, busy)
}

func TestDeleteProfileCascadesReferrals(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	referrer, err := store.UpsertProfile(ctx, "ana@example.com", "Ana")
	require.NoError(t, err)
	referred, err := store.UpsertProfile(ctx, "luis@example.com", "Luis")
	require.NoError(t, err)
	require.NoError(t, store.ApplyReferral(ctx, referred.ID, referrer.ID))

	_, err = store.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, referrer.ID)
	require.NoError(t, err)

	n, err := store.CountReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyReferral_UnknownReferrerRollsBack(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	referred, err := store.UpsertProfile(ctx, "luis@example.com", "Luis")
	require.NoError(t, err)

	err = store.ApplyReferral(ctx, referred.ID, "ghost")
	require.Error(t, err, "referrals.referrer_id must reference a profile")

	got, err := store.GetProfile(ctx, referred.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ReferredBy, "referred_by update is rolled back")
}

func TestConcurrentUsageIncrements(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementUsage(ctx, "u1", "2026-03-14"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("increment failed: %v", err)
	}

	n, err := store.GetUsage(ctx, "u1", "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, workers, n)
}

// =============================================================================
// Transactions
// =============================================================================

func TestWithTx(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO usage_counters (user_id, day, count) VALUES ('tx', '2026-03-14', 3)`)
			return err
		})
		require.NoError(t, err)

		n, err := store.GetUsage(ctx, "tx", "2026-03-14")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO usage_counters (user_id, day, count) VALUES ('tx', '2026-03-15', 9)`); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		n, err := store.GetUsage(ctx, "tx", "2026-03-15")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// =============================================================================
// Migration scripts
// =============================================================================

func TestStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "drops comments and blank lines",
			script: "-- profiles\n\nCREATE TABLE a (id TEXT);\n-- trailing\n",
			want:   []string{"CREATE TABLE a (id TEXT);"},
		},
		{
			name:   "multi-line statement",
			script: "CREATE TABLE a (\n    id TEXT,\n    tags TEXT NOT NULL DEFAULT '[]'\n);\nCREATE INDEX i ON a(id);",
			want: []string{
				"CREATE TABLE a (\n    id TEXT,\n    tags TEXT NOT NULL DEFAULT '[]'\n);",
				"CREATE INDEX i ON a(id);",
			},
		},
		{
			name:   "unterminated tail",
			script: "CREATE TABLE a (id TEXT)",
			want:   []string{"CREATE TABLE a (id TEXT)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statements(tt.script))
		})
	}
}

func TestStatements_InitialSchema(t *testing.T) {
	stmts := statements(initialSchema)
	require.NotEmpty(t, stmts)
	for _, s := range stmts {
		assert.Regexp(t, `^CREATE (TABLE|INDEX) IF NOT EXISTS`, s)
	}
}

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewDB(t.TempDir())
	require.NoError(t, err)
	return store
}
