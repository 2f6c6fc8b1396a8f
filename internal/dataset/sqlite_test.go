package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLitePersistsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ds, err := NewSQLite(path, "persist")
	require.NoError(t, err)
	defer ds.Close()

	require.NotEmpty(t, ds.RunID())

	arr := newStubArray("v_0", 2, false)
	require.NoError(t, ds.AddArray(arr))

	for i := 0; i < 2; i++ {
		require.NoError(t, ds.Store([]int{i}, map[string]any{"v_0": float64(i)}))
	}

	n, err := ds.ResultCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// In-process reads go through the wrapped memory dataset.
	require.Equal(t, 1.0, arr.data[1])

	ds.AddMetadata(map[string]any{"operator": "test"})
	require.NoError(t, ds.SaveMetadata())
	require.NoError(t, ds.Finalize())
	require.True(t, ds.Finalized())

	var completed string
	err = ds.db.QueryRow(
		`SELECT completed_at FROM runs WHERE run_id = ?`, ds.RunID(),
	).Scan(&completed)
	require.NoError(t, err)
	require.NotEmpty(t, completed)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	first, err := NewSQLite(path, "one")
	require.NoError(t, err)
	first.Close()

	// Reopening the same file re-runs migrations as a no-op and registers a
	// second run.
	second, err := NewSQLite(path, "two")
	require.NoError(t, err)
	defer second.Close()

	var n int
	require.NoError(t, second.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n))
	require.Equal(t, 2, n)
}

func TestSQLiteRecordsArrayMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ds, err := NewSQLite(path, "arrays")
	require.NoError(t, err)
	defer ds.Close()

	require.NoError(t, ds.AddArray(newStubArray("x_0", 3, true)))

	var name string
	var isSetpoint bool
	err = ds.db.QueryRow(
		`SELECT name, is_setpoint FROM arrays WHERE run_id = ? AND array_id = ?`,
		ds.RunID(), "x_0",
	).Scan(&name, &isSetpoint)
	require.NoError(t, err)
	require.Equal(t, "x_0", name)
	require.True(t, isSetpoint)
}
