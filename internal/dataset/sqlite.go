package dataset

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sweep.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a Dataset that persists every store to a sqlite database as it
// happens, in an append-only results table. It wraps a Memory dataset so
// arrays stay readable in-process while the run is open.
type SQLite struct {
	*Memory
	db    *sql.DB
	runID string
}

// NewSQLite opens (creating if needed) the sqlite database at path, applies
// pending schema migrations, and registers a new run with the given name.
func NewSQLite(path, name string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	runID := uuid.NewString()
	_, err = db.Exec(
		`INSERT INTO runs (run_id, name, started_at) VALUES (?, ?, ?)`,
		runID, name, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}

	return &SQLite{Memory: NewMemory(name), db: db, runID: runID}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("prepare migrations: %w", err)
	}
	// Note: we don't close m here because it would close the underlying DB
	// connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RunID returns the unique ID assigned to this run.
func (s *SQLite) RunID() string { return s.runID }

// AddArray registers the array in memory and records it in the arrays table.
func (s *SQLite) AddArray(arr Array) error {
	if err := s.Memory.AddArray(arr); err != nil {
		return err
	}

	shape, err := json.Marshal(arr.Shape())
	if err != nil {
		return fmt.Errorf("encode shape for array %q: %w", arr.ArrayID(), err)
	}
	setIDs, err := json.Marshal(arr.SetArrayIDs())
	if err != nil {
		return fmt.Errorf("encode set arrays for array %q: %w", arr.ArrayID(), err)
	}

	_, err = s.db.Exec(
		`INSERT INTO arrays (run_id, array_id, name, label, unit, shape, is_setpoint, set_array_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, arr.ArrayID(), arr.Name(), arr.Label(), arr.Unit(),
		string(shape), arr.IsSetpoint(), string(setIDs),
	)
	if err != nil {
		return fmt.Errorf("persist array %q: %w", arr.ArrayID(), err)
	}
	return nil
}

// Store applies the values in memory and appends one row per array to the
// results table. The write is synchronous; there is no buffering.
func (s *SQLite) Store(loopIndices []int, values map[string]any) error {
	if err := s.Memory.Store(loopIndices, values); err != nil {
		return err
	}

	indices, err := json.Marshal(loopIndices)
	if err != nil {
		return fmt.Errorf("encode loop indices: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin result write: %w", err)
	}
	defer tx.Rollback()

	for id, value := range values {
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode value for array %q: %w", id, err)
		}
		_, err = tx.Exec(
			`INSERT INTO results (run_id, array_id, loop_indices, value, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			s.runID, id, string(indices), string(payload),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("persist result for array %q: %w", id, err)
		}
	}
	return tx.Commit()
}

// SaveMetadata serializes the accumulated metadata onto the run row.
func (s *SQLite) SaveMetadata() error {
	md, err := json.Marshal(s.Metadata())
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.Exec(`UPDATE runs SET metadata = ? WHERE run_id = ?`, string(md), s.runID)
	if err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	return nil
}

// Finalize stamps the run complete and saves metadata one last time.
func (s *SQLite) Finalize() error {
	if err := s.SaveMetadata(); err != nil {
		monitoring.Logf("dataset: saving metadata during finalize: %v", err)
	}
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), s.runID,
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return s.Memory.Finalize()
}

// Close releases the database handle. The run row is left as-is: an open
// completed_at marks a run that was closed without finalizing.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ResultCount reports how many result rows this run has persisted. Intended
// for tests and the CLI summary.
func (s *SQLite) ResultCount() (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM results WHERE run_id = ?`, s.runID,
	).Scan(&n)
	return n, err
}
