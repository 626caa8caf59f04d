package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// The whole step history lives in a single database file, in WAL mode so
// readers (such as the CLI server's /runs handlers) never block the writer.
// The schema is created on first use.
//
// Example:
//
//	st, err := store.NewSQLiteStore[graph.State]("./runs.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
type SQLiteStore[S any] struct {
	sqlSteps[S]
	path string
}

// NewSQLiteStore opens or creates the database at path. ":memory:" keeps the
// database in memory for the lifetime of the store.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also keeps
	// ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)",
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return &SQLiteStore[S]{
		sqlSteps: sqlSteps[S]{
			db: db,
			upsert: `
				INSERT INTO workflow_steps (run_id, step, node_id, state)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(run_id, step) DO UPDATE SET
					node_id = excluded.node_id,
					state = excluded.state
			`,
		},
		path: path,
	}, nil
}

// SaveStep implements Store.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	return s.saveStep(ctx, runID, step, nodeID, state)
}

// LoadLatest implements Store.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	return s.loadLatest(ctx, runID)
}

// LoadSteps implements Store.
func (s *SQLiteStore[S]) LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	return s.loadSteps(ctx, runID)
}

// ListRuns implements Store.
func (s *SQLiteStore[S]) ListRuns(ctx context.Context) ([]string, error) {
	return s.listRuns(ctx)
}

// Close releases the database. Closing twice is a no-op.
func (s *SQLiteStore[S]) Close() error {
	return s.close()
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
