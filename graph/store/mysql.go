package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Use it when several processes (for example multiple CLI servers behind a
// load balancer) should share one run history. The schema is created on
// first use.
type MySQLStore[S any] struct {
	sqlSteps[S]
}

// NewMySQLStore connects with a go-sql-driver DSN:
//
//	user:password@tcp(localhost:3306)/ragflow?parseTime=true
//
// Read the DSN from the environment rather than hardcoding credentials.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	stepsTable := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := db.ExecContext(ctx, stepsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create workflow_steps table: %w", err)
	}

	return &MySQLStore[S]{
		sqlSteps: sqlSteps[S]{
			db: db,
			upsert: `
				INSERT INTO workflow_steps (run_id, step, node_id, state)
				VALUES (?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE
					node_id = VALUES(node_id),
					state = VALUES(state)
			`,
		},
	}, nil
}

// SaveStep implements Store.
func (m *MySQLStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	return m.saveStep(ctx, runID, step, nodeID, state)
}

// LoadLatest implements Store.
func (m *MySQLStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	return m.loadLatest(ctx, runID)
}

// LoadSteps implements Store.
func (m *MySQLStore[S]) LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	return m.loadSteps(ctx, runID)
}

// ListRuns implements Store.
func (m *MySQLStore[S]) ListRuns(ctx context.Context) ([]string, error) {
	return m.listRuns(ctx)
}

// Close releases the connection pool. Closing twice is a no-op.
func (m *MySQLStore[S]) Close() error {
	return m.close()
}

// Ping verifies the database is reachable.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}
