// Package database persists processed recordings and their motion events in
// PostgreSQL.
package database

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
)

// Database represents the database connection and operations
type Database struct {
	DB *sql.DB
}

// New opens the database at dsn and verifies the connection.
func New(ctx context.Context, dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return &Database{DB: db}, nil
}

// Init creates the required tables if they don't exist
func (d *Database) Init(ctx context.Context) error {
	createTables := `
	CREATE TABLE IF NOT EXISTS motion_runs (
		run_id TEXT PRIMARY KEY,
		recording TEXT NOT NULL,
		source TEXT NOT NULL,
		output TEXT NOT NULL,
		fps DOUBLE PRECISION NOT NULL,
		frames_read INTEGER NOT NULL,
		frames_written INTEGER NOT NULL,
		processed_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS motion_events (
		run_id TEXT NOT NULL REFERENCES motion_runs (run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		start_seconds DOUBLE PRECISION NOT NULL,
		end_seconds DOUBLE PRECISION NOT NULL,
		duration_seconds DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`

	_, err := d.DB.ExecContext(ctx, createTables)
	return errors.Wrap(err, "failed to create tables")
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}
