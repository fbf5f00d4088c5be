package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) a SQLite database file and verifies
// the connection. A single writer connection keeps the store within its
// single-logical-writer model.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sdb.SetMaxOpenConns(1)

	if err := sdb.PingContext(ctx); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return sdb, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS patient (
    patient_id INTEGER PRIMARY KEY AUTOINCREMENT,
    first_name TEXT NOT NULL,
    last_name  TEXT NOT NULL,
    gender     TEXT NOT NULL,
    birth_date TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS observation (
    obs_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    patient_id  INTEGER NOT NULL REFERENCES patient(patient_id),
    loinc_num   TEXT NOT NULL,
    value_num   REAL NOT NULL,
    valid_start TIMESTAMP NOT NULL,
    valid_end   TIMESTAMP,
    txn_start   TIMESTAMP NOT NULL,
    txn_end     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_observation_fact
    ON observation(patient_id, loinc_num);

CREATE TABLE IF NOT EXISTS loinc (
    loinc_num   TEXT PRIMARY KEY,
    common_name TEXT NOT NULL
);
`

// EnsureSQLiteSchema creates the store's tables if they do not exist.
func EnsureSQLiteSchema(ctx context.Context, sdb *sql.DB) error {
	if _, err := sdb.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}
