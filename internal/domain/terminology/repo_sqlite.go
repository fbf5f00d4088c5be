package terminology

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type loincRepoSQLite struct{ db *sql.DB }

// NewLOINCRepoSQLite returns a SQLite-backed LOINC catalog repository.
func NewLOINCRepoSQLite(db *sql.DB) LOINCRepository {
	return &loincRepoSQLite{db: db}
}

func (r *loincRepoSQLite) GetByCode(ctx context.Context, code string) (*LOINCEntry, error) {
	var e LOINCEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT loinc_num, common_name FROM loinc WHERE loinc_num = ?`, code).
		Scan(&e.Code, &e.CommonName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loinc get: %w", err)
	}
	return &e, nil
}

func (r *loincRepoSQLite) Upsert(ctx context.Context, entries []*LOINCEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loinc (loinc_num, common_name) VALUES (?, ?)
			ON CONFLICT (loinc_num) DO UPDATE SET common_name = excluded.common_name`,
			e.Code, e.CommonName); err != nil {
			return fmt.Errorf("loinc upsert %s: %w", e.Code, err)
		}
	}
	return tx.Commit()
}

func (r *loincRepoSQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loinc`).Scan(&n)
	return n, err
}
