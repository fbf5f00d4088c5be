package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type loincRepoPG struct{ pool *pgxpool.Pool }

// NewLOINCRepoPG returns a PostgreSQL-backed LOINC catalog repository.
func NewLOINCRepoPG(pool *pgxpool.Pool) LOINCRepository {
	return &loincRepoPG{pool: pool}
}

func (r *loincRepoPG) GetByCode(ctx context.Context, code string) (*LOINCEntry, error) {
	var e LOINCEntry
	err := r.pool.QueryRow(ctx,
		`SELECT loinc_num, common_name FROM loinc WHERE loinc_num = $1`, code).
		Scan(&e.Code, &e.CommonName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loinc get: %w", err)
	}
	return &e, nil
}

func (r *loincRepoPG) Upsert(ctx context.Context, entries []*LOINCEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO loinc (loinc_num, common_name) VALUES ($1, $2)
			ON CONFLICT (loinc_num) DO UPDATE SET common_name = EXCLUDED.common_name`,
			e.Code, e.CommonName); err != nil {
			return fmt.Errorf("loinc upsert %s: %w", e.Code, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *loincRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM loinc`).Scan(&n)
	return n, err
}
