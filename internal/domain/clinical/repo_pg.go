package clinical

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a PostgreSQL-backed observation repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const obsCols = `obs_id, patient_id, loinc_num, value_num, valid_start, valid_end, txn_start, txn_end`

func scanObs(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.PatientID, &o.Code, &o.Value,
		&o.ValidStart, &o.ValidEnd, &o.TxnStart, &o.TxnEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &o, err
}

func (r *repoPG) Insert(ctx context.Context, o *Observation) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO observation (patient_id, loinc_num, value_num, valid_start, valid_end, txn_start, txn_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING obs_id`,
		o.PatientID, o.Code, o.Value, o.ValidStart, o.ValidEnd, o.TxnStart, o.TxnEnd).
		Scan(&o.ID)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Observation, error) {
	return scanObs(r.pool.QueryRow(ctx,
		`SELECT `+obsCols+` FROM observation WHERE obs_id = $1`, id))
}

func (r *repoPG) History(ctx context.Context, patientID int64, code string, since, until time.Time) ([]*Observation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+obsCols+` FROM observation
		WHERE patient_id = $1 AND loinc_num = $2 AND txn_end IS NULL
		  AND valid_start <= $4
		  AND (valid_end IS NULL OR valid_end >= $3)
		ORDER BY valid_start, obs_id`,
		patientID, code, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Observation{}
	for rows.Next() {
		o, err := scanObs(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *repoPG) LatestAsserted(ctx context.Context, patientID int64, code string, measuredAt time.Time) (*Observation, error) {
	return scanObs(r.pool.QueryRow(ctx, `
		SELECT `+obsCols+` FROM observation
		WHERE patient_id = $1 AND loinc_num = $2 AND valid_start = $3
		ORDER BY txn_start DESC, obs_id DESC
		LIMIT 1`,
		patientID, code, measuredAt))
}

func (r *repoPG) LatestCurrentBetween(ctx context.Context, patientID int64, code string, from, to time.Time) (*Observation, error) {
	return scanObs(r.pool.QueryRow(ctx, `
		SELECT `+obsCols+` FROM observation
		WHERE patient_id = $1 AND loinc_num = $2 AND txn_end IS NULL
		  AND valid_start BETWEEN $3 AND $4
		ORDER BY valid_start DESC, obs_id DESC
		LIMIT 1`,
		patientID, code, from, to))
}

func (r *repoPG) Close(ctx context.Context, id int64, closedAt time.Time) (*Observation, error) {
	return scanObs(r.pool.QueryRow(ctx, `
		UPDATE observation SET txn_end = $2 WHERE obs_id = $1
		RETURNING `+obsCols,
		id, closedAt))
}

func (r *repoPG) CloseAndInsert(ctx context.Context, closeID int64, closedAt time.Time, replacement *Observation) (*Observation, *Observation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	closed, err := scanObs(tx.QueryRow(ctx, `
		UPDATE observation SET txn_end = $2 WHERE obs_id = $1
		RETURNING `+obsCols,
		closeID, closedAt))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO observation (patient_id, loinc_num, value_num, valid_start, valid_end, txn_start, txn_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING obs_id`,
		replacement.PatientID, replacement.Code, replacement.Value,
		replacement.ValidStart, replacement.ValidEnd, replacement.TxnStart, replacement.TxnEnd).
		Scan(&replacement.ID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return closed, replacement, nil
}
