package clinical

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type repoSQLite struct{ db *sql.DB }

// NewRepoSQLite returns a SQLite-backed observation repository. Timestamps
// are normalized to UTC so that the stored text values compare correctly.
func NewRepoSQLite(db *sql.DB) Repository {
	return &repoSQLite{db: db}
}

type sqlRow interface {
	Scan(dest ...interface{}) error
}

func scanObsSQL(row sqlRow) (*Observation, error) {
	var o Observation
	var validEnd, txnEnd sql.NullTime
	err := row.Scan(&o.ID, &o.PatientID, &o.Code, &o.Value,
		&o.ValidStart, &validEnd, &o.TxnStart, &txnEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if validEnd.Valid {
		t := validEnd.Time
		o.ValidEnd = &t
	}
	if txnEnd.Valid {
		t := txnEnd.Time
		o.TxnEnd = &t
	}
	return &o, nil
}

func utcOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (r *repoSQLite) Insert(ctx context.Context, o *Observation) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO observation (patient_id, loinc_num, value_num, valid_start, valid_end, txn_start, txn_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.PatientID, o.Code, o.Value,
		o.ValidStart.UTC(), utcOrNil(o.ValidEnd), o.TxnStart.UTC(), utcOrNil(o.TxnEnd))
	if err != nil {
		return err
	}
	o.ID, err = res.LastInsertId()
	return err
}

func (r *repoSQLite) GetByID(ctx context.Context, id int64) (*Observation, error) {
	return scanObsSQL(r.db.QueryRowContext(ctx,
		`SELECT `+obsCols+` FROM observation WHERE obs_id = ?`, id))
}

func (r *repoSQLite) History(ctx context.Context, patientID int64, code string, since, until time.Time) ([]*Observation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+obsCols+` FROM observation
		WHERE patient_id = ? AND loinc_num = ? AND txn_end IS NULL
		  AND valid_start <= ?
		  AND (valid_end IS NULL OR valid_end >= ?)
		ORDER BY valid_start, obs_id`,
		patientID, code, until.UTC(), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Observation{}
	for rows.Next() {
		o, err := scanObsSQL(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *repoSQLite) LatestAsserted(ctx context.Context, patientID int64, code string, measuredAt time.Time) (*Observation, error) {
	return scanObsSQL(r.db.QueryRowContext(ctx, `
		SELECT `+obsCols+` FROM observation
		WHERE patient_id = ? AND loinc_num = ? AND valid_start = ?
		ORDER BY txn_start DESC, obs_id DESC
		LIMIT 1`,
		patientID, code, measuredAt.UTC()))
}

func (r *repoSQLite) LatestCurrentBetween(ctx context.Context, patientID int64, code string, from, to time.Time) (*Observation, error) {
	return scanObsSQL(r.db.QueryRowContext(ctx, `
		SELECT `+obsCols+` FROM observation
		WHERE patient_id = ? AND loinc_num = ? AND txn_end IS NULL
		  AND valid_start BETWEEN ? AND ?
		ORDER BY valid_start DESC, obs_id DESC
		LIMIT 1`,
		patientID, code, from.UTC(), to.UTC()))
}

func (r *repoSQLite) Close(ctx context.Context, id int64, closedAt time.Time) (*Observation, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE observation SET txn_end = ? WHERE obs_id = ?`, closedAt.UTC(), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *repoSQLite) CloseAndInsert(ctx context.Context, closeID int64, closedAt time.Time, replacement *Observation) (*Observation, *Observation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE observation SET txn_end = ? WHERE obs_id = ?`, closedAt.UTC(), closeID)
	if err != nil {
		return nil, nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, nil, err
	} else if n == 0 {
		return nil, nil, ErrNotFound
	}

	closed, err := scanObsSQL(tx.QueryRowContext(ctx,
		`SELECT `+obsCols+` FROM observation WHERE obs_id = ?`, closeID))
	if err != nil {
		return nil, nil, err
	}

	ins, err := tx.ExecContext(ctx, `
		INSERT INTO observation (patient_id, loinc_num, value_num, valid_start, valid_end, txn_start, txn_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		replacement.PatientID, replacement.Code, replacement.Value,
		replacement.ValidStart.UTC(), utcOrNil(replacement.ValidEnd),
		replacement.TxnStart.UTC(), utcOrNil(replacement.TxnEnd))
	if err != nil {
		return nil, nil, err
	}
	if replacement.ID, err = ins.LastInsertId(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return closed, replacement, nil
}
