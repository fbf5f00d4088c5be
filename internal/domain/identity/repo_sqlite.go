package identity

import (
	"context"
	"database/sql"
	"errors"
)

type repoSQLite struct{ db *sql.DB }

// NewRepoSQLite returns a SQLite-backed patient repository.
func NewRepoSQLite(db *sql.DB) PatientRepository {
	return &repoSQLite{db: db}
}

type sqlRow interface {
	Scan(dest ...interface{}) error
}

func scanPatientSQL(row sqlRow) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Gender, &p.BirthDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoSQLite) Create(ctx context.Context, p *Patient) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO patient (first_name, last_name, gender, birth_date)
		VALUES (?, ?, ?, ?)`,
		p.FirstName, p.LastName, p.Gender, p.BirthDate.UTC())
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r *repoSQLite) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatientSQL(r.db.QueryRowContext(ctx,
		`SELECT `+patientCols+` FROM patient WHERE patient_id = ?`, id))
}

func (r *repoSQLite) GetByName(ctx context.Context, firstName, lastName string) (*Patient, error) {
	return scanPatientSQL(r.db.QueryRowContext(ctx, `
		SELECT `+patientCols+` FROM patient
		WHERE first_name = ? AND last_name = ?
		ORDER BY patient_id
		LIMIT 1`,
		firstName, lastName))
}

func (r *repoSQLite) List(ctx context.Context, limit, offset int) ([]*Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY patient_id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Patient
	for rows.Next() {
		p, err := scanPatientSQL(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
