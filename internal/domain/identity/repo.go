package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a patient id or name does not resolve.
var ErrNotFound = errors.New("patient not found")

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	// GetByName resolves by exact (first, last) match. When several patients
	// share a name the earliest-created one wins.
	GetByName(ctx context.Context, firstName, lastName string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, error)
}
