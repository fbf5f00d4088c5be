package identity

import (
	"context"
	"errors"
	"fmt"
)

type Service struct {
	patients PatientRepository
}

func NewService(patients PatientRepository) *Service {
	return &Service{patients: patients}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.Gender != "M" && p.Gender != "F" {
		return fmt.Errorf("gender must be M or F, got %q", p.Gender)
	}
	if p.BirthDate.IsZero() {
		return fmt.Errorf("birth_date is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.patients.List(ctx, limit, offset)
}

// PatientIDByName resolves an exact (first, last) name to a patient id.
// The boolean is false when no patient matches; only unexpected repository
// failures surface as errors.
func (s *Service) PatientIDByName(ctx context.Context, firstName, lastName string) (int64, bool, error) {
	p, err := s.patients.GetByName(ctx, firstName, lastName)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return p.ID, true, nil
}
