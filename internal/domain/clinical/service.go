package clinical

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PatientDirectory is the slice of the identity domain the store needs:
// exact-name resolution to a patient id. The boolean is false when no
// patient matches; that is an ordinary outcome, not an error.
type PatientDirectory interface {
	PatientIDByName(ctx context.Context, firstName, lastName string) (int64, bool, error)
}

// Service owns all mutation logic for the bitemporal store. Operations are
// issued sequentially against one repository (single logical writer);
// concurrent callers racing on the same (patient, code) key for the current
// row are deliberately left unresolved.
type Service struct {
	observations Repository
	patients     PatientDirectory
	now          func() time.Time
}

func NewService(observations Repository, patients PatientDirectory) *Service {
	return &Service{observations: observations, patients: patients, now: time.Now}
}

// Append inserts a brand-new current row. No search for an existing row of
// the same (patient, code, interval) is performed; the caller is responsible
// for not double-appending.
func (s *Service) Append(ctx context.Context, patientID int64, code string, value float64, validStart time.Time, validEnd *time.Time) (*Observation, error) {
	o, err := NewObservation(patientID, code, value, validStart, validEnd, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.observations.Insert(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// History returns the currently believed rows for the fact key whose valid
// interval intersects [since, until], ordered by valid_start ascending.
// Superseded rows never appear: this answers "what do we currently believe
// was true during this window", not "what did we ever believe".
func (s *Service) History(ctx context.Context, patientID int64, code string, since, until time.Time) ([]*Observation, error) {
	return s.observations.History(ctx, patientID, code, since, until)
}

// CorrectValue closes the identified row and inserts a replacement carrying
// the same valid interval with the new value, as one atomic unit. A missing
// id yields (nil, nil): absence is an outcome, not an error.
func (s *Service) CorrectValue(ctx context.Context, obsID int64, newValue float64) (*Observation, error) {
	old, err := s.observations.GetByID(ctx, obsID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	repl, err := NewObservation(old.PatientID, old.Code, newValue, old.ValidStart, old.ValidEnd, now)
	if err != nil {
		return nil, err
	}
	_, inserted, err := s.observations.CloseAndInsert(ctx, old.ID, now, repl)
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// RetroactiveCorrect closes the most recently asserted row for the fact
// measured at measuredAt and inserts a replacement whose transaction time
// starts at txnAt, dating the correction itself. Selection spans current
// AND superseded rows: a correction may re-derive from and re-close a row
// that a later correction already retired, producing an out-of-order entry
// in the transaction-time chain. That is the recorded behavior of the
// system being corrected, kept intact rather than silently restricted to
// current rows.
//
// Returns the closed row and the new row, in that order; an empty slice
// when the patient or the row does not exist.
func (s *Service) RetroactiveCorrect(ctx context.Context, patientName, code string, measuredAt, txnAt time.Time, newValue float64) ([]*Observation, error) {
	patientID, ok, err := s.resolvePatient(ctx, patientName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*Observation{}, nil
	}

	old, err := s.observations.LatestAsserted(ctx, patientID, code, measuredAt)
	if errors.Is(err, ErrNotFound) {
		return []*Observation{}, nil
	}
	if err != nil {
		return nil, err
	}

	repl, err := NewObservation(old.PatientID, old.Code, newValue, old.ValidStart, old.ValidEnd, txnAt)
	if err != nil {
		return nil, err
	}
	closed, inserted, err := s.observations.CloseAndInsert(ctx, old.ID, txnAt, repl)
	if err != nil {
		return nil, err
	}
	return []*Observation{closed, inserted}, nil
}

// RetroactiveDelete marks a currently believed fact as no longer believed as
// of deleteAt, without inserting a replacement. When measuredAt is given the
// candidate must match it exactly; otherwise candidates are the current rows
// whose valid_start falls within deleteAt's calendar day. The candidate with
// the latest valid_start wins. Returns nil when nothing matches.
func (s *Service) RetroactiveDelete(ctx context.Context, patientName, code string, deleteAt time.Time, measuredAt *time.Time) (*Observation, error) {
	patientID, ok, err := s.resolvePatient(ctx, patientName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	from, to := deleteAt, deleteAt
	if measuredAt != nil {
		from, to = *measuredAt, *measuredAt
	} else {
		from = time.Date(deleteAt.Year(), deleteAt.Month(), deleteAt.Day(), 0, 0, 0, 0, deleteAt.Location())
		to = from.Add(24*time.Hour - time.Nanosecond)
	}

	old, err := s.observations.LatestCurrentBetween(ctx, patientID, code, from, to)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s.observations.Close(ctx, old.ID, deleteAt)
}

// resolvePatient splits a "First Last" name on the first space and resolves
// it to a patient id. A malformed or unknown name is an empty outcome.
func (s *Service) resolvePatient(ctx context.Context, patientName string) (int64, bool, error) {
	parts := strings.SplitN(strings.TrimSpace(patientName), " ", 2)
	if len(parts) < 2 {
		return 0, false, nil
	}
	return s.patients.PatientIDByName(ctx, parts[0], parts[1])
}
