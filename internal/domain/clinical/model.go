// Package clinical implements the bitemporal observation store. Every
// observation row carries two intervals: valid time (when the measured fact
// held in the real world) and transaction time (when this row was the
// system's belief). Rows are append-only; the only permitted mutation is
// closing a row by setting txn_end, which retires it to history. "What was
// known at transaction time T" is reconstructed by set membership over
// [txn_start, txn_end), never by overwriting.
package clinical

import (
	"fmt"
	"math"
	"time"
)

// ValidationError reports a malformed observation at construction time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid observation: %s %s", e.Field, e.Reason)
}

// Observation maps to the observation table. A row with TxnEnd == nil is the
// current belief about its fact; a non-nil TxnEnd means the row has been
// superseded and is retained only as history.
type Observation struct {
	ID         int64      `db:"obs_id" json:"obs_id"`
	PatientID  int64      `db:"patient_id" json:"patient_id"`
	Code       string     `db:"loinc_num" json:"loinc_num"`
	Value      float64    `db:"value_num" json:"value_num"`
	ValidStart time.Time  `db:"valid_start" json:"valid_start"`
	ValidEnd   *time.Time `db:"valid_end" json:"valid_end,omitempty"`
	TxnStart   time.Time  `db:"txn_start" json:"txn_start"`
	TxnEnd     *time.Time `db:"txn_end" json:"txn_end,omitempty"`
}

// NewObservation builds a current row (TxnEnd nil) and validates its
// invariants. Illegal observations are unrepresentable through this factory.
func NewObservation(patientID int64, code string, value float64, validStart time.Time, validEnd *time.Time, txnStart time.Time) (*Observation, error) {
	if patientID <= 0 {
		return nil, &ValidationError{Field: "patient_id", Reason: "is required"}
	}
	if code == "" {
		return nil, &ValidationError{Field: "loinc_num", Reason: "is required"}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &ValidationError{Field: "value_num", Reason: "must be a finite number"}
	}
	if validStart.IsZero() {
		return nil, &ValidationError{Field: "valid_start", Reason: "is required"}
	}
	if validEnd != nil && validEnd.Before(validStart) {
		return nil, &ValidationError{Field: "valid_end", Reason: "must not precede valid_start"}
	}
	if txnStart.IsZero() {
		return nil, &ValidationError{Field: "txn_start", Reason: "is required"}
	}
	return &Observation{
		PatientID:  patientID,
		Code:       code,
		Value:      value,
		ValidStart: validStart,
		ValidEnd:   validEnd,
		TxnStart:   txnStart,
	}, nil
}

// Current reports whether the row is still the system's belief.
func (o *Observation) Current() bool { return o.TxnEnd == nil }

// OverlapsValid reports whether the row's valid interval intersects
// [since, until]. An open-ended row (ValidEnd nil) extends to +infinity.
func (o *Observation) OverlapsValid(since, until time.Time) bool {
	if o.ValidStart.After(until) {
		return false
	}
	return o.ValidEnd == nil || !o.ValidEnd.Before(since)
}
