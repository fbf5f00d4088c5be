package clinical

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an observation id does not resolve to a row.
var ErrNotFound = errors.New("observation not found")

// Repository is the persistence contract for observation rows. Rows are
// append-only: implementations expose inserts and row closing, never updates
// of other fields and never physical deletes.
type Repository interface {
	Insert(ctx context.Context, o *Observation) error
	GetByID(ctx context.Context, id int64) (*Observation, error)

	// History returns the current rows (txn_end IS NULL) for the fact key
	// whose valid interval intersects [since, until], ordered by valid_start
	// ascending with the insertion sequence (obs_id) as tie-break.
	History(ctx context.Context, patientID int64, code string, since, until time.Time) ([]*Observation, error)

	// LatestAsserted returns the most recently asserted row (latest
	// txn_start, then highest obs_id) for the fact key with the exact
	// valid_start, regardless of whether the row is still current.
	LatestAsserted(ctx context.Context, patientID int64, code string, measuredAt time.Time) (*Observation, error)

	// LatestCurrentBetween returns the current row with the greatest
	// valid_start (then highest obs_id) whose valid_start lies in
	// [from, to] inclusive.
	LatestCurrentBetween(ctx context.Context, patientID int64, code string, from, to time.Time) (*Observation, error)

	// Close sets txn_end on the identified row and returns the closed row.
	Close(ctx context.Context, id int64, closedAt time.Time) (*Observation, error)

	// CloseAndInsert closes the identified row and inserts the replacement
	// as a single atomic unit: either both writes commit or neither does.
	// Returns the closed row and the inserted row, in that order.
	CloseAndInsert(ctx context.Context, closeID int64, closedAt time.Time, replacement *Observation) (*Observation, *Observation, error)
}
