package terminology

import (
	"context"
	"errors"
)

// ErrNotFound is returned for codes absent from the catalog.
var ErrNotFound = errors.New("loinc code not found")

// LOINCRepository provides access to the LOINC reference catalog.
type LOINCRepository interface {
	GetByCode(ctx context.Context, code string) (*LOINCEntry, error)
	// Upsert inserts entries, replacing the common name of codes already
	// present. Used only by catalog seeding; there is no other write path.
	Upsert(ctx context.Context, entries []*LOINCEntry) error
	Count(ctx context.Context) (int, error)
}
