package identity

import "time"

// Patient maps to the patient table. Patients are immutable once created:
// the store defines no update or delete operations for them.
type Patient struct {
	ID        int64     `db:"patient_id" json:"patient_id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Gender    string    `db:"gender" json:"gender"`
	BirthDate time.Time `db:"birth_date" json:"birth_date"`
}

// FullName returns the "First Last" form used for exact-name resolution.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
