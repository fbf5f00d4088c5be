package terminology

// LOINCEntry represents one row of the LOINC reference catalog: a code and
// its long common name. The catalog is loaded once and read-only afterward.
type LOINCEntry struct {
	Code       string `db:"loinc_num" json:"loinc_num"`
	CommonName string `db:"common_name" json:"common_name"`
}
