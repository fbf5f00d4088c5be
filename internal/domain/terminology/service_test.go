package terminology

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// -- Mock repository --

type mockLOINCRepo struct {
	entries map[string]string
}

func newMockLOINCRepo() *mockLOINCRepo {
	return &mockLOINCRepo{entries: make(map[string]string)}
}

func (m *mockLOINCRepo) GetByCode(_ context.Context, code string) (*LOINCEntry, error) {
	name, ok := m.entries[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &LOINCEntry{Code: code, CommonName: name}, nil
}

func (m *mockLOINCRepo) Upsert(_ context.Context, entries []*LOINCEntry) error {
	for _, e := range entries {
		m.entries[e.Code] = e.CommonName
	}
	return nil
}

func (m *mockLOINCRepo) Count(_ context.Context) (int, error) {
	return len(m.entries), nil
}

// -- Tests --

func TestLookupName(t *testing.T) {
	repo := newMockLOINCRepo()
	repo.entries["4548-4"] = "Hemoglobin A1c/Hemoglobin.total in Blood"
	s := NewService(repo)
	ctx := context.Background()

	name, err := s.LookupName(ctx, "4548-4")
	if err != nil {
		t.Fatalf("LookupName() error: %v", err)
	}
	if name != "Hemoglobin A1c/Hemoglobin.total in Blood" {
		t.Errorf("LookupName() = %q", name)
	}
}

// An unseeded code is always ErrNotFound, never any other failure.
func TestLookupName_Unseeded(t *testing.T) {
	s := NewService(newMockLOINCRepo())

	for i := 0; i < 3; i++ {
		_, err := s.LookupName(context.Background(), "0000-0")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("LookupName() error = %v, want ErrNotFound", err)
		}
	}
}

func TestLookupName_EmptyCode(t *testing.T) {
	s := NewService(newMockLOINCRepo())
	if _, err := s.LookupName(context.Background(), ""); err == nil {
		t.Error("LookupName(\"\") succeeded, want error")
	}
}

func TestImportCSV(t *testing.T) {
	csv := strings.Join([]string{
		`"LOINC_NUM","COMPONENT","LONG_COMMON_NAME"`,
		`"4548-4","Hemoglobin A1c","Hemoglobin A1c/Hemoglobin.total in Blood"`,
		`"2345-7","Glucose","Glucose [Mass/volume] in Serum or Plasma"`,
		`"9999-9","Incomplete",""`, // missing name: skipped
		`"","Orphan","No code"`,    // missing code: skipped
	}, "\n")

	repo := newMockLOINCRepo()
	s := NewService(repo)
	ctx := context.Background()

	n, err := s.ImportCSV(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV() error: %v", err)
	}
	if n != 2 {
		t.Errorf("ImportCSV() = %d entries, want 2", n)
	}

	name, err := s.LookupName(ctx, "2345-7")
	if err != nil {
		t.Fatalf("LookupName() after import error: %v", err)
	}
	if name != "Glucose [Mass/volume] in Serum or Plasma" {
		t.Errorf("LookupName() = %q", name)
	}
}

func TestImportCSV_Idempotent(t *testing.T) {
	csv := "LOINC_NUM,LONG_COMMON_NAME\n4548-4,Hemoglobin A1c\n"

	repo := newMockLOINCRepo()
	s := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.ImportCSV(ctx, strings.NewReader(csv)); err != nil {
			t.Fatalf("ImportCSV() round %d error: %v", i, err)
		}
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d after re-import, want 1", n)
	}
}

func TestImportCSV_MissingColumns(t *testing.T) {
	s := NewService(newMockLOINCRepo())
	_, err := s.ImportCSV(context.Background(), strings.NewReader("CODE,NAME\n1,foo\n"))
	if err == nil {
		t.Error("ImportCSV() succeeded without the expected header columns")
	}
}
