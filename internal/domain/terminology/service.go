package terminology

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Service provides LOINC catalog lookup and seeding.
type Service struct {
	loinc LOINCRepository
}

func NewService(loinc LOINCRepository) *Service {
	return &Service{loinc: loinc}
}

// LookupName returns the long common name for a LOINC code. An unseeded
// code is ErrNotFound, never any other failure; callers display their own
// "no name available" placeholder.
func (s *Service) LookupName(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("code is required")
	}
	e, err := s.loinc.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return e.CommonName, nil
}

// Count returns the number of catalog entries.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.loinc.Count(ctx)
}

const importBatchSize = 500

// ImportCSV streams a LOINC table export and upserts its codes and long
// common names. The header row locates the LOINC_NUM and LONG_COMMON_NAME
// columns; rows missing either field are skipped. Returns the number of
// entries imported.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}

	codeIdx, nameIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "LOINC_NUM":
			codeIdx = i
		case "LONG_COMMON_NAME":
			nameIdx = i
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return 0, fmt.Errorf("csv header missing LOINC_NUM or LONG_COMMON_NAME columns")
	}

	total := 0
	batch := make([]*LOINCEntry, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.loinc.Upsert(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("read csv record: %w", err)
		}
		if codeIdx >= len(record) || nameIdx >= len(record) {
			continue
		}
		code := strings.TrimSpace(record[codeIdx])
		name := strings.TrimSpace(record[nameIdx])
		if code == "" || name == "" {
			continue
		}
		batch = append(batch, &LOINCEntry{Code: code, CommonName: name})
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
