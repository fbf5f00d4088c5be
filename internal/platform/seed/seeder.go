// Package seed generates demo patients and seeds their observations from a
// CSV of sample measurements.
package seed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cdss/cdss/internal/domain/clinical"
	"github.com/cdss/cdss/internal/domain/identity"
)

// PatientCreator is the slice of the identity service the seeder needs.
type PatientCreator interface {
	CreatePatient(ctx context.Context, p *identity.Patient) error
}

// ObservationAppender is the slice of the clinical service the seeder needs.
type ObservationAppender interface {
	Append(ctx context.Context, patientID int64, code string, value float64, validStart time.Time, validEnd *time.Time) (*clinical.Observation, error)
}

// Summary reports what a seed run created. RunID ties the summary to the
// run's log lines.
type Summary struct {
	RunID        uuid.UUID
	Patients     []*identity.Patient
	Observations []*clinical.Observation
	Skipped      int
}

type sample struct {
	code  string
	value float64
	start time.Time
}

type Seeder struct {
	patients     PatientCreator
	observations ObservationAppender
	rng          *rand.Rand
	log          zerolog.Logger
}

func New(patients PatientCreator, observations ObservationAppender, logger zerolog.Logger) *Seeder {
	return &Seeder{
		patients:     patients,
		observations: observations,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		log:          logger,
	}
}

var (
	maleNames   = []string{"James", "Daniel", "Michael", "David", "Robert", "Thomas", "Joseph", "Charles", "Andrew", "Peter"}
	femaleNames = []string{"Mary", "Sarah", "Emma", "Anna", "Laura", "Rachel", "Claire", "Julia", "Diana", "Helen"}
	lastNames   = []string{"Smith", "Johnson", "Brown", "Taylor", "Miller", "Wilson", "Davis", "Clark", "Walker", "Hall"}
)

const observationsPerPatient = 3

// Run creates n fake patients (half male, half female) and seeds each with
// up to three observations drawn at random from the sample CSV. Each seeded
// observation runs for one minute of valid time, matching the sampling
// cadence of the source data.
func (s *Seeder) Run(ctx context.Context, n int, csvPath string) (*Summary, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	defer f.Close()

	summary := &Summary{RunID: uuid.New()}
	samples, skipped, err := s.readSamples(f)
	if err != nil {
		return nil, err
	}
	summary.Skipped = skipped

	log := s.log.With().Stringer("run_id", summary.RunID).Logger()
	log.Info().Int("samples", len(samples)).Int("skipped", skipped).Msg("loaded sample observations")

	for _, gender := range []string{"M", "F"} {
		for i := 0; i < n/2; i++ {
			p := s.fakePatient(gender)
			if err := s.patients.CreatePatient(ctx, p); err != nil {
				return summary, fmt.Errorf("create patient: %w", err)
			}
			summary.Patients = append(summary.Patients, p)

			for _, sm := range s.pick(samples, observationsPerPatient) {
				end := sm.start.Add(time.Minute)
				o, err := s.observations.Append(ctx, p.ID, sm.code, sm.value, sm.start, &end)
				if err != nil {
					return summary, fmt.Errorf("seed observation for patient %d: %w", p.ID, err)
				}
				summary.Observations = append(summary.Observations, o)
			}
			log.Debug().Int64("patient_id", p.ID).Str("name", p.FullName()).Msg("seeded patient")
		}
	}

	log.Info().
		Int("patients", len(summary.Patients)).
		Int("observations", len(summary.Observations)).
		Msg("seed run complete")
	return summary, nil
}

// readSamples parses the sample CSV (columns LOINC-NUM, Value, Valid start
// time). Rows with a missing field or a non-numeric value are counted and
// skipped, not fatal.
func (s *Seeder) readSamples(r io.Reader) ([]sample, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read sample header: %w", err)
	}
	codeIdx, valueIdx, startIdx := -1, -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "LOINC-NUM":
			codeIdx = i
		case "Value":
			valueIdx = i
		case "Valid start time":
			startIdx = i
		}
	}
	if codeIdx < 0 || valueIdx < 0 || startIdx < 0 {
		return nil, 0, fmt.Errorf("sample csv missing LOINC-NUM, Value or Valid start time columns")
	}

	var samples []sample
	skipped := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read sample record: %w", err)
		}
		if codeIdx >= len(record) || valueIdx >= len(record) || startIdx >= len(record) {
			skipped++
			continue
		}
		code := strings.TrimSpace(record[codeIdx])
		value, verr := strconv.ParseFloat(strings.TrimSpace(record[valueIdx]), 64)
		start, terr := parseSampleTime(strings.TrimSpace(record[startIdx]))
		if code == "" || verr != nil || terr != nil {
			s.log.Warn().Strs("record", record).Msg("skipping unusable sample row")
			skipped++
			continue
		}
		samples = append(samples, sample{code: code, value: value, start: start})
	}
	return samples, skipped, nil
}

var sampleTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseSampleTime(s string) (time.Time, error) {
	for _, layout := range sampleTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func (s *Seeder) fakePatient(gender string) *identity.Patient {
	first := maleNames[s.rng.Intn(len(maleNames))]
	if gender == "F" {
		first = femaleNames[s.rng.Intn(len(femaleNames))]
	}
	ageYears := 20 + s.rng.Intn(61) // 20..80
	birth := time.Now().AddDate(-ageYears, 0, -s.rng.Intn(365))
	return &identity.Patient{
		FirstName: first,
		LastName:  lastNames[s.rng.Intn(len(lastNames))],
		Gender:    gender,
		BirthDate: birth,
	}
}

// pick returns up to k samples drawn without replacement.
func (s *Seeder) pick(samples []sample, k int) []sample {
	if len(samples) <= k {
		return samples
	}
	idx := s.rng.Perm(len(samples))[:k]
	out := make([]sample, 0, k)
	for _, i := range idx {
		out = append(out, samples[i])
	}
	return out
}
