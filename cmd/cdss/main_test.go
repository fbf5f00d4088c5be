package main

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-01-01 08:30", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), false},
		{"2024-01-01T08:30", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), false},
		{"2024-01-01 08:30:15", time.Date(2024, 1, 1, 8, 30, 15, 0, time.UTC), false},
		{"2024-01-01T08:30:00Z", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), false},
		{"  2024-01-01 08:30  ", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC), false},
		{"01/01/2024", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDateTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDateTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("parseDateTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDateTime_Now(t *testing.T) {
	before := time.Now()
	got, err := parseDateTime("now")
	if err != nil {
		t.Fatalf("parseDateTime(now) error: %v", err)
	}
	if got.Before(before) || got.After(time.Now()) {
		t.Errorf("parseDateTime(now) = %v, not current", got)
	}
	if _, err := parseDateTime("NOW"); err != nil {
		t.Errorf("parseDateTime(NOW) error: %v", err)
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("1980-05-20")
	if err != nil {
		t.Fatalf("parseDate() error: %v", err)
	}
	if !got.Equal(time.Date(1980, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseDate() = %v", got)
	}
	if _, err := parseDate("20/05/1980"); err == nil {
		t.Error("parseDate() accepted a non-ISO date")
	}
}

func TestFmtTime(t *testing.T) {
	if got := fmtTime(nil); got != "None" {
		t.Errorf("fmtTime(nil) = %q, want None", got)
	}
	ts := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	if got := fmtTime(&ts); got != "2024-01-01 08:30" {
		t.Errorf("fmtTime() = %q", got)
	}
}
