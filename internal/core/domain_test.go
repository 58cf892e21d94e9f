package core

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestValidDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-01", true},
		{"2024-02-29", true},
		{"2023-02-29", false}, // not a leap year
		{"2024-13-01", false},
		{"2024-3-1", false},
		{"24-03-01", false},
		{"2024/03/01", false},
		{"", false},
		{" 2024-03-01", false},
	}
	for _, tc := range cases {
		if got := ValidDate(tc.in); got != tc.ok {
			t.Fatalf("ValidDate(%q) = %v, want %v", tc.in, got, tc.ok)
		}
	}
}

func TestMonthRange(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	cases := []struct {
		at   time.Time
		want DateRange
	}{
		{time.Date(2024, 2, 10, 12, 0, 0, 0, seoul), DateRange{"2024-02-01", "2024-02-29"}},
		{time.Date(2023, 12, 31, 23, 59, 0, 0, seoul), DateRange{"2023-12-01", "2023-12-31"}},
		{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), DateRange{"2024-04-01", "2024-04-30"}},
	}
	for _, tc := range cases {
		if got := MonthRange(tc.at); got != tc.want {
			t.Fatalf("MonthRange(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}

func TestMonthOf(t *testing.T) {
	r, err := MonthOf("2024-03-15")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if r.Start != "2024-03-01" || r.End != "2024-03-31" {
		t.Fatalf("unexpected range %v", r)
	}
	if r.Key() != "20240301_20240331" {
		t.Fatalf("unexpected key %q", r.Key())
	}
	if _, err := MonthOf("2024-3-15"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateRangeValidate(t *testing.T) {
	if err := (DateRange{"2024-03-01", "2024-03-31"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (DateRange{"2024-03-01", "2024-03-01"}).Validate(); err != nil {
		t.Fatalf("single day range should be valid, got %v", err)
	}
	bads := []DateRange{
		{"2024-03-31", "2024-03-01"},
		{"", "2024-03-01"},
		{"2024-03-01", "nope"},
	}
	for i, r := range bads {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("case %d expected ErrInvalidRange, got %v", i, err)
		}
	}
	r := DateRange{"2024-03-01", "2024-03-31"}
	if !r.Contains("2024-03-31") || r.Contains("2024-04-01") {
		t.Fatalf("Contains is not inclusive on both ends")
	}
}

func TestReferenceSetLookup(t *testing.T) {
	set := ReferenceSet{{ID: 1, Type: "식비"}, {ID: 2, Type: "교통"}, {ID: 3, Type: "식비"}}

	ref, ok := set.Lookup("식비")
	if !ok || ref.ID != 1 {
		t.Fatalf("expected first match id 1, got %+v ok=%v", ref, ok)
	}
	if _, ok := set.Lookup("식비 "); ok {
		t.Fatalf("lookup must be exact")
	}
	if ref, ok := set.ByID(2); !ok || ref.Type != "교통" {
		t.Fatalf("ByID(2) = %+v, %v", ref, ok)
	}
	if got := set.Labels(); !slices.Equal(got, []string{"식비", "교통", "식비"}) {
		t.Fatalf("unexpected labels %v", got)
	}
}

func TestReferenceKind(t *testing.T) {
	if !KindCategory.IsValid() || !KindMethod.IsValid() || ReferenceKind("users").IsValid() {
		t.Fatalf("unexpected IsValid results")
	}
	if KindMethod.Field() != FieldMethod || KindCategory.Field() != FieldCategory {
		t.Fatalf("unexpected field mapping")
	}
}
