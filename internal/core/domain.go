package core

import (
	"regexp"
	"strings"
	"time"
)

// DateLayout is the wire and display layout of every record date.
const DateLayout = "2006-01-02"

const (
	KindCategory ReferenceKind = "categories"
	KindMethod   ReferenceKind = "methods"
)

type (
	// Record is a single expense entry as served by the record API.
	Record struct {
		ID       int64  `json:"id"`
		Date     string `json:"date"`
		Category string `json:"category"`
		Method   string `json:"method"`
		Amount   int64  `json:"amount"`
		User     string `json:"user"`
		Memo     string `json:"memo,omitempty"`
	}

	// Reference is one entry of a category or payment-method list.
	Reference struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	}

	// ReferenceKind names a reference list; its value doubles as the API path segment.
	ReferenceKind string

	ReferenceSet []Reference

	// Lookups is the snapshot of reference lists an edit is validated against.
	Lookups struct {
		Categories ReferenceSet
		Methods    ReferenceSet
	}

	// DateRange is an inclusive [Start, End] window of ISO dates.
	DateRange struct {
		Start string
		End   string
	}
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// HasID reports whether the record carries a server-assigned identifier.
func (r Record) HasID() bool {
	return r.ID > 0
}

func (k ReferenceKind) IsValid() bool {
	return k == KindCategory || k == KindMethod
}

// Field returns the record field a reference list backs.
func (k ReferenceKind) Field() FieldKind {
	if k == KindMethod {
		return FieldMethod
	}
	return FieldCategory
}

// Lookup returns the first reference whose label matches exactly.
func (s ReferenceSet) Lookup(label string) (Reference, bool) {
	for _, ref := range s {
		if ref.Type == label {
			return ref, true
		}
	}
	return Reference{}, false
}

// ByID returns the reference with the given id.
func (s ReferenceSet) ByID(id int64) (Reference, bool) {
	for _, ref := range s {
		if ref.ID == id {
			return ref, true
		}
	}
	return Reference{}, false
}

// Labels returns the display labels in list order.
func (s ReferenceSet) Labels() []string {
	out := make([]string, 0, len(s))
	for _, ref := range s {
		out = append(out, ref.Type)
	}
	return out
}

// Set returns the list backing the given kind.
func (l Lookups) Set(kind ReferenceKind) ReferenceSet {
	if kind == KindMethod {
		return l.Methods
	}
	return l.Categories
}

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// MonthRange returns the first and last day of the month containing t.
func MonthRange(t time.Time) DateRange {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1)
	return DateRange{Start: first.Format(DateLayout), End: last.Format(DateLayout)}
}

// CurrentMonth returns the month range for now in the given location.
func CurrentMonth(loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	return MonthRange(time.Now().In(loc))
}

// MonthOf returns the month range containing the given ISO date.
func MonthOf(date string) (DateRange, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil || !datePattern.MatchString(date) {
		return DateRange{}, ErrInvalidDate
	}
	return MonthRange(t), nil
}

func (r DateRange) Validate() error {
	if !ValidDate(r.Start) || !ValidDate(r.End) {
		return ErrInvalidRange
	}
	if r.Start > r.End {
		return ErrInvalidRange
	}
	return nil
}

// Contains reports whether date falls inside the range. ISO dates order lexically.
// An empty bound is open.
func (r DateRange) Contains(date string) bool {
	if r.Start != "" && date < r.Start {
		return false
	}
	return r.End == "" || date <= r.End
}

func (r DateRange) String() string {
	return r.Start + " ~ " + r.End
}

// Key identifies a range in caches and object names.
func (r DateRange) Key() string {
	return strings.ReplaceAll(r.Start+"_"+r.End, "-", "")
}
