package core

import (
	"errors"
	"fmt"
)

// Operations a CommitFailure can originate from.
const (
	OpCreate = "create"
	OpPatch  = "patch"
	OpDelete = "delete"
)

var (
	ErrInvalidDate     = errors.New("date must be a valid YYYY-MM-DD date")
	ErrInvalidRange    = errors.New("invalid date range")
	ErrInvalidAmount   = errors.New("amount must be a whole number of at least 0")
	ErrEmptyUser       = errors.New("user name is required")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownMethod   = errors.New("unknown payment method")
	ErrRequired        = errors.New("value is required")
	ErrUnknownField    = errors.New("unknown field")
	ErrMissingID       = errors.New("record has no id")
)

// ValidationError is a local, field-scoped rejection. It never reaches the network.
type ValidationError struct {
	Field FieldKind
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field.String() + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Message is the text shown next to the offending input.
func (e *ValidationError) Message() string {
	return e.Err.Error()
}

func invalid(field FieldKind, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// CommitFailure reports that the record API rejected, or never answered, an otherwise valid change.
// Local state is untouched when one is returned.
type CommitFailure struct {
	Op       string
	RecordID int64
	Err      error
}

func (e *CommitFailure) Error() string {
	if e.RecordID > 0 {
		return fmt.Sprintf("%s record %d: %v", e.Op, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s record: %v", e.Op, e.Err)
}

func (e *CommitFailure) Unwrap() error { return e.Err }

// Alert reports whether the failure has no cell to annotate and must be shown as a blocking alert.
func (e *CommitFailure) Alert() bool {
	return e.Op == OpDelete
}

// FetchFailure reports that a record list or reference list could not be loaded.
type FetchFailure struct {
	Resource string
	Err      error
}

func (e *FetchFailure) Error() string {
	return "fetch " + e.Resource + ": " + e.Err.Error()
}

func (e *FetchFailure) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
