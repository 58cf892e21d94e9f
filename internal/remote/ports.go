// Package remote defines the ports to the authoritative record store.
//
// The same interfaces are implemented by the HTTP client used by the UI and
// CLI (httpapi) and by the server-side backends (memory, storage).
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gagyebu/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid request")
)

// Ports for outbound adapters.
type (
	RecordLister interface {
		// ListRecords returns the records dated inside r. Empty bounds are open.
		ListRecords(ctx context.Context, r core.DateRange) ([]core.Record, error)
	}

	ReferenceReader interface {
		References(ctx context.Context, kind core.ReferenceKind) (core.ReferenceSet, error)
	}

	RecordWriter interface {
		CreateRecord(ctx context.Context, c core.Creation) (core.Record, error)
		// PatchRecord changes one field and returns the full, updated record.
		PatchRecord(ctx context.Context, id int64, c core.Change) (core.Record, error)
		DeleteRecord(ctx context.Context, id int64) error
	}

	ReferenceWriter interface {
		CreateReference(ctx context.Context, kind core.ReferenceKind, label string) (core.Reference, error)
		RenameReference(ctx context.Context, kind core.ReferenceKind, id int64, label string) (core.Reference, error)
		// DeleteReference fails with ErrConflict while records still use the reference.
		DeleteReference(ctx context.Context, kind core.ReferenceKind, id int64) error
	}

	// API is what an editing client needs from the record store.
	API interface {
		RecordLister
		ReferenceReader
		RecordWriter
	}

	// Store is the full surface served by the record API.
	Store interface {
		API
		ReferenceWriter
	}
)

// StatusError is a non-2xx answer from the record API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("record api: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("record api: %d %s", e.Code, e.Message)
}

// Unwrap maps well known status codes onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalid
	}
	return nil
}

// StatusCode maps a store error onto the HTTP status the record API answers with.
func StatusCode(err error) int {
	var se *StatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se):
		return se.Code
	case core.IsValidation(err), errors.Is(err, ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
