// Package editor implements pessimistic single-cell edits, additions and deletions
// against the record API, reconciling the local collection only after the server
// has accepted a change.
//
// A Controller is not safe for concurrent use; the session package serialises access.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/notify"
	"gagyebu/internal/records"
	"gagyebu/internal/remote"
)

var (
	ErrNoSession          = errors.New("no cell is being edited")
	ErrCommitInFlight     = errors.New("a commit is already in flight")
	ErrUnknownRecord      = errors.New("record is not in the collection")
	ErrDeleteNotConfirmed = errors.New("delete was not confirmed")

	// ErrStaleCell is input addressed to a cell that is no longer open, such as a
	// blur that arrives after another cell was opened. The input is dropped.
	ErrStaleCell = fmt.Errorf("%w: input belongs to another cell", ErrNoSession)
)

// Controller owns the edit session and applies confirmed changes to the store.
type Controller struct {
	store    *records.Store
	api      remote.RecordWriter
	lookups  core.Lookups
	notifier notify.Notifier
	logger   *log.Logger
	events   *log.StructuredLogger
	now      func() time.Time

	session Session
}

type Option func(*Controller)

func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentEditor)
		}
	}
}

func WithLookups(l core.Lookups) Option {
	return func(c *Controller) { c.lookups = l }
}

func New(store *records.Store, api remote.RecordWriter, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		api:      api,
		notifier: notify.Nop{},
		logger:   log.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = log.NewStructuredLogger(c.logger)
	return c
}

// Session returns a copy of the current edit session.
func (c *Controller) Session() Session {
	return c.session
}

// Lookups returns the reference sets edits are validated against.
func (c *Controller) Lookups() core.Lookups {
	return c.lookups
}

// SetLookups swaps the reference sets used by later commits.
func (c *Controller) SetLookups(l core.Lookups) {
	c.lookups = l
}

// BeginEdit opens the cell (recordID, field) with current as the initial draft.
// An open session on another cell is committed first; if that commit fails the
// new cell is not opened and the error is returned.
func (c *Controller) BeginEdit(ctx context.Context, recordID int64, field core.FieldKind, current string) error {
	if !field.IsValid() {
		return core.ErrUnknownField
	}
	if c.session.Status == StatusCommitting {
		return ErrCommitInFlight
	}
	if _, ok := c.store.Get(recordID); !ok {
		return ErrUnknownRecord
	}
	if c.session.Open() {
		if c.session.Editing(recordID, field) {
			return nil
		}
		if err := c.Commit(ctx); err != nil {
			return err
		}
	}
	c.session = Session{
		RecordID: recordID,
		Field:    field,
		Pending:  current,
		Status:   StatusEditing,
	}
	return nil
}

// UpdateDraft replaces the pending value. A previous error message stays until the next commit.
func (c *Controller) UpdateDraft(value string) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	c.session.Pending = value
	return nil
}

// Cancel discards the draft and any error.
func (c *Controller) Cancel() error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	c.session = Session{}
	return nil
}

// Commit validates the draft, sends the one changed field and applies the
// server's full record to the store on success.
func (c *Controller) Commit(ctx context.Context) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	s := c.session
	rec, ok := c.store.Get(s.RecordID)
	if !ok {
		c.session = Session{}
		return ErrUnknownRecord
	}
	field, _ := core.FieldOf(s.Field)
	label := s.Field.String()

	change, err := field.Translate(s.Pending, c.lookups)
	if err != nil {
		metrics.EditorValidationErrors.WithLabelValues(label).Inc()
		metrics.EditorCommits.WithLabelValues(label, metrics.OutcomeInvalid).Inc()
		c.fail(err, validationMessage(err))
		c.events.LogCommit(ctx, s.RecordID, label, metrics.OutcomeInvalid, err)
		return err
	}
	if change.Unchanged(rec) {
		metrics.EditorCommits.WithLabelValues(label, metrics.OutcomeUnchanged).Inc()
		c.session = Session{}
		return nil
	}

	c.session.Status = StatusCommitting
	updated, err := c.api.PatchRecord(ctx, s.RecordID, change)
	if err != nil {
		failure := &core.CommitFailure{Op: core.OpPatch, RecordID: s.RecordID, Err: err}
		metrics.EditorCommits.WithLabelValues(label, metrics.OutcomeFailed).Inc()
		c.fail(failure, "could not save: "+err.Error())
		c.events.LogCommit(ctx, s.RecordID, label, metrics.OutcomeFailed, err)
		return failure
	}

	c.store.ApplyPatch(s.RecordID, updated)
	c.session = Session{}
	metrics.EditorCommits.WithLabelValues(label, metrics.OutcomeSaved).Inc()
	c.events.LogCommit(ctx, s.RecordID, label, metrics.OutcomeSaved, nil)
	c.publish(ctx, notify.KindUpdated, s.RecordID, updated.Date)
	return nil
}

// Blur commits the open draft, if any, because the cell lost focus.
func (c *Controller) Blur(ctx context.Context) error {
	if !c.session.Open() {
		return nil
	}
	return c.Commit(ctx)
}

// HandleKey reacts to a keystroke inside the open cell. Accept commits single-line
// fields; on multi-line fields it is part of the text and ignored here.
func (c *Controller) HandleKey(ctx context.Context, key Key) error {
	if !c.session.Open() {
		return nil
	}
	switch key {
	case KeyAccept:
		if f, _ := core.FieldOf(c.session.Field); f.AcceptKey {
			return c.Commit(ctx)
		}
	case KeyAbort:
		return c.Cancel()
	}
	return nil
}

// Apply runs action on the open cell (recordID, field), first replacing the draft
// with value when value is non-nil. Input for any other cell returns ErrStaleCell
// and leaves the session untouched.
func (c *Controller) Apply(ctx context.Context, recordID int64, field core.FieldKind, value *string, action Action) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	if c.session.RecordID != recordID || c.session.Field != field {
		c.logger.Fields(ctx, slog.LevelDebug, "Dropped input for a closed cell",
			log.NewFields().WithCell(recordID, field.String()).WithOperation(action.String()))
		return ErrStaleCell
	}
	if action == ActionCancel {
		return c.Cancel()
	}
	if value != nil {
		c.session.Pending = *value
	}
	switch action {
	case ActionCommit, ActionBlur:
		return c.Commit(ctx)
	case ActionAccept:
		return c.HandleKey(ctx, KeyAccept)
	}
	return nil
}

// Add validates the form, creates the record remotely and inserts the server's answer.
func (c *Controller) Add(ctx context.Context, form core.NewRecord) (core.Record, error) {
	creation, err := form.Validate()
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			metrics.EditorValidationErrors.WithLabelValues(ve.Field.String()).Inc()
		}
		return core.Record{}, err
	}

	rec, err := c.api.CreateRecord(ctx, creation)
	if err != nil {
		c.logger.WarnContext(ctx, "Record create failed", log.FieldOperation, log.OpCreate, log.FieldError, err)
		return core.Record{}, &core.CommitFailure{Op: core.OpCreate, Err: err}
	}
	if err := c.store.Insert(rec); err != nil {
		return core.Record{}, &core.CommitFailure{Op: core.OpCreate, Err: fmt.Errorf("server response: %w", err)}
	}

	c.logger.InfoContext(ctx, "Record created", log.FieldRecordID, rec.ID, log.FieldAmount, rec.Amount)
	c.publish(ctx, notify.KindCreated, rec.ID, rec.Date)
	return rec, nil
}

// Delete removes the record remotely, then locally. Nothing is sent unless confirmed.
// Failures are CommitFailures with Op delete, to be shown as an alert.
func (c *Controller) Delete(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrDeleteNotConfirmed
	}
	if c.session.Status == StatusCommitting && c.session.RecordID == id {
		return ErrCommitInFlight
	}
	if err := c.api.DeleteRecord(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "Record delete failed", log.FieldRecordID, id, log.FieldError, err)
		return &core.CommitFailure{Op: core.OpDelete, RecordID: id, Err: err}
	}

	rec, _ := c.store.Get(id)
	c.store.Remove(id)
	if c.session.Status != StatusIdle && c.session.RecordID == id {
		c.session = Session{}
	}
	c.logger.InfoContext(ctx, "Record deleted", log.FieldRecordID, id)
	c.publish(ctx, notify.KindDeleted, id, rec.Date)
	return nil
}

func (c *Controller) requireOpen() error {
	switch c.session.Status {
	case StatusEditing, StatusError:
		return nil
	case StatusCommitting:
		return ErrCommitInFlight
	}
	return ErrNoSession
}

func (c *Controller) fail(err error, msg string) {
	c.session.Status = StatusError
	c.session.Err = err
	c.session.Message = msg
}

func (c *Controller) publish(ctx context.Context, kind string, id int64, date string) {
	ev := notify.Event{Kind: kind, RecordID: id, Date: date, At: c.now()}
	if err := c.notifier.Notify(ctx, ev); err != nil {
		c.logger.Fields(ctx, slog.LevelWarn, "Refresh notification failed",
			log.NewFields().WithRecordID(id).WithOperation(kind).WithError(err))
	}
}

func validationMessage(err error) string {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return ve.Message()
	}
	return err.Error()
}
