// Package notify tells sibling views that the record collection changed.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"gagyebu/internal/log"
)

// Event kinds.
const (
	KindCreated    = "created"
	KindUpdated    = "updated"
	KindDeleted    = "deleted"
	KindReloaded   = "reloaded"
	KindReferences = "references"
)

// Event describes one change to the record collection.
type Event struct {
	Kind     string
	RecordID int64
	// Date is the record date, used by consumers to pick the affected month.
	Date string
	At   time.Time
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, ev Event) error

func (f Func) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes one entry per event.
func Log(logger *log.Logger) Notifier {
	return Func(func(ctx context.Context, ev Event) error {
		fields := log.NewFields().WithOperation(ev.Kind)
		if ev.RecordID != 0 {
			fields.WithRecordID(ev.RecordID)
		}
		logger.Fields(ctx, slog.LevelInfo, "Records changed", fields)
		return nil
	})
}

// Version counts notifications so a renderer can tell whether its view is stale.
type Version struct {
	n    atomic.Uint64
	last atomic.Pointer[Event]
}

func (v *Version) Notify(_ context.Context, ev Event) error {
	v.last.Store(&ev)
	v.n.Add(1)
	return nil
}

// Current returns the number of events seen so far.
func (v *Version) Current() uint64 {
	return v.n.Load()
}

// Last returns the most recent event.
func (v *Version) Last() (Event, bool) {
	ev := v.last.Load()
	if ev == nil {
		return Event{}, false
	}
	return *ev, true
}
