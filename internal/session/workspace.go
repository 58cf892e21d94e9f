// Package session runs the collection store and the edit controller on a single
// goroutine. Every state transition is a command processed in arrival order, so
// neither records nor editor need locks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/core"
	"gagyebu/internal/editor"
	"gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/notify"
	"gagyebu/internal/records"
	"gagyebu/internal/remote"
)

var (
	ErrNotRunning     = errors.New("workspace is not running")
	ErrAlreadyRunning = errors.New("workspace is already running")
)

// Invalidator is implemented by clients that cache reference lists.
type Invalidator interface {
	Invalidate()
}

// Snapshot is a consistent copy of the workspace state for rendering.
type Snapshot struct {
	Range   core.DateRange
	Rows    []core.Record // newest first
	Session editor.Session
	Lookups core.Lookups
	Summary core.Summary
	// LoadErr is the FetchFailure of the last load, if it failed.
	LoadErr error
}

// Row returns the record with the given id.
func (s Snapshot) Row(id int64) (core.Record, bool) {
	i := slices.IndexFunc(s.Rows, func(r core.Record) bool { return r.ID == id })
	if i < 0 {
		return core.Record{}, false
	}
	return s.Rows[i], true
}

type command struct {
	ctx   context.Context
	run   func(ctx context.Context) error
	reply chan error
}

// Workspace owns one household's local state.
type Workspace struct {
	api      remote.API
	store    *records.Store
	ctrl     *editor.Controller
	notifier notify.Notifier
	changes  *notify.Version
	logger   *log.Logger

	rng     core.DateRange
	loadErr error

	cmds chan command

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a stopped workspace. Every accepted change and every load is
// announced to notifier, which may be nil, and counted by Version.
func New(api remote.API, notifier notify.Notifier, logger *log.Logger) *Workspace {
	if logger == nil {
		logger = log.Discard()
	}
	store := records.New()
	changes := &notify.Version{}
	all := notify.Multi{changes, notifier}
	return &Workspace{
		api:      api,
		store:    store,
		ctrl:     editor.New(store, api, editor.WithNotifier(all), editor.WithLogger(logger)),
		notifier: all,
		changes:  changes,
		logger:   logger.WithComponent(log.ComponentSession),
		cmds:     make(chan command),
	}
}

// Version counts the changes announced so far. A renderer compares it before
// and after a command to tell whether sibling views need refreshing.
func (w *Workspace) Version() uint64 {
	return w.changes.Current()
}

// Start launches the command loop. It stops when ctx is done or Stop is called.
func (w *Workspace) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop ends the loop after the command in progress, if any.
func (w *Workspace) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Workspace) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case cmd := <-w.cmds:
			if err := cmd.ctx.Err(); err != nil {
				cmd.reply <- err
				continue
			}
			err := cmd.run(cmd.ctx)
			metrics.RecordsLoaded.Set(float64(w.store.Len()))
			cmd.reply <- err
		}
	}
}

// exec hands fn to the loop and waits for its result. Once accepted, fn runs to
// completion; cancelling ctx only aborts the network calls fn makes.
func (w *Workspace) exec(ctx context.Context, fn func(ctx context.Context) error) error {
	w.mu.Lock()
	running, done := w.running, w.doneCh
	w.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	cmd := command{ctx: ctx, run: fn, reply: make(chan error, 1)}
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrNotRunning
	}
	return <-cmd.reply
}

// Load fetches both reference lists and the records of rng, replacing the local collection.
// A failed fetch leaves an empty collection and is reported as a FetchFailure.
func (w *Workspace) Load(ctx context.Context, rng core.DateRange) error {
	if err := rng.Validate(); err != nil {
		return err
	}
	return w.exec(ctx, func(ctx context.Context) error {
		return w.load(ctx, rng)
	})
}

// Refresh drops cached reference lists and loads the current range again.
func (w *Workspace) Refresh(ctx context.Context) error {
	return w.exec(ctx, func(ctx context.Context) error {
		if inv, ok := w.api.(Invalidator); ok {
			inv.Invalidate()
		}
		return w.load(ctx, w.rng)
	})
}

func (w *Workspace) load(ctx context.Context, rng core.DateRange) error {
	var (
		recs []core.Record
		refs core.Lookups
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		set, err := w.api.References(gctx, core.KindCategory)
		if err != nil {
			return &core.FetchFailure{Resource: string(core.KindCategory), Err: err}
		}
		refs.Categories = set
		return nil
	})
	g.Go(func() error {
		set, err := w.api.References(gctx, core.KindMethod)
		if err != nil {
			return &core.FetchFailure{Resource: string(core.KindMethod), Err: err}
		}
		refs.Methods = set
		return nil
	})
	g.Go(func() error {
		list, err := w.api.ListRecords(gctx, rng)
		if err != nil {
			return &core.FetchFailure{Resource: "records", Err: err}
		}
		recs = list
		return nil
	})

	w.rng = rng
	defer w.reloaded(ctx)
	if err := g.Wait(); err != nil {
		w.store.Replace(nil)
		w.loadErr = err
		w.logger.Fields(ctx, slog.LevelWarn, "Load failed",
			log.NewFields().WithOperation(log.OpLoad).WithRange(rng.String()).WithErrorType(log.ErrorTypeNetwork).WithError(err))
		return err
	}

	skipped := w.store.Replace(recs)
	w.ctrl.SetLookups(refs)
	w.loadErr = nil
	if skipped > 0 {
		w.logger.Fields(ctx, slog.LevelWarn, "Skipped records without a unique id", log.NewFields().WithCount(skipped))
	}
	w.logger.Fields(ctx, slog.LevelDebug, "Records loaded",
		log.NewFields().WithOperation(log.OpLoad).WithRange(rng.String()).WithCount(w.store.Len()))
	return nil
}

// reloaded announces that the whole collection was replaced, emptied included.
func (w *Workspace) reloaded(ctx context.Context) {
	ev := notify.Event{Kind: notify.KindReloaded, Date: w.rng.Start, At: time.Now()}
	if err := w.notifier.Notify(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "Reload notification failed", log.FieldError, err)
	}
}

// View returns a snapshot of the current state.
func (w *Workspace) View(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := w.exec(ctx, func(context.Context) error {
		snap = w.snapshot()
		return nil
	})
	return snap, err
}

func (w *Workspace) snapshot() Snapshot {
	return Snapshot{
		Range:   w.rng,
		Rows:    slices.Collect(w.store.SortedByDateDesc()),
		Session: w.ctrl.Session(),
		Lookups: w.ctrl.Lookups(),
		Summary: core.Summarize(w.store.All()),
		LoadErr: w.loadErr,
	}
}

// BeginEdit opens a cell using the stored value as the initial draft.
func (w *Workspace) BeginEdit(ctx context.Context, recordID int64, field core.FieldKind) error {
	return w.exec(ctx, func(ctx context.Context) error {
		f, ok := core.FieldOf(field)
		if !ok {
			return core.ErrUnknownField
		}
		rec, ok := w.store.Get(recordID)
		if !ok {
			return editor.ErrUnknownRecord
		}
		return w.ctrl.BeginEdit(ctx, recordID, field, f.Current(rec))
	})
}

// Apply runs action on the cell (recordID, field) in one command, so a value
// typed into one cell can never reach a cell opened in between. Input for a cell
// that is not open returns editor.ErrStaleCell.
func (w *Workspace) Apply(ctx context.Context, recordID int64, field core.FieldKind, value *string, action editor.Action) error {
	return w.exec(ctx, func(ctx context.Context) error {
		return w.ctrl.Apply(ctx, recordID, field, value, action)
	})
}

// Edit runs a whole cell edit in one command: open, set the draft, commit.
func (w *Workspace) Edit(ctx context.Context, recordID int64, field core.FieldKind, value string) error {
	return w.exec(ctx, func(ctx context.Context) error {
		f, ok := core.FieldOf(field)
		if !ok {
			return core.ErrUnknownField
		}
		rec, ok := w.store.Get(recordID)
		if !ok {
			return editor.ErrUnknownRecord
		}
		if err := w.ctrl.BeginEdit(ctx, recordID, field, f.Current(rec)); err != nil {
			return err
		}
		if err := w.ctrl.UpdateDraft(value); err != nil {
			return err
		}
		if err := w.ctrl.Commit(ctx); err != nil {
			// leave no half-open cell behind for a one-shot edit
			_ = w.ctrl.Cancel()
			return err
		}
		return nil
	})
}

func (w *Workspace) Add(ctx context.Context, form core.NewRecord) (core.Record, error) {
	var rec core.Record
	err := w.exec(ctx, func(ctx context.Context) error {
		var err error
		rec, err = w.ctrl.Add(ctx, form)
		return err
	})
	return rec, err
}

func (w *Workspace) Delete(ctx context.Context, id int64, confirmed bool) error {
	return w.exec(ctx, func(ctx context.Context) error {
		return w.ctrl.Delete(ctx, id, confirmed)
	})
}

// Describe renders a one line state summary, used in logs and by the CLI.
func (s Snapshot) Describe() string {
	return fmt.Sprintf("%s: %d records, total %s", s.Range, len(s.Rows), core.FormatAmount(s.Summary.Total))
}
