// Package worker turns record change events into month exports.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/notify"
)

// MonthExporter writes one month to the configured sinks.
type MonthExporter interface {
	ExportMonth(ctx context.Context, month core.DateRange) error
}

// SyncWorker mirrors the month of every change it is told about.
type SyncWorker struct {
	exporter MonthExporter
	loc      *time.Location
	logger   *log.Logger
	now      func() time.Time

	// exported remembers when each month's last successful export started.
	// A change older than that is already in the mirror.
	exported *cache.LRUCache[time.Time]
}

func NewSyncWorker(exporter MonthExporter, loc *time.Location, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SyncWorker{
		exporter: exporter,
		loc:      loc,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
		exported: cache.NewLRUCache[time.Time](64, 24*time.Hour),
	}
}

// Cache exposes the export bookkeeping so it can be swept with the other caches.
func (w *SyncWorker) Cache() *cache.LRUCache[time.Time] {
	return w.exported
}

// HandleRecordChange exports the month the change belongs to. Reference and reload
// events carry no date and export the current month.
func (w *SyncWorker) HandleRecordChange(ctx context.Context, msg *amqp.RecordChange) error {
	month, err := w.monthOf(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", amqp.ErrBadMessage, err)
	}

	if last, ok := w.exported.Get(month.Key()); ok && !msg.Timestamp.IsZero() && last.After(msg.Timestamp) {
		w.logger.DebugContext(ctx, "Month already exported after this change",
			log.FieldEventID, msg.EventID, log.FieldRange, month.String())
		return nil
	}

	w.logger.InfoContext(ctx, "Processing record change",
		log.FieldEventID, msg.EventID,
		log.FieldOperation, msg.Kind,
		log.FieldRecordID, msg.RecordID,
		log.FieldRange, month.String())

	if err := w.export(ctx, month); err != nil {
		if errors.Is(err, core.ErrInvalidRange) {
			return fmt.Errorf("%w: %v", amqp.ErrBadMessage, err)
		}
		return fmt.Errorf("export %s: %w", month, err)
	}
	return nil
}

// StartupSync exports the current and the previous month. It recovers changes
// published while the worker was down.
func (w *SyncWorker) StartupSync(ctx context.Context) error {
	now := w.now().In(w.loc)
	current := core.MonthRange(now)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, w.loc)
	previous := core.MonthRange(first.AddDate(0, -1, 0))

	var errs []error
	for _, month := range []core.DateRange{previous, current} {
		if err := w.export(ctx, month); err != nil {
			w.logger.ErrorContext(ctx, "Startup export failed", log.FieldRange, month.String(), log.FieldError, err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		w.logger.InfoContext(ctx, "Startup sync completed", log.FieldRange, previous.Start+" ~ "+current.End)
	}
	return errors.Join(errs...)
}

func (w *SyncWorker) export(ctx context.Context, month core.DateRange) error {
	started := w.now()
	if err := w.exporter.ExportMonth(ctx, month); err != nil {
		return err
	}
	w.exported.Set(month.Key(), started)
	return nil
}

func (w *SyncWorker) monthOf(msg *amqp.RecordChange) (core.DateRange, error) {
	switch {
	case msg.Date != "":
		return msg.Month()
	case msg.Kind == notify.KindReferences || msg.Kind == notify.KindReloaded:
		return core.MonthRange(w.now().In(w.loc)), nil
	default:
		return core.DateRange{}, fmt.Errorf("%s event without a date", msg.Kind)
	}
}
