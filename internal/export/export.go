// Package export mirrors month snapshots of the ledger to outside systems.
package export

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/remote"
)

// Header is the first row of every exported table.
var Header = []string{"date", "category", "method", "amount", "user", "memo"}

// Snapshot is every record of one month, oldest first.
type Snapshot struct {
	Month   core.DateRange
	Records []core.Record
	At      time.Time
}

// Label is the YYYY-MM the snapshot covers.
func (s Snapshot) Label() string {
	if len(s.Month.Start) < 7 {
		return s.Month.Start
	}
	return s.Month.Start[:7]
}

// Rows renders the snapshot as a table with a header row.
func (s Snapshot) Rows() [][]string {
	rows := make([][]string, 0, len(s.Records)+1)
	rows = append(rows, Header)
	for _, r := range s.Records {
		rows = append(rows, []string{r.Date, r.Category, r.Method, strconv.FormatInt(r.Amount, 10), r.User, r.Memo})
	}
	return rows
}

// WriteCSV writes the snapshot table to w.
func (s Snapshot) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(s.Rows()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Sink receives month snapshots. Writing the same month twice replaces the earlier copy.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap Snapshot) error
}

// Exporter loads a month from the record API and hands it to every sink.
type Exporter struct {
	source remote.RecordLister
	sinks  []Sink
	logger *log.Logger
	now    func() time.Time
}

func NewExporter(source remote.RecordLister, logger *log.Logger, sinks ...Sink) *Exporter {
	if logger == nil {
		logger = log.Discard()
	}
	return &Exporter{
		source: source,
		sinks:  sinks,
		logger: logger.WithComponent(log.ComponentExport),
		now:    time.Now,
	}
}

// Sinks lists the configured sink names.
func (e *Exporter) Sinks() []string {
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.Name()
	}
	return names
}

// Snapshot fetches the month and orders it oldest first.
func (e *Exporter) Snapshot(ctx context.Context, month core.DateRange) (Snapshot, error) {
	if err := month.Validate(); err != nil {
		return Snapshot{}, err
	}
	recs, err := e.source.ListRecords(ctx, month)
	if err != nil {
		return Snapshot{}, &core.FetchFailure{Resource: "records", Err: err}
	}
	slices.SortStableFunc(recs, func(a, b core.Record) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return Snapshot{Month: month, Records: recs, At: e.now()}, nil
}

// ExportMonth writes the month to every sink concurrently. One failing sink does not
// stop the others; the returned error joins every sink failure.
func (e *Exporter) ExportMonth(ctx context.Context, month core.DateRange) error {
	snap, err := e.Snapshot(ctx, month)
	if err != nil {
		return err
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range e.sinks {
		g.Go(func() error {
			start := time.Now()
			err := sink.Write(ctx, snap)
			outcome := "ok"
			if err != nil {
				outcome = "failed"
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
				mu.Unlock()
				e.logger.ErrorContext(ctx, "Export failed",
					log.FieldSink, sink.Name(), log.FieldRange, month.String(), log.FieldError, err)
			} else {
				e.logger.InfoContext(ctx, "Exported month",
					log.FieldSink, sink.Name(), log.FieldRange, month.String(),
					log.FieldCount, len(snap.Records), log.FieldDuration, time.Since(start).Milliseconds())
			}
			metrics.ExportRuns.WithLabelValues(sink.Name(), outcome).Inc()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// LogSink writes a one-line summary of each snapshot to the logger.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Discard()
	}
	return &LogSink{logger: logger.WithComponent(log.ComponentExport)}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(ctx context.Context, snap Snapshot) error {
	sum := core.Summarize(slices.Values(snap.Records))
	top, _ := sum.TopCategory()
	s.logger.InfoContext(ctx, "Month snapshot",
		log.FieldRange, snap.Label(),
		log.FieldCount, sum.Count,
		log.FieldAmount, sum.Total,
		"top_category", top.Name)
	return nil
}
