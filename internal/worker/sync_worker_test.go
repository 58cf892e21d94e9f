package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/notify"
)

type fakeExporter struct {
	err    error
	months []core.DateRange
}

func (f *fakeExporter) ExportMonth(_ context.Context, month core.DateRange) error {
	f.months = append(f.months, month)
	return f.err
}

var fixedNow = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func newWorker(exp MonthExporter) *SyncWorker {
	w := NewSyncWorker(exp, time.UTC, log.Discard())
	w.now = func() time.Time { return fixedNow }
	return w
}

func change(kind, date string, at time.Time) *amqp.RecordChange {
	msg := amqp.NewRecordChange(notify.Event{Kind: kind, RecordID: 4, Date: date, At: at})
	return msg
}

func TestHandleRecordChangeExportsMonth(t *testing.T) {
	tests := []struct {
		name string
		msg  *amqp.RecordChange
		want core.DateRange
	}{
		{"created", change(notify.KindCreated, "2024-05-20", fixedNow), core.DateRange{Start: "2024-05-01", End: "2024-05-31"}},
		{"deleted in february", change(notify.KindDeleted, "2024-02-10", fixedNow), core.DateRange{Start: "2024-02-01", End: "2024-02-29"}},
		{"references use current month", change(notify.KindReferences, "", fixedNow), core.DateRange{Start: "2024-06-01", End: "2024-06-30"}},
		{"reloaded uses current month", change(notify.KindReloaded, "", fixedNow), core.DateRange{Start: "2024-06-01", End: "2024-06-30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExporter{}
			if err := newWorker(exp).HandleRecordChange(context.Background(), tt.msg); err != nil {
				t.Fatalf("HandleRecordChange: %v", err)
			}
			if len(exp.months) != 1 || exp.months[0] != tt.want {
				t.Fatalf("exported %v, want %v", exp.months, tt.want)
			}
		})
	}
}

func TestHandleRecordChangeWithoutDateIsBad(t *testing.T) {
	exp := &fakeExporter{}
	err := newWorker(exp).HandleRecordChange(context.Background(), change(notify.KindUpdated, "", fixedNow))
	if !errors.Is(err, amqp.ErrBadMessage) {
		t.Fatalf("expected ErrBadMessage, got %v", err)
	}
	if len(exp.months) != 0 {
		t.Fatal("nothing should be exported")
	}
}

func TestHandleRecordChangeRequeuesSinkFailure(t *testing.T) {
	exp := &fakeExporter{err: errors.New("sheets quota")}
	w := newWorker(exp)
	msg := change(notify.KindCreated, "2024-05-20", fixedNow.Add(-time.Minute))

	err := w.HandleRecordChange(context.Background(), msg)
	if err == nil || errors.Is(err, amqp.ErrBadMessage) {
		t.Fatalf("sink failure must be retryable, got %v", err)
	}
	if _, ok := w.Cache().Get("20240501_20240531"); ok {
		t.Fatal("failed export must not be remembered")
	}

	exp.err = nil
	if err := w.HandleRecordChange(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(exp.months) != 2 {
		t.Fatalf("expected a retry export, got %d", len(exp.months))
	}
}

func TestHandleRecordChangeSkipsStaleChanges(t *testing.T) {
	exp := &fakeExporter{}
	w := newWorker(exp)
	ctx := context.Background()

	if err := w.HandleRecordChange(ctx, change(notify.KindCreated, "2024-05-20", fixedNow.Add(-time.Minute))); err != nil {
		t.Fatal(err)
	}
	// changed before the export started, so already mirrored
	if err := w.HandleRecordChange(ctx, change(notify.KindUpdated, "2024-05-02", fixedNow.Add(-time.Second))); err != nil {
		t.Fatal(err)
	}
	if len(exp.months) != 1 {
		t.Fatalf("stale change re-exported: %v", exp.months)
	}

	// changed after the export started
	if err := w.HandleRecordChange(ctx, change(notify.KindUpdated, "2024-05-02", fixedNow.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	if len(exp.months) != 2 {
		t.Fatalf("newer change not exported: %v", exp.months)
	}
}

func TestStartupSync(t *testing.T) {
	exp := &fakeExporter{}
	w := NewSyncWorker(exp, time.UTC, nil)
	w.now = func() time.Time { return time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC) }

	if err := w.StartupSync(context.Background()); err != nil {
		t.Fatalf("StartupSync: %v", err)
	}
	want := []core.DateRange{
		{Start: "2024-02-01", End: "2024-02-29"},
		{Start: "2024-03-01", End: "2024-03-31"},
	}
	if len(exp.months) != 2 || exp.months[0] != want[0] || exp.months[1] != want[1] {
		t.Fatalf("exported %v, want %v", exp.months, want)
	}

	exp.err = errors.New("bucket gone")
	if err := w.StartupSync(context.Background()); err == nil {
		t.Fatal("expected startup error")
	}
}
