package http

import (
	"errors"
	"html/template"
	"strings"

	"gagyebu/internal/core"
	"gagyebu/internal/editor"
	"gagyebu/internal/session"
)

// sanitizeInput drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func escape(s string) string {
	return template.HTMLEscapeString(s)
}

var templateFuncs = template.FuncMap{
	"amount": core.FormatAmount,
	"share": func(s core.Summary, t core.Total) int {
		return s.Share(t)
	},
}

type (
	cellView struct {
		RecordID   int64
		Field      string
		Input      string
		Value      string
		Options    []string
		Multiline  bool
		Editing    bool
		Committing bool
		Error      string
	}

	rowView struct {
		ID    int64
		Date  string
		Cells []cellView
	}

	tableView struct {
		Range     core.DateRange
		Rows      []rowView
		LoadError string
		Total     int64
	}

	formView struct {
		Today      string
		Categories []core.Reference
		Methods    []core.Reference
	}

	pageView struct {
		Table   tableView
		Summary core.Summary
		Form    formView
	}
)

func newTableView(snap session.Snapshot) tableView {
	t := tableView{Range: snap.Range, Total: snap.Summary.Total}
	if snap.LoadErr != nil {
		t.LoadError = "기록을 불러오지 못했습니다: " + snap.LoadErr.Error()
	}
	fields := core.Fields()
	for _, rec := range snap.Rows {
		row := rowView{ID: rec.ID, Date: rec.Date, Cells: make([]cellView, 0, len(fields))}
		for _, f := range fields {
			row.Cells = append(row.Cells, newCellView(rec, f, snap))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func newCellView(rec core.Record, f core.Field, snap session.Snapshot) cellView {
	c := cellView{
		RecordID:  rec.ID,
		Field:     f.Kind.String(),
		Input:     string(f.Input),
		Value:     f.Current(rec),
		Multiline: !f.AcceptKey,
	}
	s := snap.Session
	if !s.Editing(rec.ID, f.Kind) {
		return c
	}
	c.Editing = true
	c.Value = s.Pending
	c.Committing = s.Status == editor.StatusCommitting
	if s.Status == editor.StatusError {
		c.Error = s.Message
	}
	switch f.Kind {
	case core.FieldCategory:
		c.Options = snap.Lookups.Categories.Labels()
	case core.FieldMethod:
		c.Options = snap.Lookups.Methods.Labels()
	}
	return c
}

func newFormView(snap session.Snapshot, today string) formView {
	return formView{
		Today:      today,
		Categories: snap.Lookups.Categories,
		Methods:    snap.Lookups.Methods,
	}
}

// userMessage turns a workspace error into text for a toast or alert.
func userMessage(err error) string {
	var ve *core.ValidationError
	var cf *core.CommitFailure
	switch {
	case errors.As(err, &ve):
		return ve.Field.String() + ": " + ve.Message()
	case errors.As(err, &cf):
		return "저장하지 못했습니다: " + cf.Err.Error()
	case errors.Is(err, editor.ErrUnknownRecord):
		return "이미 삭제된 기록입니다"
	case errors.Is(err, editor.ErrCommitInFlight):
		return "이전 변경을 저장하는 중입니다"
	}
	return err.Error()
}
