package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gagyebu/internal/core"
	"gagyebu/internal/editor"
	"gagyebu/internal/log"
	"gagyebu/internal/middleware/trace"
	"gagyebu/internal/session"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.ws.View(ctx)
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	if snap.Range.Start == "" {
		// first visit: show the current month
		_ = s.ws.Load(ctx, core.CurrentMonth(s.loc))
		if snap, err = s.ws.View(ctx); err != nil {
			s.unavailable(w, r, err)
			return
		}
	}

	data := pageView{
		Table:   newTableView(snap),
		Summary: snap.Summary,
		Form:    newFormView(snap, s.now().In(s.loc).Format(core.DateLayout)),
	}
	s.render(w, r, NewHTMXResponse(), "index.html", data)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseRangeParams(r.URL.Query(), s.loc)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	// a failed fetch is rendered from the snapshot's LoadErr
	since := s.ws.Version()
	if err := s.ws.Load(r.Context(), rng); err != nil && !isFetchFailure(err) {
		s.unavailable(w, r, err)
		return
	}
	s.renderTable(w, r, s.announce(NewHTMXResponse(), since))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ws.View(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	s.render(w, r, NewHTMXResponse(), "summary", snap.Summary)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	since := s.ws.Version()
	if err := s.ws.Refresh(r.Context()); err != nil && !isFetchFailure(err) {
		s.unavailable(w, r, err)
		return
	}
	s.renderTable(w, r, s.announce(NewHTMXResponse(), since))
}

// handleBeginEdit opens a cell. An open draft elsewhere is committed first; if
// that fails the draft stays open with its error and the new cell is not opened.
func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	id, field, err := ParseCellParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ctx := r.Context()
	since := s.ws.Version()
	err = s.ws.BeginEdit(ctx, id, field)
	s.finishCell(w, r, s.announce(s.cellResponse(ctx, err), since), err)
}

// handleCellAction runs draft, commit, blur, cancel or key on the cell named by
// the route. The request carries the editor's value, so it only ever lands in
// that cell; input for a cell that has since closed is dropped.
func (s *Server) handleCellAction(w http.ResponseWriter, r *http.Request) {
	id, field, err := ParseCellParams(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	action, ok := cellAction(chi.URLParam(r, "action"), p)
	if !ok {
		NotFoundError("unknown cell action").Write(w)
		return
	}
	var value *string
	if p.Has("value") {
		v := p.Raw("value")
		value = &v
	}

	ctx := r.Context()
	since := s.ws.Version()
	err = s.ws.Apply(ctx, id, field, value, action)
	if err == nil && action == editor.ActionDraft {
		// nothing is re-rendered while typing
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.finishCell(w, r, s.announce(s.cellResponse(ctx, err), since), err)
}

func cellAction(name string, p *RequestBodyParser) (editor.Action, bool) {
	if name == "key" {
		return editor.ParseKey(p.Get("key")).Action(), true
	}
	return editor.ParseAction(name)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	ctx := r.Context()
	since := s.ws.Version()
	rec, err := s.ws.Add(ctx, core.NewRecordFromParams(p.Get))
	if err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			s.unavailable(w, r, err)
			return
		}
		NewHTMXResponse().
			Retarget("#add-error", "innerHTML").
			BodyHTML(`<span class="error">` + escape(userMessage(err)) + `</span>`).
			Write(w)
		return
	}

	s.logger.InfoContext(ctx, "Record added", log.FieldRecordID, rec.ID, log.FieldAmount, rec.Amount)
	s.renderTable(w, r, s.announce(NewHTMXResponse(), since).
		TriggerFormReset().
		TriggerSuccessNotification("기록을 추가했습니다"))
}

// handleDelete removes a record. Failures have no cell to show them, so they
// become an alert and the table stays as it is.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	since := s.ws.Version()
	err = s.ws.Delete(r.Context(), id, confirmed(p))
	switch {
	case err == nil:
		s.renderTable(w, r, s.announce(NewHTMXResponse(), since))
	case errors.Is(err, session.ErrNotRunning):
		s.unavailable(w, r, err)
	case errors.Is(err, editor.ErrDeleteNotConfirmed):
		NewHTMXResponse().NoSwap().TriggerAlert("삭제를 확인해 주세요").Write(w)
	default:
		NewHTMXResponse().NoSwap().TriggerAlert(userMessage(err)).Write(w)
	}
}

// announce tells sibling views to refresh when the workspace published a
// change after since.
func (s *Server) announce(resp *HTMXResponseBuilder, since uint64) *HTMXResponseBuilder {
	if s.ws.Version() != since {
		resp.TriggerRecordsChanged()
	}
	return resp
}

// cellResponse decides how a cell operation's error reaches the user. Validation
// and save failures are shown on the cell itself by the re-rendered table.
func (s *Server) cellResponse(ctx context.Context, err error) *HTMXResponseBuilder {
	resp := NewHTMXResponse()
	var cf *core.CommitFailure
	switch {
	case err == nil, errors.Is(err, editor.ErrNoSession):
	case core.IsValidation(err):
	case errors.As(err, &cf) && !cf.Alert():
	default:
		s.logger.WarnContext(ctx, "Cell operation failed", log.FieldError, err)
		resp.TriggerErrorNotification(userMessage(err))
	}
	return resp
}

func (s *Server) finishCell(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, err error) {
	if errors.Is(err, session.ErrNotRunning) {
		s.unavailable(w, r, err)
		return
	}
	s.renderTable(w, r, resp)
}

func (s *Server) renderTable(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder) {
	snap, err := s.ws.View(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	s.render(w, r, resp, "records", newTableView(snap))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender, "template", name, log.FieldError, err)
		InternalServerError("render failed").Write(w)
		return
	}
	resp.Header("Content-Type", "text/html; charset=utf-8").Body(buf.Bytes()).Write(w)
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	s.logger.Fields(ctx, slog.LevelError, "Workspace unavailable", log.NewFields().
		WithRequestID(trace.GetRequestID(ctx)).
		WithErrorType(log.ErrorTypeInternal).
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").
		WithError(err))
	ErrorResponse(http.StatusServiceUnavailable, "잠시 후 다시 시도하세요").Write(w)
}

func isFetchFailure(err error) bool {
	var ff *core.FetchFailure
	return errors.As(err, &ff)
}
