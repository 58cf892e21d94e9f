// Package apiserver exposes a remote.Store as the record API.
package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/middleware/trace"
	"gagyebu/internal/notify"
	"gagyebu/internal/remote"
)

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecordGetter is implemented by backends that can look up a single record.
type RecordGetter interface {
	Get(ctx context.Context, id int64) (core.Record, error)
}

// Server is the record API.
type Server struct {
	store          remote.Store
	notifier       notify.Notifier
	logger         *log.Logger
	metricsEnabled bool
	now            func() time.Time
}

func NewServer(store remote.Store, notifier notify.Notifier, logger *log.Logger) *Server {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Server{
		store:    store,
		notifier: notifier,
		logger:   logger.WithComponent(log.ComponentAPI),
		now:      time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(trace.Middleware(s.logger))
	r.Use(countRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.handleReady)

	r.Route("/records", func(r chi.Router) {
		r.Get("/", s.handleListRecords)
		r.Post("/", s.handleCreateRecord)
		r.Get("/{id}", s.handleGetRecord)
		r.Patch("/{id}", s.handlePatchRecord)
		r.Delete("/{id}", s.handleDeleteRecord)
	})
	for _, kind := range []core.ReferenceKind{core.KindCategory, core.KindMethod} {
		r.Route("/"+string(kind), func(r chi.Router) {
			r.Get("/", s.handleListReferences(kind))
			r.Post("/", s.handleCreateReference(kind))
			r.Put("/{id}", s.handleRenameReference(kind))
			r.Patch("/{id}", s.handleRenameReference(kind))
			r.Delete("/{id}", s.handleDeleteReference(kind))
		})
	}

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng := core.DateRange{Start: q.Get("start_date"), End: q.Get("end_date")}
	for _, d := range []string{rng.Start, rng.End} {
		if d != "" && !core.ValidDate(d) {
			writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidDate.Error())
			return
		}
	}
	if rng.Start != "" && rng.End != "" && rng.Start > rng.End {
		writeError(w, http.StatusUnprocessableEntity, core.ErrInvalidRange.Error())
		return
	}

	recs, err := s.store.ListRecords(r.Context(), rng)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if recs == nil {
		recs = []core.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	getter, ok := s.store.(RecordGetter)
	if !ok {
		writeError(w, http.StatusMethodNotAllowed, "single record lookup not supported")
		return
	}
	rec, err := getter.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creation, err := core.NewRecordFromParams(p.Get).Validate()
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	rec, err := s.store.CreateRecord(r.Context(), creation)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.publish(r.Context(), notify.KindCreated, rec.ID, rec.Date)
	writeJSON(w, http.StatusCreated, rec)
}

// patchParams lists the fields a PATCH may carry, exactly one per request.
var patchParams = []string{
	core.ParamDate, core.ParamCategoryID, core.ParamMethodID,
	core.ParamAmount, core.ParamUserName, core.ParamMemo,
}

func (s *Server) handlePatchRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		change core.Change
		found  int
	)
	for _, name := range patchParams {
		raw, present := p.Lookup(name)
		if !present {
			continue
		}
		found++
		if change, err = core.ParseChange(name, raw); err != nil {
			s.fail(w, r, log.OpPatch, err)
			return
		}
	}
	if found != 1 {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("exactly one field must be given, got %d", found))
		return
	}

	rec, err := s.store.PatchRecord(r.Context(), id, change)
	if err != nil {
		s.fail(w, r, log.OpPatch, err)
		return
	}
	s.publish(r.Context(), notify.KindUpdated, rec.ID, rec.Date)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var date string
	if getter, ok := s.store.(RecordGetter); ok {
		if rec, err := getter.Get(r.Context(), id); err == nil {
			date = rec.Date
		}
	}
	if err := s.store.DeleteRecord(r.Context(), id); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.publish(r.Context(), notify.KindDeleted, id, date)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListReferences(kind core.ReferenceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := s.store.References(r.Context(), kind)
		if err != nil {
			s.fail(w, r, log.OpList, err)
			return
		}
		if set == nil {
			set = core.ReferenceSet{}
		}
		writeJSON(w, http.StatusOK, set)
	}
}

func (s *Server) handleCreateReference(kind core.ReferenceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := parseParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref, err := s.store.CreateReference(r.Context(), kind, p.Get("type"))
		if err != nil {
			s.fail(w, r, log.OpCreate, err)
			return
		}
		s.publish(r.Context(), notify.KindReferences, 0, "")
		writeJSON(w, http.StatusCreated, ref)
	}
}

func (s *Server) handleRenameReference(kind core.ReferenceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		p, err := parseParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref, err := s.store.RenameReference(r.Context(), kind, id, p.Get("type"))
		if err != nil {
			s.fail(w, r, log.OpPatch, err)
			return
		}
		s.publish(r.Context(), notify.KindReferences, 0, "")
		writeJSON(w, http.StatusOK, ref)
	}
}

func (s *Server) handleDeleteReference(kind core.ReferenceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := s.store.DeleteReference(r.Context(), kind, id); err != nil {
			s.fail(w, r, log.OpDelete, err)
			return
		}
		s.publish(r.Context(), notify.KindReferences, 0, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

// fail maps a store or validation error onto a status code and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := remote.StatusCode(err)
	msg := err.Error()
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Error()
	}
	if code >= 500 {
		s.logger.ErrorContext(r.Context(), "Store operation failed", log.FieldOperation, op, log.FieldError, err)
		msg = http.StatusText(code)
	}
	writeError(w, code, msg)
}

func (s *Server) publish(ctx context.Context, kind string, id int64, date string) {
	ev := notify.Event{Kind: kind, RecordID: id, Date: date, At: s.now()}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Change notification failed",
			log.FieldOperation, kind, log.FieldRecordID, id, log.FieldError, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "unknown id")
		return 0, false
	}
	return id, true
}

// countRequests records every answer by route pattern and status code.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
