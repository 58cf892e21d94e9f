// Package memory is an in-process record store used by tests and by the API
// server when no database is configured.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gagyebu/internal/core"
	"gagyebu/internal/remote"
)

type row struct {
	id         int64
	date       string
	categoryID int64
	methodID   int64
	amount     int64
	user       string
	memo       string
}

// Store implements remote.Store with maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	rows    map[int64]row
	refs    map[core.ReferenceKind][]core.Reference
	nextID  int64
	nextRef map[core.ReferenceKind]int64
}

var _ remote.Store = (*Store)(nil)

// New returns an empty store with no references.
func New() *Store {
	return &Store{
		rows:    make(map[int64]row),
		nextRef: make(map[core.ReferenceKind]int64),
		refs: map[core.ReferenceKind][]core.Reference{
			core.KindCategory: nil,
			core.KindMethod:   nil,
		},
	}
}

// NewSeeded returns a store holding the default categories and methods.
func NewSeeded() *Store {
	s := New()
	for _, kind := range []core.ReferenceKind{core.KindCategory, core.KindMethod} {
		for _, label := range remote.DefaultLabels(kind) {
			_, _ = s.CreateReference(context.Background(), kind, label)
		}
	}
	return s
}

func (s *Store) ListRecords(_ context.Context, rng core.DateRange) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Record, 0)
	for _, r := range s.rows {
		if rng.Contains(r.date) {
			out = append(out, s.join(r))
		}
	}
	slices.SortFunc(out, func(a, b core.Record) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Get returns a single record.
func (s *Store) Get(_ context.Context, id int64) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return core.Record{}, remote.ErrNotFound
	}
	return s.join(r), nil
}

func (s *Store) References(_ context.Context, kind core.ReferenceKind) (core.ReferenceSet, error) {
	if !kind.IsValid() {
		return nil, remote.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(core.ReferenceSet(s.refs[kind])), nil
}

func (s *Store) CreateRecord(_ context.Context, c core.Creation) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRef(core.KindCategory, c.CategoryID); err != nil {
		return core.Record{}, err
	}
	if err := s.checkRef(core.KindMethod, c.MethodID); err != nil {
		return core.Record{}, err
	}
	s.nextID++
	r := row{
		id:         s.nextID,
		date:       c.Date,
		categoryID: c.CategoryID,
		methodID:   c.MethodID,
		amount:     c.Amount,
		user:       c.User,
		memo:       c.Memo,
	}
	s.rows[r.id] = r
	return s.join(r), nil
}

func (s *Store) PatchRecord(_ context.Context, id int64, c core.Change) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return core.Record{}, remote.ErrNotFound
	}
	switch c.Param {
	case core.ParamDate:
		r.date = c.Value
	case core.ParamCategoryID, core.ParamMethodID:
		refID, _ := c.ReferenceID()
		kind := core.KindCategory
		if c.Param == core.ParamMethodID {
			kind = core.KindMethod
		}
		if err := s.checkRef(kind, refID); err != nil {
			return core.Record{}, err
		}
		if kind == core.KindMethod {
			r.methodID = refID
		} else {
			r.categoryID = refID
		}
	case core.ParamAmount:
		r.amount, _ = c.AmountValue()
	case core.ParamUserName:
		r.user = c.Value
	case core.ParamMemo:
		r.memo = c.Value
	default:
		return core.Record{}, fmt.Errorf("%w: %s", remote.ErrInvalid, c.Param)
	}
	s.rows[id] = r
	return s.join(r), nil
}

func (s *Store) DeleteRecord(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return remote.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *Store) CreateReference(_ context.Context, kind core.ReferenceKind, label string) (core.Reference, error) {
	label = strings.TrimSpace(label)
	if !kind.IsValid() {
		return core.Reference{}, remote.ErrNotFound
	}
	if label == "" {
		return core.Reference{}, fmt.Errorf("%w: empty label", remote.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRef[kind]++
	ref := core.Reference{ID: s.nextRef[kind], Type: label}
	s.refs[kind] = append(s.refs[kind], ref)
	return ref, nil
}

func (s *Store) RenameReference(_ context.Context, kind core.ReferenceKind, id int64, label string) (core.Reference, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return core.Reference{}, fmt.Errorf("%w: empty label", remote.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.refs[kind]
	i := slices.IndexFunc(list, func(r core.Reference) bool { return r.ID == id })
	if i < 0 {
		return core.Reference{}, remote.ErrNotFound
	}
	list[i].Type = label
	return list[i], nil
}

func (s *Store) DeleteReference(_ context.Context, kind core.ReferenceKind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.refs[kind]
	i := slices.IndexFunc(list, func(r core.Reference) bool { return r.ID == id })
	if i < 0 {
		return remote.ErrNotFound
	}
	for _, r := range s.rows {
		if (kind == core.KindCategory && r.categoryID == id) || (kind == core.KindMethod && r.methodID == id) {
			return fmt.Errorf("%w: %s %d is used by record %d", remote.ErrConflict, kind, id, r.id)
		}
	}
	s.refs[kind] = slices.Delete(list, i, i+1)
	return nil
}

func (s *Store) checkRef(kind core.ReferenceKind, id int64) error {
	if _, ok := core.ReferenceSet(s.refs[kind]).ByID(id); !ok {
		return fmt.Errorf("%w: unknown %s id %d", remote.ErrInvalid, kind, id)
	}
	return nil
}

func (s *Store) join(r row) core.Record {
	cat, _ := core.ReferenceSet(s.refs[core.KindCategory]).ByID(r.categoryID)
	method, _ := core.ReferenceSet(s.refs[core.KindMethod]).ByID(r.methodID)
	return core.Record{
		ID:       r.id,
		Date:     r.date,
		Category: cat.Type,
		Method:   method.Type,
		Amount:   r.amount,
		User:     r.user,
		Memo:     r.memo,
	}
}
