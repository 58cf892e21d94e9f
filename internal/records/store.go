// Package records holds the locally cached list of expense records.
//
// A Store is not safe for concurrent use. It is owned by a single goroutine
// (see the session package) and only changes after a successful round trip
// to the record API.
package records

import (
	"cmp"
	"iter"
	"slices"

	"gagyebu/internal/core"
)

// Store is an insertion-ordered collection of records with unique ids.
type Store struct {
	items []core.Record
	index map[int64]int
}

func New(recs ...core.Record) *Store {
	s := &Store{}
	s.Replace(recs)
	return s
}

// Replace swaps the whole collection. Records without an id are skipped and a
// later duplicate id replaces an earlier one. It returns how many records were skipped.
func (s *Store) Replace(recs []core.Record) int {
	s.items = make([]core.Record, 0, len(recs))
	s.index = make(map[int64]int, len(recs))
	skipped := 0
	for _, r := range recs {
		if !r.HasID() {
			skipped++
			continue
		}
		if i, ok := s.index[r.ID]; ok {
			s.items[i] = r
			skipped++
			continue
		}
		s.index[r.ID] = len(s.items)
		s.items = append(s.items, r)
	}
	return skipped
}

// Insert appends a created record. An existing record with the same id is replaced in place.
func (s *Store) Insert(r core.Record) error {
	if !r.HasID() {
		return core.ErrMissingID
	}
	s.ensureIndex()
	if i, ok := s.index[r.ID]; ok {
		s.items[i] = r
		return nil
	}
	s.index[r.ID] = len(s.items)
	s.items = append(s.items, r)
	return nil
}

// ApplyPatch replaces the record with the given id by the patched one, wholesale.
// It reports whether a record was replaced; an absent id is a no-op.
func (s *Store) ApplyPatch(id int64, patched core.Record) bool {
	s.ensureIndex()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	if patched.ID == 0 {
		patched.ID = id
	}
	if patched.ID != id {
		// the server renumbered the record; a stale entry holding the new id must go
		if j, dup := s.index[patched.ID]; dup {
			s.removeAt(j)
			i = s.index[id]
		}
		delete(s.index, id)
		s.index[patched.ID] = i
	}
	s.items[i] = patched
	return true
}

// Remove drops the record with the given id and reports whether it existed.
func (s *Store) Remove(id int64) bool {
	s.ensureIndex()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.removeAt(i)
	return true
}

func (s *Store) removeAt(i int) {
	delete(s.index, s.items[i].ID)
	s.items = slices.Delete(s.items, i, i+1)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
}

func (s *Store) ensureIndex() {
	if s.index == nil {
		s.index = make(map[int64]int)
	}
}

// Get returns the record with the given id.
func (s *Store) Get(id int64) (core.Record, bool) {
	i, ok := s.index[id]
	if !ok {
		return core.Record{}, false
	}
	return s.items[i], true
}

func (s *Store) Len() int {
	return len(s.items)
}

// Records returns a copy of the collection in insertion order.
func (s *Store) Records() []core.Record {
	return slices.Clone(s.items)
}

// All yields the records in insertion order.
func (s *Store) All() iter.Seq[core.Record] {
	return func(yield func(core.Record) bool) {
		for _, r := range s.items {
			if !yield(r) {
				return
			}
		}
	}
}

// SortedByDateDesc yields the records newest first. Records sharing a date keep
// their insertion order. The order is derived again each time the sequence is
// ranged over, so it always reflects the current collection.
func (s *Store) SortedByDateDesc() iter.Seq[core.Record] {
	return func(yield func(core.Record) bool) {
		sorted := slices.Clone(s.items)
		slices.SortStableFunc(sorted, func(a, b core.Record) int {
			return cmp.Compare(b.Date, a.Date)
		})
		for _, r := range sorted {
			if !yield(r) {
				return
			}
		}
	}
}
