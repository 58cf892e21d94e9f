package records

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"gagyebu/internal/core"
)

func rec(id int64, date string, amount int64) core.Record {
	return core.Record{ID: id, Date: date, Category: "식비", Method: "카드", Amount: amount, User: "mina"}
}

func ids(seq []core.Record) []int64 {
	out := make([]int64, 0, len(seq))
	for _, r := range seq {
		out = append(out, r.ID)
	}
	return out
}

func sorted(s *Store) []core.Record {
	return slices.Collect(s.SortedByDateDesc())
}

func TestReplace(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1))
	skipped := s.Replace([]core.Record{
		rec(2, "2024-05-02", 1),
		rec(0, "2024-05-03", 1), // no id
		rec(3, "2024-05-03", 1),
		rec(2, "2024-05-04", 9), // later duplicate wins
	})
	if skipped != 2 {
		t.Fatalf("skipped = %d, want 2", skipped)
	}
	if got := ids(s.Records()); !slices.Equal(got, []int64{2, 3}) {
		t.Fatalf("ids = %v", got)
	}
	if r, _ := s.Get(2); r.Amount != 9 {
		t.Fatalf("expected later duplicate to win, got %+v", r)
	}
	if _, ok := s.Get(1); ok {
		t.Fatalf("replace must drop previous records")
	}
}

func TestInsert(t *testing.T) {
	var s Store
	if err := s.Insert(rec(0, "2024-05-01", 1)); !errors.Is(err, core.ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if err := s.Insert(rec(1, "2024-05-01", 1)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.Insert(rec(2, "2024-05-02", 1)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.Insert(rec(1, "2024-05-01", 7)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("duplicate insert must replace, len=%d", s.Len())
	}
	if got := ids(s.Records()); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("replacement must stay in place, ids=%v", got)
	}
	if r, _ := s.Get(1); r.Amount != 7 {
		t.Fatalf("newer record must win, got %+v", r)
	}
}

func TestApplyPatchAbsentIsNoop(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1000))
	before := s.Records()
	if s.ApplyPatch(99, rec(99, "2024-05-09", 5)) {
		t.Fatalf("patch on absent id reported a change")
	}
	if !slices.Equal(before, s.Records()) {
		t.Fatalf("store changed: %v", s.Records())
	}
}

func TestApplyPatchReplacesWholesale(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1000), rec(2, "2024-05-02", 10))
	patched := core.Record{ID: 1, Date: "2024-05-01", Category: "교통", Method: "현금", Amount: 2000, User: "jun"}
	if !s.ApplyPatch(1, patched) {
		t.Fatalf("expected patch to apply")
	}
	if got, _ := s.Get(1); got != patched {
		t.Fatalf("got %+v, want %+v", got, patched)
	}
	if got := ids(s.Records()); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("position must be kept, ids=%v", got)
	}
}

func TestApplyPatchKeepsIDWhenResponseOmitsIt(t *testing.T) {
	s := New(rec(4, "2024-05-01", 1))
	s.ApplyPatch(4, core.Record{Date: "2024-05-01", Amount: 3})
	if r, ok := s.Get(4); !ok || r.Amount != 3 || r.ID != 4 {
		t.Fatalf("unexpected record %+v ok=%v", r, ok)
	}
}

func TestApplyPatchRenumbered(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1), rec(2, "2024-05-02", 2), rec(3, "2024-05-03", 3))
	s.ApplyPatch(1, rec(3, "2024-05-01", 10))
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if _, ok := s.Get(1); ok {
		t.Fatalf("old id must be gone")
	}
	if r, _ := s.Get(3); r.Amount != 10 {
		t.Fatalf("unexpected record %+v", r)
	}
	if got := ids(s.Records()); !slices.Equal(got, []int64{3, 2}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestRemove(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1), rec(2, "2024-05-02", 1), rec(3, "2024-05-03", 1))
	if !s.Remove(2) {
		t.Fatalf("expected remove to report true")
	}
	if s.Remove(2) {
		t.Fatalf("second remove must be a no-op")
	}
	if got := ids(s.Records()); !slices.Equal(got, []int64{1, 3}) {
		t.Fatalf("ids = %v", got)
	}
	if r, ok := s.Get(3); !ok || r.ID != 3 {
		t.Fatalf("index not rebuilt after remove: %+v ok=%v", r, ok)
	}
}

func TestSortedByDateDescStable(t *testing.T) {
	var s Store
	a := rec(10, "2024-05-01", 1)
	b := rec(11, "2024-05-01", 2)
	_ = s.Insert(rec(9, "2024-04-30", 1))
	_ = s.Insert(a)
	_ = s.Insert(b)
	_ = s.Insert(rec(12, "2024-05-03", 1))

	if got := ids(sorted(&s)); !slices.Equal(got, []int64{12, 10, 11, 9}) {
		t.Fatalf("order = %v", got)
	}
}

func TestSortedByDateDescReflectsMutations(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1), rec(2, "2024-05-02", 1))
	seq := s.SortedByDateDesc()

	first := ids(slices.Collect(seq))
	again := ids(slices.Collect(seq))
	if !slices.Equal(first, again) {
		t.Fatalf("not idempotent: %v vs %v", first, again)
	}

	_ = s.Insert(rec(3, "2024-05-09", 1))
	if got := ids(slices.Collect(seq)); !slices.Equal(got, []int64{3, 2, 1}) {
		t.Fatalf("stale after insert: %v", got)
	}
	s.ApplyPatch(1, rec(1, "2024-05-10", 1))
	if got := ids(slices.Collect(seq)); !slices.Equal(got, []int64{1, 3, 2}) {
		t.Fatalf("stale after patch: %v", got)
	}
	s.Remove(3)
	if got := ids(slices.Collect(seq)); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("stale after remove: %v", got)
	}
	s.Replace(nil)
	if got := slices.Collect(seq); len(got) != 0 {
		t.Fatalf("stale after replace: %v", got)
	}
}

func TestSortedByDateDescEarlyStop(t *testing.T) {
	s := New(rec(1, "2024-05-01", 1), rec(2, "2024-05-02", 1), rec(3, "2024-05-03", 1))
	n := 0
	for range s.SortedByDateDesc() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("iteration did not stop, n=%d", n)
	}
}

func TestIDsStayUnique(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	var s Store
	for step := range 2000 {
		id := r.Int64N(20) + 1
		switch r.IntN(4) {
		case 0:
			_ = s.Insert(rec(id, "2024-05-01", int64(step)))
		case 1:
			s.ApplyPatch(id, rec(r.Int64N(20)+1, "2024-05-02", int64(step)))
		case 2:
			s.Remove(id)
		case 3:
			s.ApplyPatch(id, rec(0, "2024-05-03", int64(step)))
		}

		seen := map[int64]bool{}
		for _, rec := range s.Records() {
			if seen[rec.ID] {
				t.Fatalf("step %d: duplicate id %d in %v", step, rec.ID, ids(s.Records()))
			}
			seen[rec.ID] = true
			if got, ok := s.Get(rec.ID); !ok || got != rec {
				t.Fatalf("step %d: index out of sync for id %d", step, rec.ID)
			}
		}
		if len(seen) != s.Len() {
			t.Fatalf("step %d: len mismatch", step)
		}
	}
}
