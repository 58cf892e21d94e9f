package core

import (
	"cmp"
	"iter"
	"slices"
)

// Total is an amount aggregated by a category or method label.
type Total struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// Summary is the aggregation shown next to the record table.
type Summary struct {
	Total      int64   `json:"total"`
	Count      int     `json:"count"`
	ByCategory []Total `json:"by_category"`
	ByMethod   []Total `json:"by_method"`
}

// Summarize totals the records per category and per method, largest first, ties by name.
func Summarize(records iter.Seq[Record]) Summary {
	var s Summary
	cats := map[string]int64{}
	methods := map[string]int64{}
	for r := range records {
		s.Total += r.Amount
		s.Count++
		cats[r.Category] += r.Amount
		methods[r.Method] += r.Amount
	}
	s.ByCategory = ranked(cats)
	s.ByMethod = ranked(methods)
	return s
}

func ranked(m map[string]int64) []Total {
	out := make([]Total, 0, len(m))
	for name, amount := range m {
		out = append(out, Total{Name: name, Amount: amount})
	}
	slices.SortFunc(out, func(a, b Total) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// TopCategory returns the category with the largest total.
func (s Summary) TopCategory() (Total, bool) {
	if len(s.ByCategory) == 0 {
		return Total{}, false
	}
	return s.ByCategory[0], true
}

// TopMethod returns the method with the largest total.
func (s Summary) TopMethod() (Total, bool) {
	if len(s.ByMethod) == 0 {
		return Total{}, false
	}
	return s.ByMethod[0], true
}

// CategoryCount is the number of distinct categories spent on.
func (s Summary) CategoryCount() int {
	return len(s.ByCategory)
}

// Share returns t's percentage of the summary total, rounded down.
func (s Summary) Share(t Total) int {
	if s.Total == 0 {
		return 0
	}
	return int(t.Amount * 100 / s.Total)
}
