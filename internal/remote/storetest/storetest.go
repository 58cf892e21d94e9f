// Package storetest is a behaviour suite every remote.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"gagyebu/internal/core"
	"gagyebu/internal/remote"
)

// Run exercises s, which must hold the default seed references and no records.
func Run(t *testing.T, s remote.Store) {
	t.Helper()
	ctx := context.Background()

	cats, err := s.References(ctx, core.KindCategory)
	if err != nil {
		t.Fatalf("References(categories): %v", err)
	}
	methods, err := s.References(ctx, core.KindMethod)
	if err != nil {
		t.Fatalf("References(methods): %v", err)
	}
	if len(cats) != len(remote.DefaultCategories) || len(methods) != len(remote.DefaultMethods) {
		t.Fatalf("unexpected seeds: %v / %v", cats, methods)
	}
	food, _ := cats.Lookup("식비")
	transit, _ := cats.Lookup("교통")
	card, _ := methods.Lookup("카드")
	cash, _ := methods.Lookup("현금")

	t.Run("create and list", func(t *testing.T) {
		a, err := s.CreateRecord(ctx, core.Creation{Date: "2024-05-01", CategoryID: food.ID, MethodID: card.ID, Amount: 1000, User: "mina"})
		if err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
		if !a.HasID() || a.Category != "식비" || a.Method != "카드" || a.Memo != "" {
			t.Fatalf("unexpected record %+v", a)
		}
		b, err := s.CreateRecord(ctx, core.Creation{Date: "2024-05-03", CategoryID: transit.ID, MethodID: cash.ID, Amount: 1250, User: "jun", Memo: "버스"})
		if err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
		if _, err := s.CreateRecord(ctx, core.Creation{Date: "2024-06-01", CategoryID: food.ID, MethodID: card.ID, Amount: 1, User: "mina"}); err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}

		got, err := s.ListRecords(ctx, core.DateRange{Start: "2024-05-01", End: "2024-05-31"})
		if err != nil {
			t.Fatalf("ListRecords: %v", err)
		}
		if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
			t.Fatalf("expected [b a] newest first, got %+v", got)
		}
		if got[0].Memo != "버스" || got[0].User != "jun" || got[0].Amount != 1250 {
			t.Fatalf("unexpected record %+v", got[0])
		}

		all, err := s.ListRecords(ctx, core.DateRange{})
		if err != nil || len(all) != 3 {
			t.Fatalf("open range should list all, got %d, %v", len(all), err)
		}
	})

	t.Run("create with unknown reference", func(t *testing.T) {
		_, err := s.CreateRecord(ctx, core.Creation{Date: "2024-05-01", CategoryID: 9999, MethodID: card.ID, Amount: 1, User: "mina"})
		if !errors.Is(err, remote.ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("patch returns full record", func(t *testing.T) {
		rec, err := s.CreateRecord(ctx, core.Creation{Date: "2024-07-01", CategoryID: food.ID, MethodID: card.ID, Amount: 500, User: "mina"})
		if err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
		for _, tc := range []struct {
			param, value string
			check        func(core.Record) bool
		}{
			{core.ParamAmount, "700", func(r core.Record) bool { return r.Amount == 700 }},
			{core.ParamDate, "2024-07-02", func(r core.Record) bool { return r.Date == "2024-07-02" }},
			{core.ParamUserName, "jun", func(r core.Record) bool { return r.User == "jun" }},
			{core.ParamMemo, "메모", func(r core.Record) bool { return r.Memo == "메모" }},
			{core.ParamCategoryID, itoa(transit.ID), func(r core.Record) bool { return r.Category == "교통" }},
			{core.ParamMethodID, itoa(cash.ID), func(r core.Record) bool { return r.Method == "현금" }},
		} {
			change, err := core.ParseChange(tc.param, tc.value)
			if err != nil {
				t.Fatalf("ParseChange(%s): %v", tc.param, err)
			}
			got, err := s.PatchRecord(ctx, rec.ID, change)
			if err != nil {
				t.Fatalf("PatchRecord(%s): %v", tc.param, err)
			}
			if got.ID != rec.ID || !tc.check(got) {
				t.Fatalf("PatchRecord(%s) returned %+v", tc.param, got)
			}
		}
		final, _ := s.ListRecords(ctx, core.DateRange{Start: "2024-07-02", End: "2024-07-02"})
		if len(final) != 1 || final[0].Amount != 700 || final[0].Memo != "메모" {
			t.Fatalf("patches did not persist: %+v", final)
		}

		change, _ := core.ParseChange(core.ParamAmount, "1")
		if _, err := s.PatchRecord(ctx, 424242, change); !errors.Is(err, remote.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		bad, _ := core.ParseChange(core.ParamMethodID, "9999")
		if _, err := s.PatchRecord(ctx, rec.ID, bad); !errors.Is(err, remote.ErrInvalid) {
			t.Fatalf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec, err := s.CreateRecord(ctx, core.Creation{Date: "2024-08-01", CategoryID: food.ID, MethodID: card.ID, Amount: 1, User: "mina"})
		if err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
		if err := s.DeleteRecord(ctx, rec.ID); err != nil {
			t.Fatalf("DeleteRecord: %v", err)
		}
		if err := s.DeleteRecord(ctx, rec.ID); !errors.Is(err, remote.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
		left, _ := s.ListRecords(ctx, core.DateRange{Start: "2024-08-01", End: "2024-08-31"})
		if len(left) != 0 {
			t.Fatalf("record still listed: %+v", left)
		}
	})

	t.Run("references", func(t *testing.T) {
		ref, err := s.CreateReference(ctx, core.KindCategory, "  여행 ")
		if err != nil {
			t.Fatalf("CreateReference: %v", err)
		}
		if ref.Type != "여행" || ref.ID <= 0 {
			t.Fatalf("unexpected reference %+v", ref)
		}
		if _, err := s.CreateReference(ctx, core.KindMethod, "   "); !errors.Is(err, remote.ErrInvalid) {
			t.Fatalf("expected ErrInvalid for blank label, got %v", err)
		}
		renamed, err := s.RenameReference(ctx, core.KindCategory, ref.ID, "해외여행")
		if err != nil || renamed.Type != "해외여행" {
			t.Fatalf("RenameReference: %+v %v", renamed, err)
		}
		if _, err := s.RenameReference(ctx, core.KindCategory, 9999, "x"); !errors.Is(err, remote.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		// labels are joined on read, so a rename shows up on existing records
		rec, err := s.CreateRecord(ctx, core.Creation{Date: "2024-09-01", CategoryID: ref.ID, MethodID: card.ID, Amount: 1, User: "mina"})
		if err != nil {
			t.Fatalf("CreateRecord: %v", err)
		}
		if _, err := s.RenameReference(ctx, core.KindCategory, ref.ID, "여행"); err != nil {
			t.Fatalf("RenameReference: %v", err)
		}
		list, _ := s.ListRecords(ctx, core.DateRange{Start: "2024-09-01", End: "2024-09-01"})
		if len(list) != 1 || list[0].Category != "여행" {
			t.Fatalf("rename not reflected: %+v", list)
		}

		if err := s.DeleteReference(ctx, core.KindCategory, ref.ID); !errors.Is(err, remote.ErrConflict) {
			t.Fatalf("expected ErrConflict for a used reference, got %v", err)
		}
		if err := s.DeleteRecord(ctx, rec.ID); err != nil {
			t.Fatalf("DeleteRecord: %v", err)
		}
		if err := s.DeleteReference(ctx, core.KindCategory, ref.ID); err != nil {
			t.Fatalf("DeleteReference: %v", err)
		}
		if err := s.DeleteReference(ctx, core.KindCategory, ref.ID); !errors.Is(err, remote.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
