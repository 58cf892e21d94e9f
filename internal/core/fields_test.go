package core

import (
	"errors"
	"testing"
)

var testLookups = Lookups{
	Categories: ReferenceSet{{ID: 1, Type: "식비"}, {ID: 2, Type: "교통"}},
	Methods:    ReferenceSet{{ID: 10, Type: "카드"}, {ID: 11, Type: "현금"}},
}

func TestFieldTranslate(t *testing.T) {
	cases := []struct {
		name      string
		kind      FieldKind
		raw       string
		wantParam string
		wantValue string
		wantErr   error
	}{
		{"date ok", FieldDate, "2024-03-02", "date", "2024-03-02", nil},
		{"date not a day", FieldDate, "2024-02-30", "", "", ErrInvalidDate},
		{"date bad shape", FieldDate, "03/02/2024", "", "", ErrInvalidDate},
		{"category by label", FieldCategory, "교통", "category_id", "2", nil},
		{"category unknown", FieldCategory, "쇼핑", "", "", ErrUnknownCategory},
		{"method by label", FieldMethod, "현금", "method_id", "11", nil},
		{"method unknown", FieldMethod, "수표", "", "", ErrUnknownMethod},
		{"amount", FieldAmount, "12000", "amount", "12000", nil},
		{"amount zero", FieldAmount, "0", "amount", "0", nil},
		{"amount grouped", FieldAmount, "12,000", "amount", "12000", nil},
		{"amount negative", FieldAmount, "-1", "", "", ErrInvalidAmount},
		{"amount decimal", FieldAmount, "1.5", "", "", ErrInvalidAmount},
		{"amount text", FieldAmount, "abc", "", "", ErrInvalidAmount},
		{"user trimmed", FieldUser, "  mina ", "user_name", "mina", nil},
		{"user blank", FieldUser, "   ", "", "", ErrEmptyUser},
		{"memo as is", FieldMemo, " lunch ", "etc", " lunch ", nil},
		{"memo empty", FieldMemo, "", "etc", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := FieldOf(tc.kind)
			if !ok {
				t.Fatalf("no field for %v", tc.kind)
			}
			c, err := f.Translate(tc.raw, testLookups)
			if tc.wantErr != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if ve.Field != tc.kind || !errors.Is(err, tc.wantErr) {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if c.Param != tc.wantParam || c.Value != tc.wantValue {
				t.Fatalf("got %s=%q, want %s=%q", c.Param, c.Value, tc.wantParam, tc.wantValue)
			}
		})
	}
}

func TestChangeUnchanged(t *testing.T) {
	rec := Record{ID: 1, Date: "2024-03-01", Category: "식비", Method: "카드", Amount: 5000, User: "mina"}

	for _, tc := range []struct {
		kind FieldKind
		raw  string
		same bool
	}{
		{FieldDate, "2024-03-01", true},
		{FieldCategory, "식비", true},
		{FieldCategory, "교통", false},
		{FieldMethod, "카드", true},
		{FieldAmount, "5,000", true},
		{FieldAmount, "5001", false},
		{FieldUser, " mina ", true},
		{FieldMemo, "", true}, // absent memo equals empty draft
		{FieldMemo, "x", false},
	} {
		f, _ := FieldOf(tc.kind)
		c, err := f.Translate(tc.raw, testLookups)
		if err != nil {
			t.Fatalf("%v %q: unexpected err %v", tc.kind, tc.raw, err)
		}
		if got := c.Unchanged(rec); got != tc.same {
			t.Fatalf("%v %q: Unchanged = %v, want %v", tc.kind, tc.raw, got, tc.same)
		}
	}
}

func TestAcceptKeyExcludesMemo(t *testing.T) {
	for _, f := range Fields() {
		if want := f.Kind != FieldMemo; f.AcceptKey != want {
			t.Fatalf("%v AcceptKey = %v, want %v", f.Kind, f.AcceptKey, want)
		}
	}
}

func TestParseFieldKind(t *testing.T) {
	for in, want := range map[string]FieldKind{
		"date": FieldDate, "category": FieldCategory, "category_id": FieldCategory,
		"Method": FieldMethod, "amount": FieldAmount, "user_name": FieldUser, "user": FieldUser,
		"memo": FieldMemo, "etc": FieldMemo,
	} {
		got, err := ParseFieldKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseFieldKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFieldKind("id"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestParseChange(t *testing.T) {
	c, err := ParseChange("category_id", "7")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id, ok := c.ReferenceID(); !ok || id != 7 || c.Field != FieldCategory {
		t.Fatalf("unexpected change %+v", c)
	}
	c, err = ParseChange("amount", "300")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n, ok := c.AmountValue(); !ok || n != 300 {
		t.Fatalf("unexpected amount %+v", c)
	}
	if _, err := ParseChange("method_id", "x"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ParseChange("category", "1"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestParseAmountAndFormat(t *testing.T) {
	for in, want := range map[string]int64{"0": 0, "7": 7, " 1234 ": 1234, "1,234,567": 1234567} {
		got, err := ParseAmount(in)
		if err != nil || got != want {
			t.Fatalf("ParseAmount(%q) = %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "+1", "1,23", ",123", "1e3", "１２"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%q) expected ErrInvalidAmount, got %v", in, err)
		}
	}
	for v, want := range map[int64]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"} {
		if got := FormatAmount(v); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", v, got, want)
		}
	}
}

func TestNewRecordValidate(t *testing.T) {
	good := NewRecord{Date: "2024-03-05", CategoryID: "1", MethodID: "10", Amount: "8000", User: " mina ", Memo: "점심"}
	c, err := good.Validate()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.User != "mina" || c.Amount != 8000 || c.CategoryID != 1 || c.MethodID != 10 {
		t.Fatalf("unexpected creation %+v", c)
	}
	p := c.Params()
	if p.Get("user_name") != "mina" || p.Get("etc") != "점심" || p.Get("category_id") != "1" {
		t.Fatalf("unexpected params %v", p)
	}

	cases := []struct {
		mutate func(*NewRecord)
		field  FieldKind
	}{
		{func(n *NewRecord) { n.Date = "" }, FieldDate},
		{func(n *NewRecord) { n.Date = "2024-02-31" }, FieldDate},
		{func(n *NewRecord) { n.CategoryID = "" }, FieldCategory},
		{func(n *NewRecord) { n.MethodID = "0" }, FieldMethod},
		{func(n *NewRecord) { n.Amount = "" }, FieldAmount},
		{func(n *NewRecord) { n.Amount = "-3" }, FieldAmount},
		{func(n *NewRecord) { n.User = " " }, FieldUser},
	}
	for i, tc := range cases {
		n := good
		tc.mutate(&n)
		_, err := n.Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != tc.field {
			t.Fatalf("case %d: expected validation error on %v, got %v", i, tc.field, err)
		}
	}

	// memo is optional
	n := good
	n.Memo = ""
	if _, err := n.Validate(); err != nil {
		t.Fatalf("memo should be optional, got %v", err)
	}
}

func TestCommitFailureAlert(t *testing.T) {
	base := errors.New("boom")
	del := &CommitFailure{Op: OpDelete, RecordID: 4, Err: base}
	patch := &CommitFailure{Op: OpPatch, RecordID: 4, Err: base}
	if !del.Alert() || patch.Alert() {
		t.Fatalf("only delete failures are alerts")
	}
	if !errors.Is(del, base) {
		t.Fatalf("CommitFailure must unwrap")
	}
	if del.Error() != "delete record 4: boom" {
		t.Fatalf("unexpected message %q", del.Error())
	}
}
