package core

import (
	"strconv"
	"strings"
)

// FieldKind tags the editable columns of a Record.
type FieldKind int

const (
	FieldDate FieldKind = iota + 1
	FieldCategory
	FieldMethod
	FieldAmount
	FieldUser
	FieldMemo
)

// Wire parameter names accepted by the record API.
const (
	ParamDate       = "date"
	ParamCategoryID = "category_id"
	ParamMethodID   = "method_id"
	ParamAmount     = "amount"
	ParamUserName   = "user_name"
	ParamMemo       = "etc"
)

// InputKind tells the display layer which control renders a field.
type InputKind string

const (
	InputText   InputKind = "text"
	InputDate   InputKind = "date"
	InputNumber InputKind = "number"
	InputSelect InputKind = "select"
)

type (
	// Field is one variant of the per-column edit behaviour: how a draft is validated,
	// how it is translated for the wire and how the stored value is read back.
	Field struct {
		Kind  FieldKind
		Param string
		Input InputKind
		// AcceptKey is true when the accept keystroke commits the draft.
		AcceptKey bool

		translate func(raw string, refs Lookups) (Change, error)
		current   func(r Record) string
	}

	// Change is a validated, translated single-field update.
	Change struct {
		Field FieldKind
		Param string
		// Value is the encoded wire value.
		Value string
		// Display is the value as it reads on a Record; equal Display means no change.
		Display string
	}
)

var fieldOrder = []FieldKind{FieldDate, FieldCategory, FieldMethod, FieldAmount, FieldUser, FieldMemo}

var fieldNames = map[FieldKind]string{
	FieldDate:     "date",
	FieldCategory: "category",
	FieldMethod:   "method",
	FieldAmount:   "amount",
	FieldUser:     "user",
	FieldMemo:     "memo",
}

var fields = map[FieldKind]Field{
	FieldDate: {
		Kind: FieldDate, Param: ParamDate, Input: InputDate, AcceptKey: true,
		translate: func(raw string, _ Lookups) (Change, error) {
			v := strings.TrimSpace(raw)
			if !ValidDate(v) {
				return Change{}, invalid(FieldDate, ErrInvalidDate)
			}
			return Change{Field: FieldDate, Param: ParamDate, Value: v, Display: v}, nil
		},
		current: func(r Record) string { return r.Date },
	},
	FieldCategory: {
		Kind: FieldCategory, Param: ParamCategoryID, Input: InputSelect, AcceptKey: true,
		translate: func(raw string, refs Lookups) (Change, error) {
			ref, ok := refs.Categories.Lookup(raw)
			if !ok {
				return Change{}, invalid(FieldCategory, ErrUnknownCategory)
			}
			return Change{Field: FieldCategory, Param: ParamCategoryID, Value: strconv.FormatInt(ref.ID, 10), Display: ref.Type}, nil
		},
		current: func(r Record) string { return r.Category },
	},
	FieldMethod: {
		Kind: FieldMethod, Param: ParamMethodID, Input: InputSelect, AcceptKey: true,
		translate: func(raw string, refs Lookups) (Change, error) {
			ref, ok := refs.Methods.Lookup(raw)
			if !ok {
				return Change{}, invalid(FieldMethod, ErrUnknownMethod)
			}
			return Change{Field: FieldMethod, Param: ParamMethodID, Value: strconv.FormatInt(ref.ID, 10), Display: ref.Type}, nil
		},
		current: func(r Record) string { return r.Method },
	},
	FieldAmount: {
		Kind: FieldAmount, Param: ParamAmount, Input: InputNumber, AcceptKey: true,
		translate: func(raw string, _ Lookups) (Change, error) {
			n, err := ParseAmount(raw)
			if err != nil {
				return Change{}, invalid(FieldAmount, err)
			}
			v := strconv.FormatInt(n, 10)
			return Change{Field: FieldAmount, Param: ParamAmount, Value: v, Display: v}, nil
		},
		current: func(r Record) string { return strconv.FormatInt(r.Amount, 10) },
	},
	FieldUser: {
		Kind: FieldUser, Param: ParamUserName, Input: InputText, AcceptKey: true,
		translate: func(raw string, _ Lookups) (Change, error) {
			v := strings.TrimSpace(raw)
			if v == "" {
				return Change{}, invalid(FieldUser, ErrEmptyUser)
			}
			return Change{Field: FieldUser, Param: ParamUserName, Value: v, Display: v}, nil
		},
		current: func(r Record) string { return r.User },
	},
	// Memo is free text: no validation, sent as typed. An absent memo reads as "".
	FieldMemo: {
		Kind: FieldMemo, Param: ParamMemo, Input: InputText, AcceptKey: false,
		translate: func(raw string, _ Lookups) (Change, error) {
			return Change{Field: FieldMemo, Param: ParamMemo, Value: raw, Display: raw}, nil
		},
		current: func(r Record) string { return r.Memo },
	},
}

func (k FieldKind) String() string {
	if name, ok := fieldNames[k]; ok {
		return name
	}
	return "field(" + strconv.Itoa(int(k)) + ")"
}

func (k FieldKind) IsValid() bool {
	_, ok := fields[k]
	return ok
}

// ParseFieldKind maps a column name ("amount") or wire name ("user_name") to its kind.
func ParseFieldKind(s string) (FieldKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range fieldOrder {
		if fieldNames[k] == s || fields[k].Param == s {
			return k, nil
		}
	}
	return 0, ErrUnknownField
}

// Fields lists every editable field in column order.
func Fields() []Field {
	out := make([]Field, 0, len(fieldOrder))
	for _, k := range fieldOrder {
		out = append(out, fields[k])
	}
	return out
}

// FieldOf returns the edit variant for a kind.
func FieldOf(k FieldKind) (Field, bool) {
	f, ok := fields[k]
	return f, ok
}

// Translate validates a draft and converts it into its wire form.
// Failures are always *ValidationError.
func (f Field) Translate(raw string, refs Lookups) (Change, error) {
	return f.translate(raw, refs)
}

// Current returns the stored value of the field in display form.
func (f Field) Current(r Record) string {
	return f.current(r)
}

// Unchanged reports whether applying c to r would leave the record as it is.
func (c Change) Unchanged(r Record) bool {
	f, ok := fields[c.Field]
	if !ok {
		return false
	}
	return f.current(r) == c.Display
}

// ParseChange validates a single wire parameter as received by the record API.
// Reference ids are only checked for shape; existence is the store's concern.
func ParseChange(param, raw string) (Change, error) {
	switch param {
	case ParamDate:
		return fields[FieldDate].translate(raw, Lookups{})
	case ParamCategoryID, ParamMethodID:
		kind := FieldCategory
		if param == ParamMethodID {
			kind = FieldMethod
		}
		id, err := ParseID(raw)
		if err != nil {
			return Change{}, invalid(kind, err)
		}
		v := strconv.FormatInt(id, 10)
		return Change{Field: kind, Param: param, Value: v, Display: v}, nil
	case ParamAmount:
		return fields[FieldAmount].translate(raw, Lookups{})
	case ParamUserName:
		return fields[FieldUser].translate(raw, Lookups{})
	case ParamMemo:
		return fields[FieldMemo].translate(raw, Lookups{})
	}
	return Change{}, ErrUnknownField
}

// ReferenceID returns the id carried by a category or method change.
func (c Change) ReferenceID() (int64, bool) {
	if c.Param != ParamCategoryID && c.Param != ParamMethodID {
		return 0, false
	}
	id, err := strconv.ParseInt(c.Value, 10, 64)
	return id, err == nil
}

// AmountValue returns the integer carried by an amount change.
func (c Change) AmountValue() (int64, bool) {
	if c.Param != ParamAmount {
		return 0, false
	}
	n, err := strconv.ParseInt(c.Value, 10, 64)
	return n, err == nil
}
