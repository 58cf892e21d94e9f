package core

import (
	"net/url"
	"strconv"
	"strings"
)

type (
	// NewRecord is the raw add-form input. Category and method arrive as ids picked from a select.
	NewRecord struct {
		Date       string
		CategoryID string
		MethodID   string
		Amount     string
		User       string
		Memo       string
	}

	// Creation is a validated NewRecord ready to be sent to the record API.
	Creation struct {
		Date       string
		CategoryID int64
		MethodID   int64
		Amount     int64
		User       string
		Memo       string
	}
)

// NewRecordFromParams reads an add form from wire parameters.
func NewRecordFromParams(get func(string) string) NewRecord {
	return NewRecord{
		Date:       get(ParamDate),
		CategoryID: get(ParamCategoryID),
		MethodID:   get(ParamMethodID),
		Amount:     get(ParamAmount),
		User:       get(ParamUserName),
		Memo:       get(ParamMemo),
	}
}

// Validate checks the required fields in column order and returns the first violation.
func (n NewRecord) Validate() (Creation, error) {
	var c Creation

	date := strings.TrimSpace(n.Date)
	if date == "" {
		return c, invalid(FieldDate, ErrRequired)
	}
	if !ValidDate(date) {
		return c, invalid(FieldDate, ErrInvalidDate)
	}
	c.Date = date

	id, err := requiredID(FieldCategory, n.CategoryID, ErrUnknownCategory)
	if err != nil {
		return c, err
	}
	c.CategoryID = id

	if id, err = requiredID(FieldMethod, n.MethodID, ErrUnknownMethod); err != nil {
		return c, err
	}
	c.MethodID = id

	if strings.TrimSpace(n.Amount) == "" {
		return c, invalid(FieldAmount, ErrRequired)
	}
	amount, err := ParseAmount(n.Amount)
	if err != nil {
		return c, invalid(FieldAmount, err)
	}
	c.Amount = amount

	user := strings.TrimSpace(n.User)
	if user == "" {
		return c, invalid(FieldUser, ErrEmptyUser)
	}
	c.User = user
	c.Memo = n.Memo
	return c, nil
}

func requiredID(field FieldKind, raw string, unknown error) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, invalid(field, ErrRequired)
	}
	id, err := ParseID(raw)
	if err != nil {
		return 0, invalid(field, unknown)
	}
	return id, nil
}

// Params encodes the creation as record API query parameters.
func (c Creation) Params() url.Values {
	v := url.Values{}
	v.Set(ParamDate, c.Date)
	v.Set(ParamCategoryID, strconv.FormatInt(c.CategoryID, 10))
	v.Set(ParamMethodID, strconv.FormatInt(c.MethodID, 10))
	v.Set(ParamAmount, strconv.FormatInt(c.Amount, 10))
	v.Set(ParamUserName, c.User)
	v.Set(ParamMemo, c.Memo)
	return v
}

// Params encodes the change as a single record API query parameter.
func (c Change) Params() url.Values {
	v := url.Values{}
	v.Set(c.Param, c.Value)
	return v
}
