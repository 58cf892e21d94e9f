package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gagyebu/internal/core"
)

const maxBodyBytes = 64 << 10

// ParseRangeParams reads the date range of a table request. It accepts from/to
// (or the record API's start_date/end_date), or month=YYYY-MM; with none of them
// it returns the current month in loc.
func ParseRangeParams(query url.Values, loc *time.Location) (core.DateRange, error) {
	from := firstParam(query, "from", "start_date")
	to := firstParam(query, "to", "end_date")
	if from != "" || to != "" {
		rng := core.DateRange{Start: from, End: to}
		if err := rng.Validate(); err != nil {
			return core.DateRange{}, err
		}
		return rng, nil
	}
	if month := strings.TrimSpace(query.Get("month")); month != "" {
		return core.MonthOf(month + "-01")
	}
	return core.CurrentMonth(loc), nil
}

func firstParam(query url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(query.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// ParseCellParams reads {id} and {field} from the route.
func ParseCellParams(r *http.Request) (int64, core.FieldKind, error) {
	id, err := ParseIDParam(r)
	if err != nil {
		return 0, 0, err
	}
	field, err := core.ParseFieldKind(chi.URLParam(r, "field"))
	if err != nil {
		return 0, 0, err
	}
	return id, field, nil
}

// ParseIDParam reads the {id} route parameter.
func ParseIDParam(r *http.Request) (int64, error) {
	id, err := core.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, errors.New("invalid record id")
	}
	return id, nil
}

// RequestBodyParser reads JSON or form bodies, the two shapes htmx sends.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body once and keeps it for later lookups.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	// query parameters count as a fallback
	p.formData = r.URL.Query()
	return p
}

// Parse decodes the body as JSON when it looks like JSON, else as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil || len(p.body) == 0 {
		return p.err
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
		}
		return p.err
	}

	form, err := url.ParseQuery(string(p.body))
	if err != nil {
		p.err = err
		return err
	}
	for k, v := range form {
		p.formData[k] = v
	}
	return nil
}

// Raw returns a value with control characters removed but whitespace kept.
func (p *RequestBodyParser) Raw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	return sanitizeInput(p.formData.Get(key))
}

// Get returns a trimmed value.
func (p *RequestBodyParser) Get(key string) string {
	return strings.TrimSpace(p.Raw(key))
}

// Has reports whether the request carries key at all, even empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		if _, ok := p.jsonData[key]; ok {
			return true
		}
	}
	return p.formData.Has(key)
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// confirmed reports whether a delete request carries confirm=yes.
func confirmed(p *RequestBodyParser) bool {
	switch strings.ToLower(p.Get("confirm")) {
	case "yes", "true", "1":
		return true
	}
	return false
}
