package apiserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const maxBodyBytes = 64 << 10

var errMalformedBody = errors.New("malformed request body")

// params merges query string, form body and JSON body parameters.
// Body values win over query values with the same name.
type params struct {
	query url.Values
	body  map[string]string
}

func parseParams(r *http.Request) (*params, error) {
	p := &params{query: r.URL.Query(), body: map[string]string{}}
	if r.Body == nil {
		return p, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return p, nil
	}

	if raw[0] == '{' {
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, errMalformedBody
		}
		for k, v := range data {
			if s, ok := stringValue(v); ok {
				p.body[k] = s
			}
		}
		return p, nil
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, errMalformedBody
	}
	for k := range form {
		p.body[k] = form.Get(k)
	}
	return p, nil
}

// Get returns the raw value of key, untrimmed, or "" when absent.
func (p *params) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

func (p *params) Lookup(key string) (string, bool) {
	if v, ok := p.body[key]; ok {
		return v, true
	}
	if p.query.Has(key) {
		return p.query.Get(key), true
	}
	return "", false
}

// stringValue converts a decoded JSON scalar to its parameter form. null is absent.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}
