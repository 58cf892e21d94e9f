// Package httpapi is the HTTP client for the record API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/metrics"
	"gagyebu/internal/remote"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultReferenceTTL = 5 * time.Minute

	maxErrorBody = 4 << 10
)

// Client implements remote.Store against a running record API.
type Client struct {
	base   *url.URL
	http   *http.Client
	refs   *cache.LRUCache[core.ReferenceSet]
	logger *log.Logger
}

var _ remote.Store = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithReferenceTTL sets how long category and method lists are reused. Zero disables caching.
func WithReferenceTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.refs = nil
			return
		}
		c.refs = cache.NewLRUCache[core.ReferenceSet](4, ttl)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentRemote)
		}
	}
}

// New returns a client for the API rooted at baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		refs:   cache.NewLRUCache[core.ReferenceSet](4, DefaultReferenceTTL),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReferenceCache exposes the reference cache so a cache.Manager can expire it.
func (c *Client) ReferenceCache() cache.Cleaner {
	if c.refs == nil {
		return nil
	}
	return c.refs
}

// Invalidate drops the cached reference lists.
func (c *Client) Invalidate() {
	if c.refs != nil {
		c.refs.Clear()
	}
}

func (c *Client) ListRecords(ctx context.Context, rng core.DateRange) ([]core.Record, error) {
	q := url.Values{}
	if rng.Start != "" {
		q.Set("start_date", rng.Start)
	}
	if rng.End != "" {
		q.Set("end_date", rng.End)
	}
	var out []core.Record
	if err := c.do(ctx, "list_records", http.MethodGet, "/records", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) References(ctx context.Context, kind core.ReferenceKind) (core.ReferenceSet, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: reference kind %q", remote.ErrInvalid, kind)
	}
	if c.refs != nil {
		if set, ok := c.refs.Get(string(kind)); ok {
			return set, nil
		}
	}
	var out core.ReferenceSet
	if err := c.do(ctx, "list_"+string(kind), http.MethodGet, "/"+string(kind), nil, &out); err != nil {
		return nil, err
	}
	if c.refs != nil {
		c.refs.Set(string(kind), out)
	}
	return out, nil
}

func (c *Client) CreateRecord(ctx context.Context, cr core.Creation) (core.Record, error) {
	var out core.Record
	err := c.do(ctx, "create_record", http.MethodPost, "/records", cr.Params(), &out)
	return out, err
}

func (c *Client) PatchRecord(ctx context.Context, id int64, ch core.Change) (core.Record, error) {
	var out core.Record
	err := c.do(ctx, "patch_record", http.MethodPatch, recordPath(id), ch.Params(), &out)
	return out, err
}

func (c *Client) DeleteRecord(ctx context.Context, id int64) error {
	return c.do(ctx, "delete_record", http.MethodDelete, recordPath(id), nil, nil)
}

func (c *Client) CreateReference(ctx context.Context, kind core.ReferenceKind, label string) (core.Reference, error) {
	var out core.Reference
	err := c.do(ctx, "create_"+string(kind), http.MethodPost, "/"+string(kind), url.Values{"type": {label}}, &out)
	c.forget(kind)
	return out, err
}

func (c *Client) RenameReference(ctx context.Context, kind core.ReferenceKind, id int64, label string) (core.Reference, error) {
	var out core.Reference
	path := "/" + string(kind) + "/" + strconv.FormatInt(id, 10)
	err := c.do(ctx, "rename_"+string(kind), http.MethodPut, path, url.Values{"type": {label}}, &out)
	c.forget(kind)
	return out, err
}

func (c *Client) DeleteReference(ctx context.Context, kind core.ReferenceKind, id int64) error {
	path := "/" + string(kind) + "/" + strconv.FormatInt(id, 10)
	err := c.do(ctx, "delete_"+string(kind), http.MethodDelete, path, nil, nil)
	c.forget(kind)
	return err
}

func (c *Client) forget(kind core.ReferenceKind) {
	if c.refs != nil {
		c.refs.Delete(string(kind))
	}
}

func recordPath(id int64) string {
	return "/records/" + strconv.FormatInt(id, 10)
}

// do sends a request with query parameters and decodes a JSON answer into out, when non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveRemote(op, start)
	if err != nil {
		c.logger.WarnContext(ctx, "Record API unreachable", log.FieldOperation, op, log.FieldError, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &remote.StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.logger.WarnContext(ctx, "Record API rejected request",
			log.FieldOperation, op, log.FieldStatusCode, resp.StatusCode, log.FieldError, se.Message)
		return se
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} bodies and falls back to the raw text.
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

// IsUnavailable reports whether err means the API could not be reached at all.
func IsUnavailable(err error) bool {
	var se *remote.StatusError
	return err != nil && !errors.As(err, &se) && !errors.Is(err, context.Canceled)
}
