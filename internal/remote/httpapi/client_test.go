package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gagyebu/internal/apiserver"
	"gagyebu/internal/core"
	"gagyebu/internal/remote"
	"gagyebu/internal/remote/memory"
	"gagyebu/internal/remote/storetest"
)

func newClient(t *testing.T, opts ...Option) (*Client, *memory.Store) {
	t.Helper()
	store := memory.NewSeeded()
	ts := httptest.NewServer(apiserver.NewServer(store, nil, nil).Handler())
	t.Cleanup(ts.Close)
	c, err := New(ts.URL+"/", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, store
}

func TestClientConformsToStore(t *testing.T) {
	c, _ := newClient(t)
	storetest.Run(t, c)
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"localhost:8000", "ftp://example.com", "://"} {
		if _, err := New(raw); err == nil {
			t.Fatalf("New(%q) should fail", raw)
		}
	}
}

func TestReferencesAreCached(t *testing.T) {
	var hits atomic.Int32
	store := memory.NewSeeded()
	api := apiserver.NewServer(store, nil, nil).Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/categories" && r.Method == http.MethodGet {
			hits.Add(1)
		}
		api.ServeHTTP(w, r)
	}))
	defer ts.Close()

	c, err := New(ts.URL, WithReferenceTTL(time.Minute))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for range 3 {
		if _, err := c.References(ctx, core.KindCategory); err != nil {
			t.Fatalf("References: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", hits.Load())
	}

	// a label added behind the client's back shows up only after Invalidate
	if _, err := store.CreateReference(ctx, core.KindCategory, "여행"); err != nil {
		t.Fatalf("CreateReference: %v", err)
	}
	set, _ := c.References(ctx, core.KindCategory)
	if _, ok := set.Lookup("여행"); ok {
		t.Fatalf("cached set should be stale")
	}
	c.Invalidate()
	set, _ = c.References(ctx, core.KindCategory)
	if _, ok := set.Lookup("여행"); !ok {
		t.Fatalf("Invalidate did not drop the cache")
	}
	if hits.Load() != 2 {
		t.Fatalf("expected two fetches, got %d", hits.Load())
	}

	// writes through the client evict that kind
	if _, err := c.CreateReference(ctx, core.KindCategory, "경조사"); err != nil {
		t.Fatalf("CreateReference: %v", err)
	}
	set, _ = c.References(ctx, core.KindCategory)
	if _, ok := set.Lookup("경조사"); !ok {
		t.Fatalf("client write did not evict the cache")
	}
}

func TestCachingDisabled(t *testing.T) {
	c, _ := newClient(t, WithReferenceTTL(0))
	if c.ReferenceCache() != nil {
		t.Fatalf("expected no cache")
	}
	c.Invalidate()
	if _, err := c.References(context.Background(), core.KindMethod); err != nil {
		t.Fatalf("References: %v", err)
	}
}

func TestStatusErrors(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	_, err := c.CreateRecord(ctx, core.Creation{Date: "2024-05-01", CategoryID: 1, MethodID: 1, Amount: 1})
	var se *remote.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if se.Message == "" {
		t.Fatalf("server message not carried")
	}
	if IsUnavailable(err) {
		t.Fatalf("a rejection is not an outage")
	}

	if _, err := c.References(ctx, core.ReferenceKind("users")); !errors.Is(err, remote.ErrInvalid) {
		t.Fatalf("unknown kind should fail locally, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url, WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.ListRecords(context.Background(), core.CurrentMonth(time.UTC))
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestServerErrorBodyFallsBackToText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, _ := New(ts.URL)
	err := c.DeleteRecord(context.Background(), 1)
	var se *remote.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway || se.Message != "upstream broke" {
		t.Fatalf("unexpected error %#v", err)
	}
	if remote.StatusCode(err) != http.StatusBadGateway {
		t.Fatalf("status not preserved")
	}
}
