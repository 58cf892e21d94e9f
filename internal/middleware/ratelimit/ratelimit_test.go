package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 3})
	defer rl.Stop()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		if !rl.Allow("a") {
			t.Fatalf("request %d refused", i+1)
		}
	}
	if rl.Allow("a") {
		t.Fatal("fourth request in the window must be refused")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own window")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("a new window must allow again")
	}
	if rl.ActiveClients() != 2 {
		t.Fatalf("ActiveClients() = %d", rl.ActiveClients())
	}

	now = now.Add(11 * time.Minute)
	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 0 {
		t.Fatalf("stale clients not removed: %d", rl.ActiveClients())
	}
}

func TestLimiterMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1})
	defer rl.Stop()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	key := func(r *http.Request) string { return r.RemoteAddr }

	t.Run("default refusal", func(t *testing.T) {
		h := rl.Middleware(key, nil)(next)
		codes := []int{}
		for range 2 {
			req := httptest.NewRequest(http.MethodPost, "/ui/cells/1/amount/commit", nil)
			req.RemoteAddr = "198.51.100.1:1"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
			if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
				t.Error("Retry-After missing")
			}
		}
		if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
			t.Fatalf("codes = %v", codes)
		}
	})

	t.Run("custom refusal", func(t *testing.T) {
		h := rl.Middleware(key, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})(next)
		req := httptest.NewRequest(http.MethodPost, "/ui/records", nil)
		req.RemoteAddr = "198.51.100.1:1"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusTeapot {
			t.Fatalf("code = %d", rec.Code)
		}
	})
}
