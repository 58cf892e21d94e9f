package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"gagyebu/internal/core"
	"gagyebu/internal/notify"
	"gagyebu/internal/remote/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store, *notify.Version) {
	t.Helper()
	store := memory.NewSeeded()
	v := &notify.Version{}
	srv := NewServer(store, v, nil)
	srv.EnableMetrics()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, v
}

func do(t *testing.T, method, url, contentType, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestCreateRecordAcceptsQueryFormAndJSON(t *testing.T) {
	ts, _, v := newTestServer(t)

	cases := []struct {
		name, url, contentType, body string
	}{
		{"query", ts.URL + "/records?date=2024-05-01&category_id=1&method_id=1&amount=1000&user_name=mina&etc=", "", ""},
		{"form", ts.URL + "/records", "application/x-www-form-urlencoded", "date=2024-05-02&category_id=2&method_id=1&amount=200&user_name=jun"},
		{"json", ts.URL + "/records", "application/json", `{"date":"2024-05-03","category_id":1,"method_id":2,"amount":3000,"user_name":" mina ","etc":"점심"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, tc.url, tc.contentType, tc.body)
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("status = %d, body %v", resp.StatusCode, body)
			}
			if body["id"] == nil || body["category"] == "" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
	if v.Current() != 3 {
		t.Fatalf("expected 3 notifications, got %d", v.Current())
	}
}

func TestCreateRecordValidation(t *testing.T) {
	ts, _, v := newTestServer(t)
	for name, path := range map[string]string{
		"missing user":     "/records?date=2024-05-01&category_id=1&method_id=1&amount=1",
		"negative amount":  "/records?date=2024-05-01&category_id=1&method_id=1&amount=-1&user_name=a",
		"bad date":         "/records?date=2024-02-30&category_id=1&method_id=1&amount=1&user_name=a",
		"unknown category": "/records?date=2024-05-01&category_id=99&method_id=1&amount=1&user_name=a",
	} {
		resp, body := do(t, http.MethodPost, ts.URL+path, "", "")
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status = %d", name, resp.StatusCode)
		}
		if body["error"] == nil {
			t.Fatalf("%s: missing error message", name)
		}
	}
	if v.Current() != 0 {
		t.Fatalf("rejected requests must not notify")
	}
}

func TestPatchRecord(t *testing.T) {
	ts, store, _ := newTestServer(t)
	rec, _ := store.CreateRecord(context.Background(), core.Creation{Date: "2024-05-01", CategoryID: 1, MethodID: 1, Amount: 1000, User: "mina"})
	target := ts.URL + "/records/" + itoa(rec.ID)

	resp, body := do(t, http.MethodPatch, target+"?amount=2000", "", "")
	if resp.StatusCode != http.StatusOK || body["amount"].(float64) != 2000 {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	if body["user"] != "mina" || body["date"] != "2024-05-01" {
		t.Fatalf("patch must answer with the full record, got %v", body)
	}

	for name, tc := range map[string]struct {
		url  string
		code int
	}{
		"two fields":  {target + "?amount=1&user_name=x", http.StatusUnprocessableEntity},
		"no field":    {target, http.StatusUnprocessableEntity},
		"bad amount":  {target + "?amount=abc", http.StatusUnprocessableEntity},
		"blank user":  {target + "?user_name=%20", http.StatusUnprocessableEntity},
		"unknown id":  {ts.URL + "/records/999?amount=1", http.StatusNotFound},
		"bad id":      {ts.URL + "/records/abc?amount=1", http.StatusNotFound},
		"unknown ref": {target + "?method_id=77", http.StatusUnprocessableEntity},
	} {
		resp, _ := do(t, http.MethodPatch, tc.url, "", "")
		if resp.StatusCode != tc.code {
			t.Fatalf("%s: status = %d, want %d", name, resp.StatusCode, tc.code)
		}
	}
}

func TestListRecordsRange(t *testing.T) {
	ts, store, _ := newTestServer(t)
	ctx := context.Background()
	for _, d := range []string{"2024-04-30", "2024-05-01", "2024-05-31", "2024-06-01"} {
		_, _ = store.CreateRecord(ctx, core.Creation{Date: d, CategoryID: 1, MethodID: 1, Amount: 1, User: "a"})
	}

	resp, err := http.Get(ts.URL + "/records?start_date=2024-05-01&end_date=2024-05-31")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var recs []core.Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[0].Date != "2024-05-31" || recs[1].Date != "2024-05-01" {
		t.Fatalf("unexpected records %+v", recs)
	}

	bad, _ := do(t, http.MethodGet, ts.URL+"/records?start_date=2024-05-31&end_date=2024-05-01", "", "")
	if bad.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("inverted range status = %d", bad.StatusCode)
	}
}

func TestDeleteRecord(t *testing.T) {
	ts, store, v := newTestServer(t)
	rec, _ := store.CreateRecord(context.Background(), core.Creation{Date: "2024-05-01", CategoryID: 1, MethodID: 1, Amount: 1, User: "a"})

	resp, _ := do(t, http.MethodDelete, ts.URL+"/records/"+itoa(rec.ID), "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ev, _ := v.Last(); ev.Kind != notify.KindDeleted || ev.Date != "2024-05-01" {
		t.Fatalf("unexpected event %+v", ev)
	}
	resp, _ = do(t, http.MethodDelete, ts.URL+"/records/"+itoa(rec.ID), "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestReferenceRoutes(t *testing.T) {
	ts, store, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/categories?type="+url.QueryEscape("여행"), "", "")
	if resp.StatusCode != http.StatusCreated || body["type"] != "여행" {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	id := itoa(int64(body["id"].(float64)))

	resp, body = do(t, http.MethodPut, ts.URL+"/categories/"+id, "application/x-www-form-urlencoded", "type="+url.QueryEscape("해외여행"))
	if resp.StatusCode != http.StatusOK || body["type"] != "해외여행" {
		t.Fatalf("rename: %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, ts.URL+"/methods?type=%20", "", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("blank label status = %d", resp.StatusCode)
	}

	_, _ = store.CreateRecord(context.Background(), core.Creation{Date: "2024-05-01", CategoryID: 1, MethodID: 1, Amount: 1, User: "a"})
	resp, _ = do(t, http.MethodDelete, ts.URL+"/categories/1", "", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete in-use status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, ts.URL+"/categories/"+id, "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	list, err := http.Get(ts.URL + "/methods")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer list.Body.Close()
	var methods []core.Reference
	_ = json.NewDecoder(list.Body).Decode(&methods)
	if len(methods) != 3 || methods[0].Type != "카드" {
		t.Fatalf("unexpected methods %+v", methods)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestParseParamsPrefersBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/records?user_name=query&amount=1", strings.NewReader(`{"user_name":"body","etc":null}`))
	p, err := parseParams(req)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if p.Get("user_name") != "body" || p.Get("amount") != "1" {
		t.Fatalf("unexpected merge: %q %q", p.Get("user_name"), p.Get("amount"))
	}
	if _, ok := p.Lookup("etc"); ok {
		t.Fatalf("null must read as absent")
	}

	bad := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{"user_name":`))
	if _, err := parseParams(bad); err == nil {
		t.Fatalf("expected malformed body error")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
