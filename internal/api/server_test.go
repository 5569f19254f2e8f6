package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aircraft_registry/internal/refresh"
	"aircraft_registry/internal/store"
)

// fakeSearcher records the last params and returns a canned result.
type fakeSearcher struct {
	lastParams store.SearchParams
	result     *store.SearchResult
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, params store.SearchParams) (*store.SearchResult, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &store.SearchResult{Data: nil, Total: 0}, nil
}

type fakeRefresher struct {
	result    *refresh.Result
	refreshFn func() error
	status    *refresh.Status
	statusErr error
}

func (f *fakeRefresher) Refresh(context.Context, string) (*refresh.Result, error) {
	if f.refreshFn != nil {
		if err := f.refreshFn(); err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

func (f *fakeRefresher) LatestStatus(context.Context) (*refresh.Status, error) {
	return f.status, f.statusErr
}

func newTestServer(searcher Searcher, refresher Refresher) http.Handler {
	return NewServer(searcher, refresher, Config{Port: 8080}, nil).Router()
}

func doGet(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(&fakeSearcher{}, &fakeRefresher{})

	rec, body := doGet(t, router, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
}

func TestSearchRequiresAFilter(t *testing.T) {
	router := newTestServer(&fakeSearcher{}, &fakeRefresher{})

	rec, body := doGet(t, router, "/api/v1/airplanes")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if body["error"] != "at least one search filter is required" {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}

func TestSearchTailNumberValidation(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTail   string
		wantExact  bool
	}{
		{name: "lowercase normalized and prefixed", query: "tailNumber=123ab", wantStatus: 200, wantTail: "N123AB"},
		{name: "existing prefix kept", query: "tailNumber=N8320S", wantStatus: 200, wantTail: "N8320S"},
		{name: "surrounding whitespace trimmed", query: "tailNumber=%20n12345%20", wantStatus: 200, wantTail: "N12345"},
		{name: "exact flag", query: "tailNumber=N12345&exact=true", wantStatus: 200, wantTail: "N12345", wantExact: true},
		{name: "non-alphanumeric rejected", query: "tailNumber=N-123", wantStatus: 400},
		{name: "bare prefix rejected", query: "tailNumber=N", wantStatus: 400},
		{name: "too long after prefixing", query: "tailNumber=1234567890", wantStatus: 400},
		{name: "bad exact flag", query: "tailNumber=N12345&exact=maybe", wantStatus: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{}
			router := newTestServer(searcher, &fakeRefresher{})

			rec, _ := doGet(t, router, "/api/v1/airplanes?"+tt.query)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if searcher.lastParams.TailNumber == nil {
				t.Fatal("expected tail number filter to be set")
			}
			if got := searcher.lastParams.TailNumber.Value; got != tt.wantTail {
				t.Errorf("expected tail %q, got %q", tt.wantTail, got)
			}
			if got := searcher.lastParams.TailNumber.Exact; got != tt.wantExact {
				t.Errorf("expected exact=%v, got %v", tt.wantExact, got)
			}
		})
	}
}

func TestSearchFilterNormalization(t *testing.T) {
	searcher := &fakeSearcher{}
	router := newTestServer(searcher, &fakeRefresher{})

	rec, body := doGet(t, router, "/api/v1/airplanes?status=valid&manufacturer=Cessna&owner=Smith")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	if searcher.lastParams.Status == nil || *searcher.lastParams.Status != "VALID" {
		t.Errorf("expected status uppercased to VALID, got %v", searcher.lastParams.Status)
	}
	if searcher.lastParams.Manufacturer == nil || *searcher.lastParams.Manufacturer != "Cessna" {
		t.Errorf("unexpected manufacturer filter: %v", searcher.lastParams.Manufacturer)
	}

	filters, ok := body["filters"].(map[string]any)
	if !ok {
		t.Fatalf("expected filters object, got %T", body["filters"])
	}
	if filters["status"] != "VALID" {
		t.Errorf("expected echoed status VALID, got %v", filters["status"])
	}
	if filters["tailNumber"] != nil {
		t.Errorf("expected tailNumber echo to be null, got %v", filters["tailNumber"])
	}
}

func TestSearchPaginationMeta(t *testing.T) {
	searcher := &fakeSearcher{result: &store.SearchResult{Total: 41}}
	router := newTestServer(searcher, &fakeRefresher{})

	rec, body := doGet(t, router, "/api/v1/airplanes?status=VALID&page=2&pageSize=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if searcher.lastParams.Page != 2 || searcher.lastParams.PageSize != 10 {
		t.Errorf("expected page=2 pageSize=10, got %d/%d", searcher.lastParams.Page, searcher.lastParams.PageSize)
	}

	meta := body["meta"].(map[string]any)
	if meta["total"] != float64(41) {
		t.Errorf("expected total 41, got %v", meta["total"])
	}
	if meta["totalPages"] != float64(5) {
		t.Errorf("expected totalPages 5, got %v", meta["totalPages"])
	}
}

func TestSearchEmptyResultHasZeroPages(t *testing.T) {
	router := newTestServer(&fakeSearcher{}, &fakeRefresher{})

	_, body := doGet(t, router, "/api/v1/airplanes?status=VALID")
	meta := body["meta"].(map[string]any)
	if meta["totalPages"] != float64(0) {
		t.Errorf("expected totalPages 0 for empty result, got %v", meta["totalPages"])
	}
	if data, ok := body["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("expected empty data array, got %v", body["data"])
	}
}

func TestSearchPaginationValidation(t *testing.T) {
	router := newTestServer(&fakeSearcher{}, &fakeRefresher{})

	for _, query := range []string{"page=0", "page=1001", "pageSize=0", "pageSize=101", "page=abc"} {
		rec, _ := doGet(t, router, "/api/v1/airplanes?status=VALID&"+query)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: expected status 400, got %d", query, rec.Code)
		}
	}
}

func TestSearchErrorIsNotLeaked(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("pq: relation aircraft does not exist")}
	router := newTestServer(searcher, &fakeRefresher{})

	rec, body := doGet(t, router, "/api/v1/airplanes?status=VALID")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if body["error"] != "search failed" {
		t.Errorf("expected generic error message, got %v", body["error"])
	}
}

func TestSearchResponseShape(t *testing.T) {
	city := "WICHITA"
	mfr := "CESSNA"
	last := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{result: &store.SearchResult{
		Total: 1,
		Data: []store.AircraftSummary{{
			TailNumber:       "N12345",
			Manufacturer:     &mfr,
			LastActivityDate: &last,
			Owners: []store.OwnerSummary{
				{Name: "ACME AVIATION LLC", City: &city},
			},
		}},
	}}
	router := newTestServer(searcher, &fakeRefresher{})

	rec, body := doGet(t, router, "/api/v1/airplanes?tailNumber=N12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	data := body["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 aircraft, got %d", len(data))
	}
	aircraft := data[0].(map[string]any)
	if aircraft["tailNumber"] != "N12345" {
		t.Errorf("unexpected tailNumber: %v", aircraft["tailNumber"])
	}
	if aircraft["manufacturer"] != "CESSNA" {
		t.Errorf("unexpected manufacturer: %v", aircraft["manufacturer"])
	}
	if aircraft["serialNumber"] != nil {
		t.Errorf("expected null serialNumber, got %v", aircraft["serialNumber"])
	}
	if aircraft["lastActivityDate"] != "2026-03-01T00:00:00Z" {
		t.Errorf("unexpected lastActivityDate: %v", aircraft["lastActivityDate"])
	}

	owners := aircraft["owners"].([]any)
	if len(owners) != 1 {
		t.Fatalf("expected 1 owner, got %d", len(owners))
	}
	owner := owners[0].(map[string]any)
	if owner["name"] != "ACME AVIATION LLC" || owner["city"] != "WICHITA" {
		t.Errorf("unexpected owner payload: %v", owner)
	}
}

func TestManualRefresh(t *testing.T) {
	version := "W/\"etag-1\""
	refresher := &fakeRefresher{result: &refresh.Result{
		IngestionID: 7,
		Duration:    1500 * time.Millisecond,
		DataVersion: &version,
		Stats:       store.Stats{Aircraft: 2, Owners: 3},
	}}
	router := newTestServer(&fakeSearcher{}, refresher)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/airplanes/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["ingestionId"] != float64(7) {
		t.Errorf("expected ingestionId 7, got %v", body["ingestionId"])
	}
	if body["durationMs"] != float64(1500) {
		t.Errorf("expected durationMs 1500, got %v", body["durationMs"])
	}
	stats := body["stats"].(map[string]any)
	if stats["owners"] != float64(3) {
		t.Errorf("expected 3 owners in stats, got %v", stats["owners"])
	}
}

func TestManualRefreshConflict(t *testing.T) {
	refresher := &fakeRefresher{refreshFn: func() error { return refresh.ErrRefreshInProgress }}
	router := newTestServer(&fakeSearcher{}, refresher)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/airplanes/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestRefreshStatusEndpoint(t *testing.T) {
	id := int64(3)
	refresher := &fakeRefresher{status: &refresh.Status{ID: &id, Status: store.StatusCompleted}}
	router := newTestServer(&fakeSearcher{}, refresher)

	rec, body := doGet(t, router, "/api/v1/airplanes/refresh-status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body["id"] != float64(3) {
		t.Errorf("expected id 3, got %v", body["id"])
	}
	if body["status"] != store.StatusCompleted {
		t.Errorf("unexpected status: %v", body["status"])
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestServer(&fakeSearcher{}, &fakeRefresher{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/airplanes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}
}
