package refresh

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"aircraft_registry/internal/events"
	"aircraft_registry/internal/store"
)

// fakeStore records lifecycle calls so tests can assert ordering and
// payloads without a database.
type fakeStore struct {
	mu sync.Mutex

	nextID      int64
	startMeta   []store.IngestionMeta
	completed   map[int64]store.Stats
	failed      map[int64]string
	prepared    []int64
	cleanedUp   []int64
	latest      *store.Ingestion
	startErr    error
	completeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:    100,
		completed: make(map[int64]store.Stats),
		failed:    make(map[int64]string),
	}
}

func (f *fakeStore) CreateSchema(context.Context) error { return nil }
func (f *fakeStore) Close() error                       { return nil }

func (f *fakeStore) StartIngestion(_ context.Context, meta store.IngestionMeta) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.nextID++
	f.startMeta = append(f.startMeta, meta)
	return f.nextID, nil
}

func (f *fakeStore) CompleteIngestion(_ context.Context, id int64, stats store.Stats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[id] = stats
	return nil
}

func (f *fakeStore) FailIngestion(_ context.Context, id int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = message
	return nil
}

func (f *fakeStore) LatestIngestion(context.Context) (*store.Ingestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeStore) Prepare(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, id)
	return nil
}

func (f *fakeStore) Cleanup(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanedUp = append(f.cleanedUp, id)
	return nil
}

func (f *fakeStore) StageManufacturers(context.Context, int64, []store.StagedManufacturer) error {
	return nil
}
func (f *fakeStore) StageModels(context.Context, int64, []store.StagedModel) error       { return nil }
func (f *fakeStore) StageEngines(context.Context, int64, []store.StagedEngine) error     { return nil }
func (f *fakeStore) StageAircraft(context.Context, int64, []store.StagedAircraft) error  { return nil }
func (f *fakeStore) StageOwners(context.Context, int64, []store.StagedOwner) error       { return nil }
func (f *fakeStore) StageOwnerLinks(context.Context, int64, []store.StagedOwnerLink) error {
	return nil
}
func (f *fakeStore) MergeManufacturers(context.Context, int64) (int64, error) { return 0, nil }
func (f *fakeStore) MergeModels(context.Context, int64) (int64, error)        { return 0, nil }
func (f *fakeStore) MergeEngines(context.Context, int64) (int64, error)       { return 0, nil }
func (f *fakeStore) MergeAircraft(context.Context, int64) (int64, error)      { return 0, nil }
func (f *fakeStore) MergeOwners(context.Context, int64) (int64, error)        { return 0, nil }
func (f *fakeStore) MergeOwnerLinks(context.Context, int64) (int64, error)    { return 0, nil }

func (f *fakeStore) SearchAircraft(context.Context, store.SearchParams, store.TextMatchMode) (*store.SearchResult, error) {
	return &store.SearchResult{}, nil
}
func (f *fakeStore) IsFullTextUnavailable(error) bool { return false }

type fakePublisher struct {
	mu     sync.Mutex
	events []events.DatasetRefreshed
}

func (p *fakePublisher) DatasetRefreshed(e events.DatasetRefreshed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func newDatasetServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Last-Modified", "Mon, 03 Aug 2026 06:00:00 GMT")
		_, _ = w.Write([]byte("archive-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

var testStats = store.Stats{Manufacturers: 2, AircraftModels: 2, Engines: 2, Aircraft: 2, Owners: 3, OwnerLinks: 3}

func TestRefreshSuccess(t *testing.T) {
	fs := newFakeStore()
	pub := &fakePublisher{}
	srv := newDatasetServer(t)

	svc := NewService(fs, srv.URL, Options{
		Logger: quiet(),
		Events: pub,
		Ingest: func(context.Context, string, store.Store, int64) (store.Stats, error) {
			return testStats, nil
		},
	})

	res, err := svc.Refresh(context.Background(), store.TriggerManual)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Stats != testStats {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.DataVersion == nil || *res.DataVersion != "Mon, 03 Aug 2026 06:00:00 GMT" {
		t.Errorf("data version = %v", res.DataVersion)
	}

	if len(fs.startMeta) != 1 {
		t.Fatalf("ingestion records created = %d", len(fs.startMeta))
	}
	meta := fs.startMeta[0]
	if meta.Trigger != store.TriggerManual || meta.SourceURL != srv.URL {
		t.Errorf("meta = %+v", meta)
	}
	if got, ok := fs.completed[res.IngestionID]; !ok || got != testStats {
		t.Errorf("completed = %v", fs.completed)
	}
	if len(fs.prepared) != 1 || fs.prepared[0] != res.IngestionID {
		t.Errorf("prepared = %v", fs.prepared)
	}
	if len(fs.cleanedUp) != 1 || fs.cleanedUp[0] != res.IngestionID {
		t.Errorf("cleanup calls = %v, want exactly one", fs.cleanedUp)
	}
	if len(pub.events) != 1 || pub.events[0].IngestionID != res.IngestionID {
		t.Errorf("published events = %+v", pub.events)
	}
}

// blockingIngestor signals started on its first call and then waits for
// release. Later calls wait on release too, so a follow-up refresh after the
// release can reuse the same stub.
func blockingIngestor(started, release chan struct{}) Ingestor {
	var once sync.Once
	return func(context.Context, string, store.Store, int64) (store.Stats, error) {
		once.Do(func() { close(started) })
		<-release
		return testStats, nil
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	fs := newFakeStore()
	srv := newDatasetServer(t)

	started := make(chan struct{})
	release := make(chan struct{})
	svc := NewService(fs, srv.URL, Options{
		Logger: quiet(),
		Ingest: blockingIngestor(started, release),
	})

	type outcome struct {
		res *Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := svc.Refresh(context.Background(), store.TriggerManual)
		first <- outcome{res, err}
	}()

	<-started
	if !svc.IsRunning() {
		t.Error("IsRunning should report true mid-run")
	}
	if _, err := svc.Refresh(context.Background(), store.TriggerScheduled); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("concurrent refresh err = %v, want ErrRefreshInProgress", err)
	}

	close(release)
	out := <-first
	if out.err != nil {
		t.Fatalf("first refresh failed: %v", out.err)
	}
	if out.res.Stats != testStats {
		t.Errorf("first refresh stats = %+v", out.res.Stats)
	}

	// The slot is free again.
	if _, err := svc.Refresh(context.Background(), store.TriggerManual); err != nil {
		t.Fatalf("follow-up refresh: %v", err)
	}
}

func TestRefreshFailureMarksFailedAndCleansUp(t *testing.T) {
	fs := newFakeStore()
	srv := newDatasetServer(t)

	boom := errors.New("ingest MASTER: " + strings.Repeat("x", 1500))
	svc := NewService(fs, srv.URL, Options{
		Logger: quiet(),
		Ingest: func(context.Context, string, store.Store, int64) (store.Stats, error) {
			return store.Stats{}, boom
		},
	})

	_, err := svc.Refresh(context.Background(), store.TriggerScheduled)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	if len(fs.failed) != 1 {
		t.Fatalf("failed records = %v", fs.failed)
	}
	for _, msg := range fs.failed {
		if len(msg) != errorMessageLimit {
			t.Errorf("stored message length = %d, want truncation to %d", len(msg), errorMessageLimit)
		}
	}
	if len(fs.completed) != 0 {
		t.Errorf("completed = %v, want none", fs.completed)
	}
	if len(fs.cleanedUp) != 1 {
		t.Errorf("cleanup calls = %v, want exactly one despite the failure", fs.cleanedUp)
	}
}

func TestRefreshDownloadFailure(t *testing.T) {
	fs := newFakeStore()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	svc := NewService(fs, srv.URL, Options{Logger: quiet()})

	_, err := svc.Refresh(context.Background(), store.TriggerManual)
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("err = %v, want download status error", err)
	}
	if len(fs.startMeta) != 0 {
		t.Errorf("no ingestion record should exist for a failed download, got %d", len(fs.startMeta))
	}
	if len(fs.cleanedUp) != 0 {
		t.Errorf("nothing staged, nothing to clean, got %v", fs.cleanedUp)
	}
}

func TestLatestStatus(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, "http://unused", Options{Logger: quiet()})

	status, err := svc.LatestStatus(context.Background())
	if err != nil {
		t.Fatalf("latest status: %v", err)
	}
	if status.Status != StatusNotAvailable || status.ID != nil {
		t.Fatalf("sentinel status = %+v", status)
	}

	now := time.Now().UTC()
	total := int64(2)
	fs.latest = &store.Ingestion{
		ID:           7,
		Status:       store.StatusCompleted,
		Trigger:      store.TriggerScheduled,
		DownloadedAt: now,
		StartedAt:    now,
		CompletedAt:  &now,
		Totals:       store.Totals{Aircraft: &total},
	}
	status, err = svc.LatestStatus(context.Background())
	if err != nil {
		t.Fatalf("latest status: %v", err)
	}
	if status.ID == nil || *status.ID != 7 || status.Status != store.StatusCompleted {
		t.Fatalf("status = %+v", status)
	}
	if status.Totals.Aircraft == nil || *status.Totals.Aircraft != 2 {
		t.Fatalf("totals = %+v", status.Totals)
	}
}

func TestSchedulerSkipsWhileInProgress(t *testing.T) {
	fs := newFakeStore()
	srv := newDatasetServer(t)

	started := make(chan struct{})
	release := make(chan struct{})
	svc := NewService(fs, srv.URL, Options{
		Logger: quiet(),
		Ingest: blockingIngestor(started, release),
	})

	go func() {
		_, _ = svc.Refresh(context.Background(), store.TriggerManual)
	}()
	<-started

	sched := NewScheduler(svc, time.Minute, false, quiet())
	// A tick during the manual run must skip, not queue or fail.
	sched.tick()

	close(release)
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, "http://unused", Options{Logger: quiet()})
	sched := NewScheduler(svc, time.Minute, false, quiet())

	sched.Start()
	sched.Start()
	sched.Stop()
	sched.Stop()
}

func TestSchedulerFloorsInterval(t *testing.T) {
	fs := newFakeStore()
	svc := NewService(fs, "http://unused", Options{Logger: quiet()})
	sched := NewScheduler(svc, time.Second, false, quiet())
	if sched.interval != time.Minute {
		t.Fatalf("interval = %s, want 1m floor", sched.interval)
	}
}
