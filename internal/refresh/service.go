// Package refresh orchestrates dataset refresh runs: download the archive,
// record the run, stage and merge, finalize the record. One run at a time per
// Service instance; a periodic Scheduler drives scheduled runs.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aircraft_registry/internal/events"
	"aircraft_registry/internal/ingest"
	"aircraft_registry/internal/store"
	"aircraft_registry/internal/telemetry"
)

// ErrRefreshInProgress is returned when a refresh is requested while another
// one is still running. Callers fail fast; there is no queueing.
var ErrRefreshInProgress = errors.New("dataset refresh is already in progress")

// StatusNotAvailable is the read-model status before any run has happened.
const StatusNotAvailable = "NOT_AVAILABLE"

// errorMessageLimit caps the stored failure message.
const errorMessageLimit = 1000

// Ingestor runs the stage+merge pipeline over a downloaded archive.
// Swappable in tests for failure injection.
type Ingestor func(ctx context.Context, archivePath string, st store.Store, ingestionID int64) (store.Stats, error)

// EventPublisher announces completed refreshes. Optional.
type EventPublisher interface {
	DatasetRefreshed(event events.DatasetRefreshed)
}

// Result summarizes one completed refresh run.
type Result struct {
	IngestionID int64
	Stats       store.Stats
	Duration    time.Duration
	Trigger     string
	DataVersion *string
}

// Status is the latest-run read model consumed by the HTTP layer.
type Status struct {
	ID           *int64       `json:"id"`
	Status       string       `json:"status"`
	Trigger      *string      `json:"trigger"`
	DownloadedAt *time.Time   `json:"downloadedAt"`
	StartedAt    *time.Time   `json:"startedAt"`
	CompletedAt  *time.Time   `json:"completedAt"`
	FailedAt     *time.Time   `json:"failedAt"`
	DataVersion  *string      `json:"dataVersion"`
	Totals       store.Totals `json:"totals"`
	ErrorMessage *string      `json:"errorMessage"`
}

// Options configures optional Service collaborators.
type Options struct {
	Client  *http.Client
	Sink    telemetry.Sink
	Events  EventPublisher
	Logger  *log.Logger
	Ingest  Ingestor
	TempDir string
}

// Service owns the refresh lifecycle for one store.
type Service struct {
	store     store.Store
	sourceURL string
	client    *http.Client
	sink      telemetry.Sink
	events    EventPublisher
	logger    *log.Logger
	ingest    Ingestor
	tempDir   string

	mu       sync.Mutex
	inFlight bool
}

// NewService builds a Service for the given store and dataset URL.
func NewService(st store.Store, sourceURL string, opts Options) *Service {
	s := &Service{
		store:     st,
		sourceURL: sourceURL,
		client:    opts.Client,
		sink:      opts.Sink,
		events:    opts.Events,
		logger:    opts.Logger,
		ingest:    opts.Ingest,
		tempDir:   opts.TempDir,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 5 * time.Minute}
	}
	if s.sink == nil {
		s.sink = telemetry.Nop{}
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.ingest == nil {
		s.ingest = ingest.Run
	}
	return s
}

// IsRunning reports whether a refresh is currently in flight.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Refresh runs one refresh to completion. A second call while one is in
// flight returns ErrRefreshInProgress immediately.
func (s *Service) Refresh(ctx context.Context, trigger string) (*Result, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrRefreshInProgress
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	return s.execute(ctx, trigger)
}

func (s *Service) execute(ctx context.Context, trigger string) (*Result, error) {
	startedAt := time.Now().UTC()

	tempDir, err := os.MkdirTemp(s.tempDir, "registry-refresh-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			s.logger.Printf("[refresh] remove temp dir %s: %v", tempDir, err)
		}
	}()

	archivePath := filepath.Join(tempDir, "ReleasableAircraft.zip")
	s.logger.Printf("[refresh] starting %s refresh from %s (tempDir=%s)", trigger, s.sourceURL, tempDir)

	dataVersion, err := s.download(ctx, s.sourceURL, archivePath)
	if err != nil {
		s.sink.RefreshFailed(ctx, trigger, time.Since(startedAt), err.Error())
		s.logger.Printf("[refresh] %s refresh failed before ingestion record was created: %v", trigger, err)
		return nil, err
	}
	downloadedAt := time.Now().UTC()

	ingestionID, err := s.store.StartIngestion(ctx, store.IngestionMeta{
		SourceURL:    s.sourceURL,
		DataVersion:  dataVersion,
		DownloadedAt: downloadedAt,
		StartedAt:    startedAt,
		Trigger:      trigger,
	})
	if err != nil {
		s.sink.RefreshFailed(ctx, trigger, time.Since(startedAt), err.Error())
		return nil, err
	}

	// Staged rows are ephemeral: cleared at run end whatever the outcome.
	defer func() {
		if err := s.store.Cleanup(context.WithoutCancel(ctx), ingestionID); err != nil {
			s.logger.Printf("[refresh] cleanup staged rows for ingestion %d: %v", ingestionID, err)
		}
	}()

	if err := s.store.Prepare(ctx, ingestionID); err != nil {
		return nil, s.fail(ctx, trigger, ingestionID, startedAt, err)
	}

	stats, err := s.ingest(ctx, archivePath, s.store, ingestionID)
	if err != nil {
		return nil, s.fail(ctx, trigger, ingestionID, startedAt, err)
	}

	if err := s.store.CompleteIngestion(ctx, ingestionID, stats); err != nil {
		return nil, s.fail(ctx, trigger, ingestionID, startedAt, err)
	}

	duration := time.Since(startedAt)
	s.logger.Printf("[refresh] completed %s refresh (ingestion=%d) in %dms: manufacturers=%d models=%d engines=%d aircraft=%d owners=%d links=%d",
		trigger, ingestionID, duration.Milliseconds(),
		stats.Manufacturers, stats.AircraftModels, stats.Engines,
		stats.Aircraft, stats.Owners, stats.OwnerLinks)

	s.sink.RefreshCompleted(ctx, trigger, duration, stats)
	if s.events != nil {
		s.events.DatasetRefreshed(events.DatasetRefreshed{
			IngestionID: ingestionID,
			DataVersion: dataVersion,
			CompletedAt: time.Now().UTC(),
		})
	}

	return &Result{
		IngestionID: ingestionID,
		Stats:       stats,
		Duration:    duration,
		Trigger:     trigger,
		DataVersion: dataVersion,
	}, nil
}

// fail finalizes the run record as FAILED and reports the original error.
// Marking failure is itself best-effort.
func (s *Service) fail(ctx context.Context, trigger string, ingestionID int64, startedAt time.Time, cause error) error {
	msg := cause.Error()
	if len(msg) > errorMessageLimit {
		msg = msg[:errorMessageLimit]
	}
	if err := s.store.FailIngestion(context.WithoutCancel(ctx), ingestionID, msg); err != nil {
		s.logger.Printf("[refresh] mark ingestion %d failed: %v", ingestionID, err)
	}
	duration := time.Since(startedAt)
	s.logger.Printf("[refresh] %s refresh failed (ingestion=%d) after %dms: %v", trigger, ingestionID, duration.Milliseconds(), cause)
	s.sink.RefreshFailed(ctx, trigger, duration, msg)
	return cause
}

// LatestStatus returns the read model for the most recent run, or the
// NOT_AVAILABLE sentinel when no run has ever happened.
func (s *Service) LatestStatus(ctx context.Context) (*Status, error) {
	ing, err := s.store.LatestIngestion(ctx)
	if err != nil {
		return nil, err
	}
	if ing == nil {
		return &Status{Status: StatusNotAvailable}, nil
	}
	return &Status{
		ID:           &ing.ID,
		Status:       ing.Status,
		Trigger:      &ing.Trigger,
		DownloadedAt: &ing.DownloadedAt,
		StartedAt:    &ing.StartedAt,
		CompletedAt:  ing.CompletedAt,
		FailedAt:     ing.FailedAt,
		DataVersion:  ing.DataVersion,
		Totals:       ing.Totals,
		ErrorMessage: ing.ErrorMessage,
	}, nil
}
