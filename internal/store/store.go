// Package store persists the aircraft registry: ingestion-run records,
// per-run staging tables, set-based merges into the canonical tables, and the
// read-path search queries. One interface, two dialect implementations
// (PostgreSQL and SQLite) selected by configuration; they share the sequence
// logic upstream and differ only in emitted statement text, upsert syntax,
// parameter ceilings and full-text predicates.
package store

import (
	"context"
	"fmt"
	"time"
)

// Trigger values recorded on an ingestion run.
const (
	TriggerManual    = "MANUAL"
	TriggerScheduled = "SCHEDULED"
)

// Ingestion run status values. A run is mutated exactly twice: created as
// RUNNING, finalized as COMPLETED or FAILED.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Stats holds per-entity merge totals for one ingestion run.
type Stats struct {
	Manufacturers  int64
	AircraftModels int64
	Engines        int64
	Aircraft       int64
	Owners         int64
	OwnerLinks     int64
}

// Totals is the nullable projection of Stats as stored on the run record.
type Totals struct {
	Manufacturers *int64
	Models        *int64
	Engines       *int64
	Aircraft      *int64
	Owners        *int64
	OwnerLinks    *int64
}

// IngestionMeta captures the immutable fields written when a run starts.
type IngestionMeta struct {
	SourceURL    string
	DataVersion  *string
	DownloadedAt time.Time
	StartedAt    time.Time
	Trigger      string
}

// Ingestion is one refresh attempt as recorded in the store.
type Ingestion struct {
	ID           int64
	SourceURL    string
	DownloadedAt time.Time
	DataVersion  *string
	Trigger      string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	FailedAt     *time.Time
	Totals       Totals
	ErrorMessage *string
}

// Staged row kinds, keyed by (ingestionID, natural key). Re-staging the same
// key within one run overwrites.

type StagedManufacturer struct {
	Name string
}

type StagedModel struct {
	Code               string
	ManufacturerName   string
	ModelName          string
	TypeAircraft       *string
	TypeEngine         *string
	Category           *string
	BuildCertification *string
	NumberOfEngines    *int
	NumberOfSeats      *int
	WeightClass        *string
	CruiseSpeed        *int
}

type StagedEngine struct {
	Code         string
	Manufacturer *string
	Model        *string
	Type         *string
	Horsepower   *int
	Thrust       *int
}

type StagedAircraft struct {
	TailNumber             string
	SerialNumber           *string
	ModelCode              *string
	EngineCode             *string
	YearManufactured       *int
	RegistrantType         *string
	Certification          *string
	AircraftType           *string
	EngineType             *string
	StatusCode             *string
	ModeSCode              *string
	ModeSCodeHex           *string
	FractionalOwnership    *bool
	AirworthinessClass     *string
	ExpirationDate         *time.Time
	LastActivityDate       *time.Time
	CertificationIssueDate *time.Time
	KitManufacturer        *string
	KitModel               *string
	StatusCodeChangeDate   *time.Time
}

type StagedOwner struct {
	ExternalKey  string
	Name         string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	State        *string
	PostalCode   *string
	Country      *string
	Region       *string
	County       *string
}

type StagedOwnerLink struct {
	TailNumber       string
	OwnerExternalKey string
	OwnershipType    *string
	LastActionDate   *time.Time
}

// TextMatchMode selects the text-filter strategy for search.
type TextMatchMode int

const (
	// MatchFullText uses the dialect's indexed full-text predicate.
	MatchFullText TextMatchMode = iota
	// MatchSubstring uses case-insensitive substring matching.
	MatchSubstring
)

// TailNumberFilter matches a tail number exactly or by prefix.
type TailNumberFilter struct {
	Value string
	Exact bool
}

// SearchParams are the validated filters and pagination for a search. At
// least one filter is enforced upstream by the HTTP layer.
type SearchParams struct {
	TailNumber   *TailNumberFilter
	Status       *string
	Manufacturer *string
	Owner        *string
	Page         int
	PageSize     int
}

// HasTextFilter reports whether a full-text-capable filter is present.
func (p SearchParams) HasTextFilter() bool {
	return p.Manufacturer != nil || p.Owner != nil
}

// OwnerSummary is one owner row in a search result, ordered by owner name.
type OwnerSummary struct {
	Name           string
	City           *string
	State          *string
	Country        *string
	OwnershipType  *string
	LastActionDate *time.Time
}

// AircraftSummary is one aircraft row in a search result.
type AircraftSummary struct {
	TailNumber             string
	SerialNumber           *string
	StatusCode             *string
	RegistrantType         *string
	Manufacturer           *string
	Model                  *string
	ModelCode              *string
	EngineManufacturer     *string
	EngineModel            *string
	AirworthinessClass     *string
	CertificationIssueDate *time.Time
	ExpirationDate         *time.Time
	LastActivityDate       *time.Time
	FractionalOwnership    *bool
	Owners                 []OwnerSummary
}

// SearchResult is one page of matching aircraft plus the total match count.
type SearchResult struct {
	Data  []AircraftSummary
	Total int64
}

// Store is the persistence contract shared by both dialects.
type Store interface {
	// CreateSchema creates the canonical and ingestion tables. Idempotent.
	CreateSchema(ctx context.Context) error

	// Ingestion run lifecycle. The record is owned by the orchestrator.
	StartIngestion(ctx context.Context, meta IngestionMeta) (int64, error)
	CompleteIngestion(ctx context.Context, id int64, stats Stats) error
	FailIngestion(ctx context.Context, id int64, message string) error
	LatestIngestion(ctx context.Context) (*Ingestion, error)

	// Prepare ensures the staging schema exists (lazy, guarded) and clears
	// leftover rows from any prior attempt with the same ingestion id.
	Prepare(ctx context.Context, ingestionID int64) error

	// Staged bulk writes, chunked to the dialect's parameter ceiling. Each
	// call is an idempotent insert-or-update keyed by (ingestionID, natural
	// key); rows within one call must already be deduplicated by key.
	StageManufacturers(ctx context.Context, ingestionID int64, rows []StagedManufacturer) error
	StageModels(ctx context.Context, ingestionID int64, rows []StagedModel) error
	StageEngines(ctx context.Context, ingestionID int64, rows []StagedEngine) error
	StageAircraft(ctx context.Context, ingestionID int64, rows []StagedAircraft) error
	StageOwners(ctx context.Context, ingestionID int64, rows []StagedOwner) error
	StageOwnerLinks(ctx context.Context, ingestionID int64, rows []StagedOwnerLink) error

	// Set-based merges promoting staged rows into the canonical tables.
	// Each returns the number of rows written. Dependency order across the
	// six merges is a correctness requirement enforced by the caller.
	MergeManufacturers(ctx context.Context, ingestionID int64) (int64, error)
	MergeModels(ctx context.Context, ingestionID int64) (int64, error)
	MergeEngines(ctx context.Context, ingestionID int64) (int64, error)
	MergeAircraft(ctx context.Context, ingestionID int64) (int64, error)
	MergeOwners(ctx context.Context, ingestionID int64) (int64, error)
	MergeOwnerLinks(ctx context.Context, ingestionID int64) (int64, error)

	// Cleanup deletes all staged rows for the run. Best-effort at run end.
	Cleanup(ctx context.Context, ingestionID int64) error

	// SearchAircraft runs the two-phase paginated lookup using the given
	// text-match mode.
	SearchAircraft(ctx context.Context, params SearchParams, mode TextMatchMode) (*SearchResult, error)

	// IsFullTextUnavailable reports whether err carries this dialect's
	// signature for "full-text search unavailable on this column". It is
	// deliberately narrow; other query errors must not match.
	IsFullTextUnavailable(err error) bool

	Close() error
}

// Config selects and configures a store dialect.
type Config struct {
	Driver string // "postgres" or "sqlite"
	URL    string // connection string or sqlite path/DSN
}

// Open opens the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.URL)
	case "sqlite":
		return OpenSQLite(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
