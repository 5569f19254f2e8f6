package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgParamCeiling is the wire-protocol bind-parameter limit (int16).
const pgParamCeiling = 65535

func dollarPlaceholder(i int) string {
	return "$" + strconv.Itoa(i+1)
}

// PostgresStore is the PostgreSQL dialect, backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool

	stagingReady bool
}

// OpenPostgres connects a pool to the given URL and verifies connectivity.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateSchema creates the canonical and ingestion tables plus simple-config
// tsvector indexes over owner and manufacturer names.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS dataset_ingestions (
		id                  BIGSERIAL PRIMARY KEY,
		source_url          TEXT NOT NULL,
		downloaded_at       TIMESTAMPTZ NOT NULL,
		data_version        TEXT,
		trigger_type        TEXT NOT NULL,
		status              TEXT NOT NULL,
		started_at          TIMESTAMPTZ NOT NULL,
		completed_at        TIMESTAMPTZ,
		failed_at           TIMESTAMPTZ,
		total_manufacturers BIGINT,
		total_models        BIGINT,
		total_engines       BIGINT,
		total_aircraft      BIGINT,
		total_owners        BIGINT,
		total_owner_links   BIGINT,
		error_message       TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ingestions_started ON dataset_ingestions(started_at);

	CREATE TABLE IF NOT EXISTS manufacturers (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS aircraft_models (
		id                  BIGSERIAL PRIMARY KEY,
		code                TEXT NOT NULL UNIQUE,
		manufacturer_id     BIGINT NOT NULL REFERENCES manufacturers(id),
		model_name          TEXT NOT NULL,
		type_aircraft       TEXT,
		type_engine         TEXT,
		category            TEXT,
		build_certification TEXT,
		number_of_engines   INT,
		number_of_seats     INT,
		weight_class        TEXT,
		cruise_speed        INT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_models_manufacturer ON aircraft_models(manufacturer_id);

	CREATE TABLE IF NOT EXISTS engines (
		id           BIGSERIAL PRIMARY KEY,
		code         TEXT NOT NULL UNIQUE,
		manufacturer TEXT,
		model        TEXT,
		type         TEXT,
		horsepower   INT,
		thrust       INT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS aircraft (
		id                       BIGSERIAL PRIMARY KEY,
		tail_number              TEXT NOT NULL UNIQUE,
		serial_number            TEXT,
		model_id                 BIGINT REFERENCES aircraft_models(id),
		engine_id                BIGINT REFERENCES engines(id),
		engine_code              TEXT,
		year_manufactured        INT,
		registrant_type          TEXT,
		certification            TEXT,
		aircraft_type            TEXT,
		engine_type              TEXT,
		status_code              TEXT,
		mode_s_code              TEXT,
		mode_s_code_hex          TEXT,
		fractional_ownership     BOOLEAN,
		airworthiness_class      TEXT,
		expiration_date          TIMESTAMPTZ,
		last_activity_date       TIMESTAMPTZ,
		certification_issue_date TIMESTAMPTZ,
		kit_manufacturer         TEXT,
		kit_model                TEXT,
		status_code_change_date  TIMESTAMPTZ,
		ingestion_id             BIGINT,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_aircraft_status ON aircraft(status_code);
	CREATE INDEX IF NOT EXISTS idx_aircraft_model ON aircraft(model_id);
	CREATE INDEX IF NOT EXISTS idx_aircraft_engine ON aircraft(engine_id);

	CREATE TABLE IF NOT EXISTS owners (
		id            BIGSERIAL PRIMARY KEY,
		external_key  TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		address_line1 TEXT,
		address_line2 TEXT,
		city          TEXT,
		state         TEXT,
		postal_code   TEXT,
		country       TEXT,
		region        TEXT,
		county        TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS aircraft_owners (
		aircraft_id      BIGINT NOT NULL REFERENCES aircraft(id),
		owner_id         BIGINT NOT NULL REFERENCES owners(id),
		ownership_type   TEXT,
		last_action_date TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (aircraft_id, owner_id)
	);

	CREATE INDEX IF NOT EXISTS idx_aircraft_owners_owner ON aircraft_owners(owner_id);

	CREATE INDEX IF NOT EXISTS idx_owners_name_fts
		ON owners USING gin (to_tsvector('simple', name));
	CREATE INDEX IF NOT EXISTS idx_manufacturers_name_fts
		ON manufacturers USING gin (to_tsvector('simple', name));
	`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ensureStaging(ctx context.Context) error {
	if s.stagingReady {
		return nil
	}
	schema := `
	CREATE TABLE IF NOT EXISTS staging_manufacturers (
		ingestion_id BIGINT NOT NULL,
		name         TEXT NOT NULL,
		PRIMARY KEY (ingestion_id, name)
	);

	CREATE TABLE IF NOT EXISTS staging_models (
		ingestion_id        BIGINT NOT NULL,
		code                TEXT NOT NULL,
		manufacturer_name   TEXT NOT NULL,
		model_name          TEXT NOT NULL,
		type_aircraft       TEXT,
		type_engine         TEXT,
		category            TEXT,
		build_certification TEXT,
		number_of_engines   INT,
		number_of_seats     INT,
		weight_class        TEXT,
		cruise_speed        INT,
		PRIMARY KEY (ingestion_id, code)
	);

	CREATE TABLE IF NOT EXISTS staging_engines (
		ingestion_id BIGINT NOT NULL,
		code         TEXT NOT NULL,
		manufacturer TEXT,
		model        TEXT,
		type         TEXT,
		horsepower   INT,
		thrust       INT,
		PRIMARY KEY (ingestion_id, code)
	);

	CREATE TABLE IF NOT EXISTS staging_aircraft (
		ingestion_id             BIGINT NOT NULL,
		tail_number              TEXT NOT NULL,
		serial_number            TEXT,
		model_code               TEXT,
		engine_code              TEXT,
		year_manufactured        INT,
		registrant_type          TEXT,
		certification            TEXT,
		aircraft_type            TEXT,
		engine_type              TEXT,
		status_code              TEXT,
		mode_s_code              TEXT,
		mode_s_code_hex          TEXT,
		fractional_ownership     BOOLEAN,
		airworthiness_class      TEXT,
		expiration_date          TIMESTAMPTZ,
		last_activity_date       TIMESTAMPTZ,
		certification_issue_date TIMESTAMPTZ,
		kit_manufacturer         TEXT,
		kit_model                TEXT,
		status_code_change_date  TIMESTAMPTZ,
		PRIMARY KEY (ingestion_id, tail_number)
	);

	CREATE TABLE IF NOT EXISTS staging_owners (
		ingestion_id  BIGINT NOT NULL,
		external_key  TEXT NOT NULL,
		name          TEXT NOT NULL,
		address_line1 TEXT,
		address_line2 TEXT,
		city          TEXT,
		state         TEXT,
		postal_code   TEXT,
		country       TEXT,
		region        TEXT,
		county        TEXT,
		PRIMARY KEY (ingestion_id, external_key)
	);

	CREATE TABLE IF NOT EXISTS staging_aircraft_owners (
		ingestion_id       BIGINT NOT NULL,
		tail_number        TEXT NOT NULL,
		owner_external_key TEXT NOT NULL,
		ownership_type     TEXT,
		last_action_date   TIMESTAMPTZ,
		PRIMARY KEY (ingestion_id, tail_number, owner_external_key)
	);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create staging schema: %w", err)
	}
	s.stagingReady = true
	return nil
}

// Prepare ensures the staging schema exists and clears leftover rows from a
// prior attempt with the same ingestion id.
func (s *PostgresStore) Prepare(ctx context.Context, ingestionID int64) error {
	if err := s.ensureStaging(ctx); err != nil {
		return err
	}
	return s.Cleanup(ctx, ingestionID)
}

// Cleanup deletes all staged rows for the run.
func (s *PostgresStore) Cleanup(ctx context.Context, ingestionID int64) error {
	if err := s.ensureStaging(ctx); err != nil {
		return err
	}
	for _, table := range stagingTables {
		if _, err := s.pool.Exec(ctx, "DELETE FROM "+table+" WHERE ingestion_id = $1", ingestionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *PostgresStore) stage(ctx context.Context, table string, cols, conflictCols []string, total int, rowArgs func(i int) []any) error {
	if err := s.ensureStaging(ctx); err != nil {
		return err
	}
	perChunk := chunkRows(pgParamCeiling, len(cols))
	for start := 0; start < total; start += perChunk {
		end := start + perChunk
		if end > total {
			end = total
		}
		stmt := buildUpsert(dollarPlaceholder, table, cols, conflictCols, end-start)
		args := make([]any, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			args = append(args, rowArgs(i)...)
		}
		if _, err := s.pool.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("stage %s: %w", table, err)
		}
	}
	return nil
}

func (s *PostgresStore) StageManufacturers(ctx context.Context, ingestionID int64, rows []StagedManufacturer) error {
	return s.stage(ctx, "staging_manufacturers",
		[]string{"ingestion_id", "name"},
		[]string{"ingestion_id", "name"},
		len(rows), func(i int) []any {
			return []any{ingestionID, rows[i].Name}
		})
}

func (s *PostgresStore) StageModels(ctx context.Context, ingestionID int64, rows []StagedModel) error {
	cols := []string{"ingestion_id", "code", "manufacturer_name", "model_name",
		"type_aircraft", "type_engine", "category", "build_certification",
		"number_of_engines", "number_of_seats", "weight_class", "cruise_speed"}
	return s.stage(ctx, "staging_models", cols,
		[]string{"ingestion_id", "code"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.Code, r.ManufacturerName, r.ModelName,
				r.TypeAircraft, r.TypeEngine, r.Category, r.BuildCertification,
				r.NumberOfEngines, r.NumberOfSeats, r.WeightClass, r.CruiseSpeed}
		})
}

func (s *PostgresStore) StageEngines(ctx context.Context, ingestionID int64, rows []StagedEngine) error {
	cols := []string{"ingestion_id", "code", "manufacturer", "model", "type", "horsepower", "thrust"}
	return s.stage(ctx, "staging_engines", cols,
		[]string{"ingestion_id", "code"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.Code, r.Manufacturer, r.Model, r.Type, r.Horsepower, r.Thrust}
		})
}

func (s *PostgresStore) StageAircraft(ctx context.Context, ingestionID int64, rows []StagedAircraft) error {
	cols := []string{"ingestion_id", "tail_number", "serial_number", "model_code",
		"engine_code", "year_manufactured", "registrant_type", "certification",
		"aircraft_type", "engine_type", "status_code", "mode_s_code",
		"mode_s_code_hex", "fractional_ownership", "airworthiness_class",
		"expiration_date", "last_activity_date", "certification_issue_date",
		"kit_manufacturer", "kit_model", "status_code_change_date"}
	return s.stage(ctx, "staging_aircraft", cols,
		[]string{"ingestion_id", "tail_number"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.TailNumber, r.SerialNumber, r.ModelCode,
				r.EngineCode, r.YearManufactured, r.RegistrantType, r.Certification,
				r.AircraftType, r.EngineType, r.StatusCode, r.ModeSCode,
				r.ModeSCodeHex, r.FractionalOwnership, r.AirworthinessClass,
				r.ExpirationDate, r.LastActivityDate, r.CertificationIssueDate,
				r.KitManufacturer, r.KitModel, r.StatusCodeChangeDate}
		})
}

func (s *PostgresStore) StageOwners(ctx context.Context, ingestionID int64, rows []StagedOwner) error {
	cols := []string{"ingestion_id", "external_key", "name", "address_line1",
		"address_line2", "city", "state", "postal_code", "country", "region", "county"}
	return s.stage(ctx, "staging_owners", cols,
		[]string{"ingestion_id", "external_key"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.ExternalKey, r.Name, r.AddressLine1,
				r.AddressLine2, r.City, r.State, r.PostalCode, r.Country, r.Region, r.County}
		})
}

func (s *PostgresStore) StageOwnerLinks(ctx context.Context, ingestionID int64, rows []StagedOwnerLink) error {
	cols := []string{"ingestion_id", "tail_number", "owner_external_key", "ownership_type", "last_action_date"}
	return s.stage(ctx, "staging_aircraft_owners", cols,
		[]string{"ingestion_id", "tail_number", "owner_external_key"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.TailNumber, r.OwnerExternalKey, r.OwnershipType, r.LastActionDate}
		})
}

func (s *PostgresStore) merge(ctx context.Context, stmt string, ingestionID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, stmt, ingestionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) MergeManufacturers(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO manufacturers (name)
		SELECT s.name FROM staging_manufacturers s
		WHERE s.ingestion_id = $1
		ON CONFLICT (name) DO UPDATE SET updated_at = now()
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge manufacturers: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MergeModels(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO aircraft_models (code, manufacturer_id, model_name, type_aircraft,
			type_engine, category, build_certification, number_of_engines,
			number_of_seats, weight_class, cruise_speed)
		SELECT s.code, m.id, s.model_name, s.type_aircraft, s.type_engine,
			s.category, s.build_certification, s.number_of_engines,
			s.number_of_seats, s.weight_class, s.cruise_speed
		FROM staging_models s
		JOIN manufacturers m ON m.name = s.manufacturer_name
		WHERE s.ingestion_id = $1
		ON CONFLICT (code) DO UPDATE SET
			manufacturer_id = excluded.manufacturer_id,
			model_name = excluded.model_name,
			type_aircraft = excluded.type_aircraft,
			type_engine = excluded.type_engine,
			category = excluded.category,
			build_certification = excluded.build_certification,
			number_of_engines = excluded.number_of_engines,
			number_of_seats = excluded.number_of_seats,
			weight_class = excluded.weight_class,
			cruise_speed = excluded.cruise_speed,
			updated_at = now()
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge models: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MergeEngines(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO engines (code, manufacturer, model, type, horsepower, thrust)
		SELECT s.code, s.manufacturer, s.model, s.type, s.horsepower, s.thrust
		FROM staging_engines s
		WHERE s.ingestion_id = $1
		ON CONFLICT (code) DO UPDATE SET
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			type = excluded.type,
			horsepower = excluded.horsepower,
			thrust = excluded.thrust,
			updated_at = now()
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge engines: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MergeAircraft(ctx context.Context, ingestionID int64) (int64, error) {
	// LEFT JOINs resolve model and engine ids: unresolved codes merge as
	// NULL, not as errors.
	n, err := s.merge(ctx, `
		INSERT INTO aircraft (tail_number, serial_number, model_id, engine_id,
			engine_code, year_manufactured, registrant_type, certification,
			aircraft_type, engine_type, status_code, mode_s_code, mode_s_code_hex,
			fractional_ownership, airworthiness_class, expiration_date,
			last_activity_date, certification_issue_date, kit_manufacturer,
			kit_model, status_code_change_date, ingestion_id)
		SELECT s.tail_number, s.serial_number, am.id, e.id, s.engine_code,
			s.year_manufactured, s.registrant_type, s.certification,
			s.aircraft_type, s.engine_type, s.status_code, s.mode_s_code,
			s.mode_s_code_hex, s.fractional_ownership, s.airworthiness_class,
			s.expiration_date, s.last_activity_date, s.certification_issue_date,
			s.kit_manufacturer, s.kit_model, s.status_code_change_date, s.ingestion_id
		FROM staging_aircraft s
		LEFT JOIN aircraft_models am ON am.code = s.model_code
		LEFT JOIN engines e ON e.code = s.engine_code
		WHERE s.ingestion_id = $1
		ON CONFLICT (tail_number) DO UPDATE SET
			serial_number = excluded.serial_number,
			model_id = excluded.model_id,
			engine_id = excluded.engine_id,
			engine_code = excluded.engine_code,
			year_manufactured = excluded.year_manufactured,
			registrant_type = excluded.registrant_type,
			certification = excluded.certification,
			aircraft_type = excluded.aircraft_type,
			engine_type = excluded.engine_type,
			status_code = excluded.status_code,
			mode_s_code = excluded.mode_s_code,
			mode_s_code_hex = excluded.mode_s_code_hex,
			fractional_ownership = excluded.fractional_ownership,
			airworthiness_class = excluded.airworthiness_class,
			expiration_date = excluded.expiration_date,
			last_activity_date = excluded.last_activity_date,
			certification_issue_date = excluded.certification_issue_date,
			kit_manufacturer = excluded.kit_manufacturer,
			kit_model = excluded.kit_model,
			status_code_change_date = excluded.status_code_change_date,
			ingestion_id = excluded.ingestion_id,
			updated_at = now()
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge aircraft: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MergeOwners(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO owners (external_key, name, address_line1, address_line2,
			city, state, postal_code, country, region, county)
		SELECT s.external_key, s.name, s.address_line1, s.address_line2,
			s.city, s.state, s.postal_code, s.country, s.region, s.county
		FROM staging_owners s
		WHERE s.ingestion_id = $1
		ON CONFLICT (external_key) DO UPDATE SET
			name = excluded.name,
			address_line1 = excluded.address_line1,
			address_line2 = excluded.address_line2,
			city = excluded.city,
			state = excluded.state,
			postal_code = excluded.postal_code,
			country = excluded.country,
			region = excluded.region,
			county = excluded.county,
			updated_at = now()
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge owners: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MergeOwnerLinks(ctx context.Context, ingestionID int64) (int64, error) {
	// INNER JOINs: links whose aircraft or owner never merged are dropped.
	n, err := s.merge(ctx, `
		INSERT INTO aircraft_owners (aircraft_id, owner_id, ownership_type, last_action_date)
		SELECT a.id, o.id, s.ownership_type, s.last_action_date
		FROM staging_aircraft_owners s
		JOIN aircraft a ON a.tail_number = s.tail_number
		JOIN owners o ON o.external_key = s.owner_external_key
		WHERE s.ingestion_id = $1
		ON CONFLICT (aircraft_id, owner_id) DO UPDATE SET
			ownership_type = excluded.ownership_type,
			last_action_date = excluded.last_action_date,
			updated_at = now()
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge owner links: %w", err)
	}
	return n, nil
}

// StartIngestion creates the run record with status RUNNING.
func (s *PostgresStore) StartIngestion(ctx context.Context, meta IngestionMeta) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO dataset_ingestions (source_url, downloaded_at, data_version, trigger_type, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, meta.SourceURL, meta.DownloadedAt, meta.DataVersion, meta.Trigger, StatusRunning, meta.StartedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start ingestion: %w", err)
	}
	return id, nil
}

// CompleteIngestion finalizes the run with totals, clearing any error.
func (s *PostgresStore) CompleteIngestion(ctx context.Context, id int64, stats Stats) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE dataset_ingestions SET
			status = $1,
			completed_at = now(),
			failed_at = NULL,
			error_message = NULL,
			total_manufacturers = $2,
			total_models = $3,
			total_engines = $4,
			total_aircraft = $5,
			total_owners = $6,
			total_owner_links = $7
		WHERE id = $8
	`, StatusCompleted, stats.Manufacturers, stats.AircraftModels, stats.Engines,
		stats.Aircraft, stats.Owners, stats.OwnerLinks, id)
	if err != nil {
		return fmt.Errorf("complete ingestion: %w", err)
	}
	return nil
}

// FailIngestion marks the run FAILED with the (already truncated) message.
func (s *PostgresStore) FailIngestion(ctx context.Context, id int64, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE dataset_ingestions SET
			status = $1,
			failed_at = now(),
			completed_at = NULL,
			error_message = $2
		WHERE id = $3
	`, StatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("fail ingestion: %w", err)
	}
	return nil
}

// LatestIngestion returns the most recently started run, or nil if no run has
// ever happened.
func (s *PostgresStore) LatestIngestion(ctx context.Context) (*Ingestion, error) {
	var ing Ingestion
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_url, downloaded_at, data_version, trigger_type, status,
			started_at, completed_at, failed_at,
			total_manufacturers, total_models, total_engines,
			total_aircraft, total_owners, total_owner_links, error_message
		FROM dataset_ingestions
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`).Scan(&ing.ID, &ing.SourceURL, &ing.DownloadedAt, &ing.DataVersion,
		&ing.Trigger, &ing.Status, &ing.StartedAt, &ing.CompletedAt, &ing.FailedAt,
		&ing.Totals.Manufacturers, &ing.Totals.Models, &ing.Totals.Engines,
		&ing.Totals.Aircraft, &ing.Totals.Owners, &ing.Totals.OwnerLinks,
		&ing.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest ingestion: %w", err)
	}
	return &ing, nil
}

// IsFullTextUnavailable matches the Postgres error codes for a missing or
// unusable full-text configuration: undefined object, feature not supported,
// undefined function. Anything else must propagate.
func (s *PostgresStore) IsFullTextUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42704", "0A000", "42883":
		return true
	}
	return false
}
