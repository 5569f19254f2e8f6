package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteParamCeiling is SQLite's default bound-parameter limit
// (SQLITE_MAX_VARIABLE_NUMBER).
const sqliteParamCeiling = 999

// SQLiteStore is the SQLite dialect. Dates are stored as RFC3339 text and
// booleans as 0/1 integers.
type SQLiteStore struct {
	db *sql.DB

	stagingOnce sync.Once
	stagingErr  error
}

// OpenSQLite opens or creates a SQLite database at the given path or DSN.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	// Search transactions and an in-flight refresh share this handle.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSchema creates the canonical and ingestion tables plus the FTS5
// full-text indexes over owner and manufacturer names.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS dataset_ingestions (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		source_url          TEXT NOT NULL,
		downloaded_at       TEXT NOT NULL,
		data_version        TEXT,
		trigger_type        TEXT NOT NULL,
		status              TEXT NOT NULL,
		started_at          TEXT NOT NULL,
		completed_at        TEXT,
		failed_at           TEXT,
		total_manufacturers INTEGER,
		total_models        INTEGER,
		total_engines       INTEGER,
		total_aircraft      INTEGER,
		total_owners        INTEGER,
		total_owner_links   INTEGER,
		error_message       TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ingestions_started ON dataset_ingestions(started_at);

	CREATE TABLE IF NOT EXISTS manufacturers (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		created_at  TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS aircraft_models (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		code                TEXT NOT NULL UNIQUE,
		manufacturer_id     INTEGER NOT NULL REFERENCES manufacturers(id),
		model_name          TEXT NOT NULL,
		type_aircraft       TEXT,
		type_engine         TEXT,
		category            TEXT,
		build_certification TEXT,
		number_of_engines   INTEGER,
		number_of_seats     INTEGER,
		weight_class        TEXT,
		cruise_speed        INTEGER,
		created_at          TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_models_manufacturer ON aircraft_models(manufacturer_id);

	CREATE TABLE IF NOT EXISTS engines (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		code        TEXT NOT NULL UNIQUE,
		manufacturer TEXT,
		model       TEXT,
		type        TEXT,
		horsepower  INTEGER,
		thrust      INTEGER,
		created_at  TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS aircraft (
		id                       INTEGER PRIMARY KEY AUTOINCREMENT,
		tail_number              TEXT NOT NULL UNIQUE,
		serial_number            TEXT,
		model_id                 INTEGER REFERENCES aircraft_models(id),
		engine_id                INTEGER REFERENCES engines(id),
		engine_code              TEXT,
		year_manufactured        INTEGER,
		registrant_type          TEXT,
		certification            TEXT,
		aircraft_type            TEXT,
		engine_type              TEXT,
		status_code              TEXT,
		mode_s_code              TEXT,
		mode_s_code_hex          TEXT,
		fractional_ownership     INTEGER,
		airworthiness_class      TEXT,
		expiration_date          TEXT,
		last_activity_date       TEXT,
		certification_issue_date TEXT,
		kit_manufacturer         TEXT,
		kit_model                TEXT,
		status_code_change_date  TEXT,
		ingestion_id             INTEGER,
		created_at               TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at               TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_aircraft_status ON aircraft(status_code);
	CREATE INDEX IF NOT EXISTS idx_aircraft_model ON aircraft(model_id);
	CREATE INDEX IF NOT EXISTS idx_aircraft_engine ON aircraft(engine_id);

	CREATE TABLE IF NOT EXISTS owners (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
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
		created_at    TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS aircraft_owners (
		aircraft_id      INTEGER NOT NULL REFERENCES aircraft(id),
		owner_id         INTEGER NOT NULL REFERENCES owners(id),
		ownership_type   TEXT,
		last_action_date TEXT,
		created_at       TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at       TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (aircraft_id, owner_id)
	);

	CREATE INDEX IF NOT EXISTS idx_aircraft_owners_owner ON aircraft_owners(owner_id);

	-- FTS5 virtual tables for full-text search on owner and manufacturer names.
	CREATE VIRTUAL TABLE IF NOT EXISTS owners_fts USING fts5(
		name,
		content='owners',
		content_rowid='id'
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS manufacturers_fts USING fts5(
		name,
		content='manufacturers',
		content_rowid='id'
	);

	-- Triggers to keep the FTS indexes in sync.
	CREATE TRIGGER IF NOT EXISTS owners_ai AFTER INSERT ON owners BEGIN
		INSERT INTO owners_fts(rowid, name) VALUES (new.id, new.name);
	END;

	CREATE TRIGGER IF NOT EXISTS owners_ad AFTER DELETE ON owners BEGIN
		INSERT INTO owners_fts(owners_fts, rowid, name) VALUES('delete', old.id, old.name);
	END;

	CREATE TRIGGER IF NOT EXISTS owners_au AFTER UPDATE ON owners BEGIN
		INSERT INTO owners_fts(owners_fts, rowid, name) VALUES('delete', old.id, old.name);
		INSERT INTO owners_fts(rowid, name) VALUES (new.id, new.name);
	END;

	CREATE TRIGGER IF NOT EXISTS manufacturers_ai AFTER INSERT ON manufacturers BEGIN
		INSERT INTO manufacturers_fts(rowid, name) VALUES (new.id, new.name);
	END;

	CREATE TRIGGER IF NOT EXISTS manufacturers_ad AFTER DELETE ON manufacturers BEGIN
		INSERT INTO manufacturers_fts(manufacturers_fts, rowid, name) VALUES('delete', old.id, old.name);
	END;

	CREATE TRIGGER IF NOT EXISTS manufacturers_au AFTER UPDATE ON manufacturers BEGIN
		INSERT INTO manufacturers_fts(manufacturers_fts, rowid, name) VALUES('delete', old.id, old.name);
		INSERT INTO manufacturers_fts(rowid, name) VALUES (new.id, new.name);
	END;
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ensureStaging lazily creates the staging tables. Guarded so repeated calls
// are no-ops.
func (s *SQLiteStore) ensureStaging(ctx context.Context) error {
	s.stagingOnce.Do(func() {
		schema := `
		CREATE TABLE IF NOT EXISTS staging_manufacturers (
			ingestion_id INTEGER NOT NULL,
			name         TEXT NOT NULL,
			PRIMARY KEY (ingestion_id, name)
		);

		CREATE TABLE IF NOT EXISTS staging_models (
			ingestion_id        INTEGER NOT NULL,
			code                TEXT NOT NULL,
			manufacturer_name   TEXT NOT NULL,
			model_name          TEXT NOT NULL,
			type_aircraft       TEXT,
			type_engine         TEXT,
			category            TEXT,
			build_certification TEXT,
			number_of_engines   INTEGER,
			number_of_seats     INTEGER,
			weight_class        TEXT,
			cruise_speed        INTEGER,
			PRIMARY KEY (ingestion_id, code)
		);

		CREATE TABLE IF NOT EXISTS staging_engines (
			ingestion_id INTEGER NOT NULL,
			code         TEXT NOT NULL,
			manufacturer TEXT,
			model        TEXT,
			type         TEXT,
			horsepower   INTEGER,
			thrust       INTEGER,
			PRIMARY KEY (ingestion_id, code)
		);

		CREATE TABLE IF NOT EXISTS staging_aircraft (
			ingestion_id             INTEGER NOT NULL,
			tail_number              TEXT NOT NULL,
			serial_number            TEXT,
			model_code               TEXT,
			engine_code              TEXT,
			year_manufactured        INTEGER,
			registrant_type          TEXT,
			certification            TEXT,
			aircraft_type            TEXT,
			engine_type              TEXT,
			status_code              TEXT,
			mode_s_code              TEXT,
			mode_s_code_hex          TEXT,
			fractional_ownership     INTEGER,
			airworthiness_class      TEXT,
			expiration_date          TEXT,
			last_activity_date       TEXT,
			certification_issue_date TEXT,
			kit_manufacturer         TEXT,
			kit_model                TEXT,
			status_code_change_date  TEXT,
			PRIMARY KEY (ingestion_id, tail_number)
		);

		CREATE TABLE IF NOT EXISTS staging_owners (
			ingestion_id  INTEGER NOT NULL,
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
			ingestion_id       INTEGER NOT NULL,
			tail_number        TEXT NOT NULL,
			owner_external_key TEXT NOT NULL,
			ownership_type     TEXT,
			last_action_date   TEXT,
			PRIMARY KEY (ingestion_id, tail_number, owner_external_key)
		);
		`
		_, s.stagingErr = s.db.ExecContext(ctx, schema)
		if s.stagingErr != nil {
			s.stagingErr = fmt.Errorf("create staging schema: %w", s.stagingErr)
		}
	})
	return s.stagingErr
}

// Prepare ensures the staging schema exists and clears leftover rows from a
// prior attempt with the same ingestion id.
func (s *SQLiteStore) Prepare(ctx context.Context, ingestionID int64) error {
	if err := s.ensureStaging(ctx); err != nil {
		return err
	}
	return s.Cleanup(ctx, ingestionID)
}

// Cleanup deletes all staged rows for the run.
func (s *SQLiteStore) Cleanup(ctx context.Context, ingestionID int64) error {
	if err := s.ensureStaging(ctx); err != nil {
		return err
	}
	for _, table := range stagingTables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE ingestion_id = ?", ingestionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

var stagingTables = []string{
	"staging_manufacturers",
	"staging_models",
	"staging_engines",
	"staging_aircraft",
	"staging_owners",
	"staging_aircraft_owners",
}

// stage writes rows in chunks sized to the parameter ceiling, one multi-row
// upsert statement per chunk.
func (s *SQLiteStore) stage(ctx context.Context, table string, cols, conflictCols []string, total int, rowArgs func(i int) []any) error {
	if err := s.ensureStaging(ctx); err != nil {
		return err
	}
	perChunk := chunkRows(sqliteParamCeiling, len(cols))
	for start := 0; start < total; start += perChunk {
		end := start + perChunk
		if end > total {
			end = total
		}
		stmt := buildUpsert(questionPlaceholder, table, cols, conflictCols, end-start)
		args := make([]any, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			args = append(args, rowArgs(i)...)
		}
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("stage %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) StageManufacturers(ctx context.Context, ingestionID int64, rows []StagedManufacturer) error {
	return s.stage(ctx, "staging_manufacturers",
		[]string{"ingestion_id", "name"},
		[]string{"ingestion_id", "name"},
		len(rows), func(i int) []any {
			return []any{ingestionID, rows[i].Name}
		})
}

func (s *SQLiteStore) StageModels(ctx context.Context, ingestionID int64, rows []StagedModel) error {
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

func (s *SQLiteStore) StageEngines(ctx context.Context, ingestionID int64, rows []StagedEngine) error {
	cols := []string{"ingestion_id", "code", "manufacturer", "model", "type", "horsepower", "thrust"}
	return s.stage(ctx, "staging_engines", cols,
		[]string{"ingestion_id", "code"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.Code, r.Manufacturer, r.Model, r.Type, r.Horsepower, r.Thrust}
		})
}

func (s *SQLiteStore) StageAircraft(ctx context.Context, ingestionID int64, rows []StagedAircraft) error {
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
				r.ModeSCodeHex, sqliteBool(r.FractionalOwnership), r.AirworthinessClass,
				sqliteTime(r.ExpirationDate), sqliteTime(r.LastActivityDate),
				sqliteTime(r.CertificationIssueDate), r.KitManufacturer, r.KitModel,
				sqliteTime(r.StatusCodeChangeDate)}
		})
}

func (s *SQLiteStore) StageOwners(ctx context.Context, ingestionID int64, rows []StagedOwner) error {
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

func (s *SQLiteStore) StageOwnerLinks(ctx context.Context, ingestionID int64, rows []StagedOwnerLink) error {
	cols := []string{"ingestion_id", "tail_number", "owner_external_key", "ownership_type", "last_action_date"}
	return s.stage(ctx, "staging_aircraft_owners", cols,
		[]string{"ingestion_id", "tail_number", "owner_external_key"},
		len(rows), func(i int) []any {
			r := rows[i]
			return []any{ingestionID, r.TailNumber, r.OwnerExternalKey, r.OwnershipType, sqliteTime(r.LastActionDate)}
		})
}

func (s *SQLiteStore) merge(ctx context.Context, stmt string, ingestionID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, stmt, ingestionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) MergeManufacturers(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO manufacturers (name)
		SELECT s.name FROM staging_manufacturers s
		WHERE s.ingestion_id = ?
		ON CONFLICT (name) DO UPDATE SET updated_at = datetime('now')
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge manufacturers: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MergeModels(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO aircraft_models (code, manufacturer_id, model_name, type_aircraft,
			type_engine, category, build_certification, number_of_engines,
			number_of_seats, weight_class, cruise_speed)
		SELECT s.code, m.id, s.model_name, s.type_aircraft, s.type_engine,
			s.category, s.build_certification, s.number_of_engines,
			s.number_of_seats, s.weight_class, s.cruise_speed
		FROM staging_models s
		JOIN manufacturers m ON m.name = s.manufacturer_name
		WHERE s.ingestion_id = ?
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
			updated_at = datetime('now')
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge models: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MergeEngines(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO engines (code, manufacturer, model, type, horsepower, thrust)
		SELECT s.code, s.manufacturer, s.model, s.type, s.horsepower, s.thrust
		FROM staging_engines s
		WHERE s.ingestion_id = ?
		ON CONFLICT (code) DO UPDATE SET
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			type = excluded.type,
			horsepower = excluded.horsepower,
			thrust = excluded.thrust,
			updated_at = datetime('now')
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge engines: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MergeAircraft(ctx context.Context, ingestionID int64) (int64, error) {
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
		WHERE s.ingestion_id = ?
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
			updated_at = datetime('now')
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge aircraft: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MergeOwners(ctx context.Context, ingestionID int64) (int64, error) {
	n, err := s.merge(ctx, `
		INSERT INTO owners (external_key, name, address_line1, address_line2,
			city, state, postal_code, country, region, county)
		SELECT s.external_key, s.name, s.address_line1, s.address_line2,
			s.city, s.state, s.postal_code, s.country, s.region, s.county
		FROM staging_owners s
		WHERE s.ingestion_id = ?
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
			updated_at = datetime('now')
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge owners: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MergeOwnerLinks(ctx context.Context, ingestionID int64) (int64, error) {
	// INNER JOINs: links whose aircraft or owner never merged are dropped.
	n, err := s.merge(ctx, `
		INSERT INTO aircraft_owners (aircraft_id, owner_id, ownership_type, last_action_date)
		SELECT a.id, o.id, s.ownership_type, s.last_action_date
		FROM staging_aircraft_owners s
		JOIN aircraft a ON a.tail_number = s.tail_number
		JOIN owners o ON o.external_key = s.owner_external_key
		WHERE s.ingestion_id = ?
		ON CONFLICT (aircraft_id, owner_id) DO UPDATE SET
			ownership_type = excluded.ownership_type,
			last_action_date = excluded.last_action_date,
			updated_at = datetime('now')
	`, ingestionID)
	if err != nil {
		return 0, fmt.Errorf("merge owner links: %w", err)
	}
	return n, nil
}

// StartIngestion creates the run record with status RUNNING.
func (s *SQLiteStore) StartIngestion(ctx context.Context, meta IngestionMeta) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dataset_ingestions (source_url, downloaded_at, data_version, trigger_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, meta.SourceURL, meta.DownloadedAt.UTC().Format(time.RFC3339), meta.DataVersion,
		meta.Trigger, StatusRunning, meta.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("start ingestion: %w", err)
	}
	return res.LastInsertId()
}

// CompleteIngestion finalizes the run with totals, clearing any error.
func (s *SQLiteStore) CompleteIngestion(ctx context.Context, id int64, stats Stats) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dataset_ingestions SET
			status = ?,
			completed_at = ?,
			failed_at = NULL,
			error_message = NULL,
			total_manufacturers = ?,
			total_models = ?,
			total_engines = ?,
			total_aircraft = ?,
			total_owners = ?,
			total_owner_links = ?
		WHERE id = ?
	`, StatusCompleted, time.Now().UTC().Format(time.RFC3339),
		stats.Manufacturers, stats.AircraftModels, stats.Engines,
		stats.Aircraft, stats.Owners, stats.OwnerLinks, id)
	if err != nil {
		return fmt.Errorf("complete ingestion: %w", err)
	}
	return nil
}

// FailIngestion marks the run FAILED with the (already truncated) message.
func (s *SQLiteStore) FailIngestion(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dataset_ingestions SET
			status = ?,
			failed_at = ?,
			completed_at = NULL,
			error_message = ?
		WHERE id = ?
	`, StatusFailed, time.Now().UTC().Format(time.RFC3339), message, id)
	if err != nil {
		return fmt.Errorf("fail ingestion: %w", err)
	}
	return nil
}

// LatestIngestion returns the most recently started run, or nil if no run has
// ever happened.
func (s *SQLiteStore) LatestIngestion(ctx context.Context) (*Ingestion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_url, downloaded_at, data_version, trigger_type, status,
			started_at, completed_at, failed_at,
			total_manufacturers, total_models, total_engines,
			total_aircraft, total_owners, total_owner_links, error_message
		FROM dataset_ingestions
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`)

	var ing Ingestion
	var downloadedAt, startedAt string
	var completedAt, failedAt, dataVersion, errMsg sql.NullString
	var tm, tmo, te, ta, to, tl sql.NullInt64
	err := row.Scan(&ing.ID, &ing.SourceURL, &downloadedAt, &dataVersion,
		&ing.Trigger, &ing.Status, &startedAt, &completedAt, &failedAt,
		&tm, &tmo, &te, &ta, &to, &tl, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest ingestion: %w", err)
	}

	ing.DownloadedAt = parseSQLiteTime(downloadedAt)
	ing.StartedAt = parseSQLiteTime(startedAt)
	ing.CompletedAt = nullTimePtr(completedAt)
	ing.FailedAt = nullTimePtr(failedAt)
	ing.DataVersion = nullStrPtr(dataVersion)
	ing.ErrorMessage = nullStrPtr(errMsg)
	ing.Totals = Totals{
		Manufacturers: nullInt64Ptr(tm),
		Models:        nullInt64Ptr(tmo),
		Engines:       nullInt64Ptr(te),
		Aircraft:      nullInt64Ptr(ta),
		Owners:        nullInt64Ptr(to),
		OwnerLinks:    nullInt64Ptr(tl),
	}
	return &ing, nil
}

// IsFullTextUnavailable matches the SQLite signatures for a missing or
// unusable FTS5 index. Deliberately narrow: any other query error must
// propagate.
func (s *SQLiteStore) IsFullTextUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such module: fts5") ||
		strings.Contains(msg, "no such table: owners_fts") ||
		strings.Contains(msg, "no such table: manufacturers_fts") ||
		strings.Contains(msg, "unable to use function MATCH")
}

// Value conversion helpers (dates as RFC3339 text, booleans as 0/1).

func sqliteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func sqliteBool(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseSQLiteTime(ns.String)
	return &t
}

func nullStrPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullBoolPtr(ni sql.NullInt64) *bool {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64 != 0
	return &v
}
