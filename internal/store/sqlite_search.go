package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SearchAircraft runs the two-phase paged search: ids and total first, then
// hydration of the page, all in one transaction for a consistent snapshot.
func (s *SQLiteStore) SearchAircraft(ctx context.Context, p SearchParams, mode TextMatchMode) (*SearchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin search: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	where, args := sqliteSearchFilters(p, mode)

	var total int64
	countStmt := `
		SELECT COUNT(*)
		FROM aircraft a
		LEFT JOIN aircraft_models am ON am.id = a.model_id
		LEFT JOIN manufacturers m ON m.id = am.manufacturer_id
		` + where
	if err := tx.QueryRowContext(ctx, countStmt, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count aircraft: %w", err)
	}
	if total == 0 {
		return &SearchResult{Data: []AircraftSummary{}, Total: 0}, nil
	}

	offset := (p.Page - 1) * p.PageSize
	idStmt := `
		SELECT id FROM (
			SELECT a.id AS id, ROW_NUMBER() OVER (ORDER BY a.tail_number, a.id) AS rn
			FROM aircraft a
			LEFT JOIN aircraft_models am ON am.id = a.model_id
			LEFT JOIN manufacturers m ON m.id = am.manufacturer_id
			` + where + `
		) WHERE rn > ? AND rn <= ?
		ORDER BY rn`
	idArgs := append(append([]any{}, args...), offset, offset+p.PageSize)

	rows, err := tx.QueryContext(ctx, idStmt, idArgs...)
	if err != nil {
		return nil, fmt.Errorf("select page ids: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan page id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page ids: %w", err)
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return &SearchResult{Data: []AircraftSummary{}, Total: total}, nil
	}

	data, err := s.hydrateAircraft(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit search: %w", err)
	}
	return &SearchResult{Data: data, Total: total}, nil
}

// sqliteSearchFilters renders the WHERE clause for the validated filters.
// Unrecognized or impossible combinations are prevented upstream.
func sqliteSearchFilters(p SearchParams, mode TextMatchMode) (string, []any) {
	var preds []string
	var args []any

	if p.TailNumber != nil {
		if p.TailNumber.Exact {
			preds = append(preds, "a.tail_number = ?")
			args = append(args, p.TailNumber.Value)
		} else {
			preds = append(preds, "a.tail_number LIKE ?")
			args = append(args, p.TailNumber.Value+"%")
		}
	}
	if p.Status != nil {
		preds = append(preds, "a.status_code = ?")
		args = append(args, *p.Status)
	}
	if p.Manufacturer != nil {
		pred, arg := sqliteTextPredicate(
			"m.id IN (SELECT rowid FROM manufacturers_fts WHERE manufacturers_fts MATCH ?)",
			"LOWER(m.name) LIKE '%' || LOWER(?) || '%'",
			*p.Manufacturer, mode)
		preds = append(preds, pred)
		args = append(args, arg)
	}
	if p.Owner != nil {
		pred, arg := sqliteTextPredicate(
			"o.id IN (SELECT rowid FROM owners_fts WHERE owners_fts MATCH ?)",
			"LOWER(o.name) LIKE '%' || LOWER(?) || '%'",
			*p.Owner, mode)
		preds = append(preds,
			"a.id IN (SELECT ao.aircraft_id FROM aircraft_owners ao JOIN owners o ON o.id = ao.owner_id WHERE "+pred+")")
		args = append(args, arg)
	}

	if len(preds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(preds, " AND "), args
}

func sqliteTextPredicate(ftsPred, likePred, value string, mode TextMatchMode) (string, any) {
	if mode == MatchFullText {
		if tokens := ftsTokens(value); len(tokens) > 0 {
			return ftsPred, fts5Query(tokens)
		}
	}
	return likePred, value
}

// hydrateAircraft loads the full summaries for the page ids, preserving the
// given order, then attaches owners sorted by owner name.
func (s *SQLiteStore) hydrateAircraft(ctx context.Context, tx *sql.Tx, ids []int64) ([]AircraftSummary, error) {
	ph := make([]string, len(ids))
	idArgs := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		idArgs[i] = id
	}
	inList := strings.Join(ph, ", ")

	rows, err := tx.QueryContext(ctx, `
		SELECT a.id, a.tail_number, a.serial_number, a.status_code,
			a.registrant_type, m.name, am.model_name, am.code,
			e.manufacturer, e.model, a.airworthiness_class,
			a.certification_issue_date, a.expiration_date,
			a.last_activity_date, a.fractional_ownership
		FROM aircraft a
		LEFT JOIN aircraft_models am ON am.id = a.model_id
		LEFT JOIN manufacturers m ON m.id = am.manufacturer_id
		LEFT JOIN engines e ON e.id = a.engine_id
		WHERE a.id IN (`+inList+`)
	`, idArgs...)
	if err != nil {
		return nil, fmt.Errorf("hydrate aircraft: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*AircraftSummary, len(ids))
	for rows.Next() {
		var id int64
		var sum AircraftSummary
		var serial, status, regType, mfr, model, modelCode sql.NullString
		var engMfr, engModel, awClass sql.NullString
		var certIssue, expiration, lastActivity sql.NullString
		var fractional sql.NullInt64
		if err := rows.Scan(&id, &sum.TailNumber, &serial, &status, &regType,
			&mfr, &model, &modelCode, &engMfr, &engModel, &awClass,
			&certIssue, &expiration, &lastActivity, &fractional); err != nil {
			return nil, fmt.Errorf("scan aircraft: %w", err)
		}
		sum.SerialNumber = nullStrPtr(serial)
		sum.StatusCode = nullStrPtr(status)
		sum.RegistrantType = nullStrPtr(regType)
		sum.Manufacturer = nullStrPtr(mfr)
		sum.Model = nullStrPtr(model)
		sum.ModelCode = nullStrPtr(modelCode)
		sum.EngineManufacturer = nullStrPtr(engMfr)
		sum.EngineModel = nullStrPtr(engModel)
		sum.AirworthinessClass = nullStrPtr(awClass)
		sum.CertificationIssueDate = nullTimePtr(certIssue)
		sum.ExpirationDate = nullTimePtr(expiration)
		sum.LastActivityDate = nullTimePtr(lastActivity)
		sum.FractionalOwnership = nullBoolPtr(fractional)
		sum.Owners = []OwnerSummary{}
		byID[id] = &sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aircraft: %w", err)
	}

	ownerRows, err := tx.QueryContext(ctx, `
		SELECT ao.aircraft_id, o.name, o.city, o.state, o.country,
			ao.ownership_type, ao.last_action_date
		FROM aircraft_owners ao
		JOIN owners o ON o.id = ao.owner_id
		WHERE ao.aircraft_id IN (`+inList+`)
		ORDER BY o.name
	`, idArgs...)
	if err != nil {
		return nil, fmt.Errorf("hydrate owners: %w", err)
	}
	defer ownerRows.Close()

	for ownerRows.Next() {
		var aircraftID int64
		var o OwnerSummary
		var city, state, country, ownershipType, lastAction sql.NullString
		if err := ownerRows.Scan(&aircraftID, &o.Name, &city, &state, &country,
			&ownershipType, &lastAction); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		o.City = nullStrPtr(city)
		o.State = nullStrPtr(state)
		o.Country = nullStrPtr(country)
		o.OwnershipType = nullStrPtr(ownershipType)
		o.LastActionDate = nullTimePtr(lastAction)
		if sum, ok := byID[aircraftID]; ok {
			sum.Owners = append(sum.Owners, o)
		}
	}
	if err := ownerRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}

	out := make([]AircraftSummary, 0, len(ids))
	for _, id := range ids {
		if sum, ok := byID[id]; ok {
			out = append(out, *sum)
		}
	}
	return out, nil
}
