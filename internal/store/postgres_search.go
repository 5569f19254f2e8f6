package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// SearchAircraft runs the two-phase paged search: ids and total first, then
// hydration of the page, all in one transaction for a consistent snapshot.
func (s *PostgresStore) SearchAircraft(ctx context.Context, p SearchParams, mode TextMatchMode) (*SearchResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin search: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	where, args := pgSearchFilters(p, mode)

	var total int64
	countStmt := `
		SELECT COUNT(*)
		FROM aircraft a
		LEFT JOIN aircraft_models am ON am.id = a.model_id
		LEFT JOIN manufacturers m ON m.id = am.manufacturer_id
		` + where
	if err := tx.QueryRow(ctx, countStmt, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count aircraft: %w", err)
	}
	if total == 0 {
		return &SearchResult{Data: []AircraftSummary{}, Total: 0}, nil
	}

	offset := (p.Page - 1) * p.PageSize
	idStmt := fmt.Sprintf(`
		SELECT id FROM (
			SELECT a.id AS id, ROW_NUMBER() OVER (ORDER BY a.tail_number, a.id) AS rn
			FROM aircraft a
			LEFT JOIN aircraft_models am ON am.id = a.model_id
			LEFT JOIN manufacturers m ON m.id = am.manufacturer_id
			%s
		) page WHERE rn > $%d AND rn <= $%d
		ORDER BY rn`, where, len(args)+1, len(args)+2)
	idArgs := append(append([]any{}, args...), offset, offset+p.PageSize)

	rows, err := tx.Query(ctx, idStmt, idArgs...)
	if err != nil {
		return nil, fmt.Errorf("select page ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect page ids: %w", err)
	}
	if len(ids) == 0 {
		return &SearchResult{Data: []AircraftSummary{}, Total: total}, nil
	}

	data, err := s.hydrateAircraft(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit search: %w", err)
	}
	return &SearchResult{Data: data, Total: total}, nil
}

func pgSearchFilters(p SearchParams, mode TextMatchMode) (string, []any) {
	var preds []string
	var args []any

	next := func() string { return dollarPlaceholder(len(args)) }

	if p.TailNumber != nil {
		if p.TailNumber.Exact {
			preds = append(preds, "a.tail_number = "+next())
			args = append(args, p.TailNumber.Value)
		} else {
			preds = append(preds, "a.tail_number LIKE "+next())
			args = append(args, p.TailNumber.Value+"%")
		}
	}
	if p.Status != nil {
		preds = append(preds, "a.status_code = "+next())
		args = append(args, *p.Status)
	}
	if p.Manufacturer != nil {
		pred, arg := pgTextPredicate(
			"to_tsvector('simple', m.name) @@ to_tsquery('simple', %s)",
			"m.name ILIKE '%%' || %s || '%%'",
			*p.Manufacturer, mode, next())
		preds = append(preds, pred)
		args = append(args, arg)
	}
	if p.Owner != nil {
		pred, arg := pgTextPredicate(
			"to_tsvector('simple', o.name) @@ to_tsquery('simple', %s)",
			"o.name ILIKE '%%' || %s || '%%'",
			*p.Owner, mode, next())
		preds = append(preds,
			"a.id IN (SELECT ao.aircraft_id FROM aircraft_owners ao JOIN owners o ON o.id = ao.owner_id WHERE "+pred+")")
		args = append(args, arg)
	}

	if len(preds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(preds, " AND "), args
}

func pgTextPredicate(ftsFormat, likeFormat, value string, mode TextMatchMode, placeholder string) (string, any) {
	if mode == MatchFullText {
		if tokens := ftsTokens(value); len(tokens) > 0 {
			return fmt.Sprintf(ftsFormat, placeholder), tsQuery(tokens)
		}
	}
	return fmt.Sprintf(likeFormat, placeholder), value
}

func (s *PostgresStore) hydrateAircraft(ctx context.Context, tx pgx.Tx, ids []int64) ([]AircraftSummary, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.tail_number, a.serial_number, a.status_code,
			a.registrant_type, m.name, am.model_name, am.code,
			e.manufacturer, e.model, a.airworthiness_class,
			a.certification_issue_date, a.expiration_date,
			a.last_activity_date, a.fractional_ownership
		FROM aircraft a
		LEFT JOIN aircraft_models am ON am.id = a.model_id
		LEFT JOIN manufacturers m ON m.id = am.manufacturer_id
		LEFT JOIN engines e ON e.id = a.engine_id
		WHERE a.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate aircraft: %w", err)
	}

	byID := make(map[int64]*AircraftSummary, len(ids))
	for rows.Next() {
		var id int64
		var sum AircraftSummary
		if err := rows.Scan(&id, &sum.TailNumber, &sum.SerialNumber,
			&sum.StatusCode, &sum.RegistrantType, &sum.Manufacturer, &sum.Model,
			&sum.ModelCode, &sum.EngineManufacturer, &sum.EngineModel,
			&sum.AirworthinessClass, &sum.CertificationIssueDate,
			&sum.ExpirationDate, &sum.LastActivityDate, &sum.FractionalOwnership); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan aircraft: %w", err)
		}
		sum.Owners = []OwnerSummary{}
		byID[id] = &sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aircraft: %w", err)
	}

	ownerRows, err := tx.Query(ctx, `
		SELECT ao.aircraft_id, o.name, o.city, o.state, o.country,
			ao.ownership_type, ao.last_action_date
		FROM aircraft_owners ao
		JOIN owners o ON o.id = ao.owner_id
		WHERE ao.aircraft_id = ANY($1)
		ORDER BY o.name
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate owners: %w", err)
	}

	for ownerRows.Next() {
		var aircraftID int64
		var o OwnerSummary
		if err := ownerRows.Scan(&aircraftID, &o.Name, &o.City, &o.State,
			&o.Country, &o.OwnershipType, &o.LastActionDate); err != nil {
			ownerRows.Close()
			return nil, fmt.Errorf("scan owner: %w", err)
		}
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
