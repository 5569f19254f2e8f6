package store

import "strings"

// hardRowCap bounds a single staging statement regardless of how generous the
// dialect's parameter ceiling is.
const hardRowCap = 1000

// chunkRows returns how many rows fit in one multi-row statement: the row
// count times columnsPerRow stays strictly under the dialect's parameter
// ceiling, capped at hardRowCap.
func chunkRows(paramCeiling, columnsPerRow int) int {
	n := (paramCeiling - 1) / columnsPerRow
	if n < 1 {
		n = 1
	}
	if n > hardRowCap {
		n = hardRowCap
	}
	return n
}

// placeholderStyle renders the bind placeholder for the i-th parameter
// (zero-based). SQLite uses positional "?", PostgreSQL "$1".."$n".
type placeholderStyle func(i int) string

func questionPlaceholder(int) string { return "?" }

// buildUpsert renders one multi-row INSERT ... ON CONFLICT DO UPDATE
// statement for rowCount rows. conflictCols name the unique key; every other
// column is overwritten from the excluded row.
func buildUpsert(style placeholderStyle, table string, cols, conflictCols []string, rowCount int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	param := 0
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(style(param))
			param++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(conflictCols, ", "))
	b.WriteString(")")

	conflict := make(map[string]bool, len(conflictCols))
	for _, c := range conflictCols {
		conflict[c] = true
	}
	var updates []string
	for _, c := range cols {
		if !conflict[c] {
			updates = append(updates, c+" = excluded."+c)
		}
	}
	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		b.WriteString(strings.Join(updates, ", "))
	}
	return b.String()
}
