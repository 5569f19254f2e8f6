package store

import "strings"

// ftsTokens splits free text into lowercase alphanumeric tokens suitable for
// a prefix-match full-text query. Punctuation-only input yields no tokens,
// in which case callers fall back to substring matching for that filter.
func ftsTokens(q string) []string {
	var tokens []string
	for _, field := range strings.Fields(q) {
		var b strings.Builder
		for _, r := range field {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			tokens = append(tokens, strings.ToLower(b.String()))
		}
	}
	return tokens
}

// fts5Query renders tokens as an FTS5 prefix query: "tok1"* AND "tok2"*.
func fts5Query(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = `"` + t + `"*`
	}
	return strings.Join(parts, " AND ")
}

// tsQuery renders tokens as a to_tsquery prefix expression: tok1:* & tok2:*.
func tsQuery(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t + ":*"
	}
	return strings.Join(parts, " & ")
}
