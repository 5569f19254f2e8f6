package store

import (
	"strings"
	"testing"
)

func TestChunkRows(t *testing.T) {
	tests := []struct {
		name    string
		ceiling int
		cols    int
		want    int
	}{
		{"sqlite aircraft", 999, 21, 47},
		{"sqlite manufacturers", 999, 2, 499},
		{"postgres owners capped", 65535, 11, 1000},
		{"postgres aircraft capped", 65535, 21, 1000},
		{"degenerate wide row", 10, 21, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := chunkRows(tc.ceiling, tc.cols)
			if got != tc.want {
				t.Errorf("chunkRows(%d, %d) = %d, want %d", tc.ceiling, tc.cols, got, tc.want)
			}
			if got*tc.cols >= tc.ceiling && got != 1 {
				t.Errorf("chunk of %d rows x %d cols breaches ceiling %d", got, tc.cols, tc.ceiling)
			}
		})
	}
}

func TestBuildUpsert(t *testing.T) {
	stmt := buildUpsert(questionPlaceholder, "staging_engines",
		[]string{"ingestion_id", "code", "model"},
		[]string{"ingestion_id", "code"}, 2)

	want := "INSERT INTO staging_engines (ingestion_id, code, model) " +
		"VALUES (?, ?, ?), (?, ?, ?) " +
		"ON CONFLICT (ingestion_id, code) DO UPDATE SET model = excluded.model"
	if stmt != want {
		t.Errorf("got:\n%s\nwant:\n%s", stmt, want)
	}
}

func TestBuildUpsertDollarPlaceholders(t *testing.T) {
	stmt := buildUpsert(dollarPlaceholder, "staging_manufacturers",
		[]string{"ingestion_id", "name"},
		[]string{"ingestion_id", "name"}, 3)

	if !strings.Contains(stmt, "($1, $2), ($3, $4), ($5, $6)") {
		t.Errorf("expected sequential dollar placeholders, got: %s", stmt)
	}
	if !strings.HasSuffix(stmt, "DO NOTHING") {
		t.Errorf("all-key upsert should render DO NOTHING, got: %s", stmt)
	}
}

func TestFTSTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Delta Air Lines", []string{"delta", "air", "lines"}},
		{"  BOEING ", []string{"boeing"}},
		{"O'Neil & Sons", []string{"oneil", "sons"}},
		{"&& --", nil},
	}
	for _, tc := range tests {
		got := ftsTokens(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ftsTokens(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ftsTokens(%q) = %v, want %v", tc.in, got, tc.want)
				break
			}
		}
	}

	if q := fts5Query([]string{"delta", "air"}); q != `"delta"* AND "air"*` {
		t.Errorf("fts5Query = %q", q)
	}
	if q := tsQuery([]string{"delta", "air"}); q != "delta:* & air:*" {
		t.Errorf("tsQuery = %q", q)
	}
}
