package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type engineRow struct {
	Code string `csv:"CODE"`
	Mfr  string `csv:"MFR"`
}

func writeTestArchive(t *testing.T, members map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dataset.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create member %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close archive file: %v", err)
	}
	return path
}

func TestTableFuzzyMatch(t *testing.T) {
	path := writeTestArchive(t, map[string]string{
		"engine.txt": "CODE,MFR\n10001,LYCOMING\n",
		"MASTER.txt": "N-NUMBER\nN1\n",
	})

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	// Lowercase member name still matches the ENGINE token.
	tbl, err := a.Table("ENGINE")
	if err != nil {
		t.Fatalf("Table(ENGINE): %v", err)
	}
	if tbl.Name() != "engine.txt" {
		t.Errorf("table name = %q, want engine.txt", tbl.Name())
	}
}

func TestTableMissing(t *testing.T) {
	path := writeTestArchive(t, map[string]string{
		"MASTER.txt": "N-NUMBER\nN1\n",
	})

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	_, err = a.Table("ACFTREF")
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if !strings.Contains(err.Error(), "ACFTREF file is missing from archive") {
		t.Errorf("error = %q, want missing-table message", err)
	}
}

func TestForEachNormalizesHeader(t *testing.T) {
	// Header has padding, lowercase and a BOM; rows have padded values.
	path := writeTestArchive(t, map[string]string{
		"ENGINE.txt": "\uFEFFcode ,  mfr\n10001,LYCOMING  \n20002,CONTINENTAL\n",
	})

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	tbl, err := a.Table("ENGINE")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}

	var rows []engineRow
	err = ForEach(tbl, func(r engineRow) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Code != "10001" || strings.TrimSpace(rows[0].Mfr) != "LYCOMING" {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Code != "20002" {
		t.Errorf("second row = %+v", rows[1])
	}
}

func TestForEachStopsOnCallbackError(t *testing.T) {
	path := writeTestArchive(t, map[string]string{
		"ENGINE.txt": "CODE,MFR\n1,A\n2,B\n3,C\n",
	})

	a, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	tbl, _ := a.Table("ENGINE")

	count := 0
	err = ForEach(tbl, func(r engineRow) error {
		count++
		if count == 2 {
			return os.ErrClosed
		}
		return nil
	})
	if err != os.ErrClosed {
		t.Errorf("err = %v, want os.ErrClosed", err)
	}
	if count != 2 {
		t.Errorf("callback ran %d times, want 2", count)
	}
}
