// Package archive reads delimited member tables out of a registry dataset
// archive. Members are located by fuzzy name match and streamed in a single
// forward pass.
package archive

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
)

// Archive is an open dataset archive on the local filesystem.
type Archive struct {
	rc *zip.ReadCloser
}

// Open opens the archive at path.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{rc: rc}, nil
}

// Close releases the underlying archive handle.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Table locates a member table by case-insensitive substring match on the
// member name. A missing table is fatal for the ingestion, not retried.
func (a *Archive) Table(token string) (*Table, error) {
	upper := strings.ToUpper(token)
	for _, f := range a.rc.File {
		if strings.Contains(strings.ToUpper(f.Name), upper) {
			return &Table{name: f.Name, file: f}, nil
		}
	}
	return nil, fmt.Errorf("%s file is missing from archive", upper)
}

// Table is a handle to a single delimited member table.
type Table struct {
	name string
	file *zip.File
}

// Name returns the archive member name.
func (t *Table) Name() string { return t.name }

// ForEach streams the table once, decoding each row into T and invoking fn.
// The first row is treated as the header; header names are trimmed and
// uppercased before csv tags are matched, so padded or lowercase headers in
// the source still bind.
func ForEach[T any](t *Table, fn func(T) error) error {
	rc, err := t.file.Open()
	if err != nil {
		return fmt.Errorf("open table %s: %w", t.name, err)
	}
	defer func() { _ = rc.Close() }()

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("read header of %s: %w", t.name, err)
	}
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	}

	dec, err := csvutil.NewDecoder(cr, header...)
	if err != nil {
		return fmt.Errorf("decode table %s: %w", t.name, err)
	}

	for {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode row of %s: %w", t.name, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
