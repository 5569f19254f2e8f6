package refresh

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// download fetches the dataset archive into archivePath and returns the
// dataset version token (Last-Modified, falling back to ETag) when the
// source provides one.
func (s *Service) download(ctx context.Context, url, archivePath string) (*string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download dataset from %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download dataset from %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("write archive file: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close archive file: %w", err)
	}

	version := resp.Header.Get("Last-Modified")
	if version == "" {
		version = resp.Header.Get("ETag")
	}
	if version == "" {
		return nil, nil
	}
	return &version, nil
}
