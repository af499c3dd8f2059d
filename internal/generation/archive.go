package generation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mapgen/internal/genapi"
	"mapgen/internal/util"
)

// Downloader opens a finished task's archive stream.
type Downloader interface {
	Download(ctx context.Context, taskID string) (*genapi.Archive, error)
}

// SaveArchive streams the task's archive into dir under the server-provided
// file name. The file only appears once fully written.
func SaveArchive(ctx context.Context, d Downloader, taskID, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	archive, err := d.Download(ctx, taskID)
	if err != nil {
		return "", err
	}
	defer archive.Body.Close()

	tmp, err := os.CreateTemp(dir, ".mapgen-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, archive.Body); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write archive: %w", err)
	}
	dest := filepath.Join(dir, util.SanitizeFilename(archive.Filename))
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return dest, nil
}
