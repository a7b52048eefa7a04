package desktop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"snipping-tool/src/host"
)

var ErrInvalidDownloadPath = errors.New("invalid download path")

// Downloads saves files below Dir. Relative paths may name sub-folders,
// which are created on demand.
type Downloads struct {
	Dir string

	mu     sync.Mutex
	nextID int
}

// NewDownloads returns a download manager rooted at dir.
func NewDownloads(dir string) *Downloads {
	return &Downloads{Dir: dir}
}

func (d *Downloads) Download(ctx context.Context, req host.DownloadRequest) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rel, err := cleanRelative(req.Filename)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	target := filepath.Join(d.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create download folder: %w", err)
	}

	final, err := d.write(target, req)
	if err != nil {
		return 0, err
	}

	d.nextID++
	log.Printf("Downloads: #%d saved %s", d.nextID, final)
	return d.nextID, nil
}

func (d *Downloads) write(target string, req host.DownloadRequest) (string, error) {
	if req.ConflictAction != host.ConflictUniquify {
		if err := os.WriteFile(target, req.Data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write download: %w", err)
		}
		return target, nil
	}

	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for i := 0; ; i++ {
		candidate := target
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create download: %w", err)
		}
		if _, err := f.Write(req.Data); err != nil {
			f.Close()
			os.Remove(candidate)
			return "", fmt.Errorf("failed to write download: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to write download: %w", err)
		}
		return candidate, nil
	}
}

func cleanRelative(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDownloadPath, name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasSuffix(cleaned, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDownloadPath, name)
	}
	return cleaned, nil
}
