package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// ImagePathPrefix is the URL prefix stored images are served under
const ImagePathPrefix = "/api/samples/image/"

// LocalStore keeps uploads and heatmaps on the local filesystem
type LocalStore struct {
	imageDir   string
	heatmapDir string
	now        func() time.Time
}

// NewLocalStore creates the directories if needed
func NewLocalStore(imageDir, heatmapDir string) (*LocalStore, error) {
	for _, dir := range []string{imageDir, heatmapDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return &LocalStore{imageDir: imageDir, heatmapDir: heatmapDir, now: time.Now}, nil
}

var _ providers.ImageStore = (*LocalStore)(nil)

// Save writes content as <unix-millis>-<uuid><ext>
func (s *LocalStore) Save(ctx context.Context, originalName string, content io.Reader) (*providers.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
	full := filepath.Join(s.imageDir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create image file: %w", err)
	}
	size, err := io.Copy(f, content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}

	return &providers.StoredFile{
		Filename: name,
		Path:     ImagePathPrefix + name,
		Size:     size,
	}, nil
}

// Open returns a stored image
func (s *LocalStore) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	return open(ctx, s.imageDir, filename)
}

// OpenHeatmap returns a stored heatmap
func (s *LocalStore) OpenHeatmap(ctx context.Context, filename string) (io.ReadCloser, error) {
	return open(ctx, s.heatmapDir, filename)
}

// Remove deletes a stored image
func (s *LocalStore) Remove(ctx context.Context, filename string) error {
	return remove(ctx, s.imageDir, filename)
}

// RemoveHeatmap deletes a stored heatmap
func (s *LocalStore) RemoveHeatmap(ctx context.Context, filename string) error {
	return remove(ctx, s.heatmapDir, filename)
}

func validFilename(filename string) bool {
	return filename != "" && filename == filepath.Base(filename) && !strings.HasPrefix(filename, ".")
}

func remove(ctx context.Context, dir, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validFilename(filename) {
		return apperrors.NewValidationError("invalid filename")
	}
	if err := os.Remove(filepath.Join(dir, filename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", filename, err)
	}
	return nil
}

func open(ctx context.Context, dir, filename string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validFilename(filename) {
		return nil, apperrors.NewValidationError("invalid filename")
	}
	f, err := os.Open(filepath.Join(dir, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewNotFoundError("file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	return f, nil
}
