package providers

import (
	"context"
	"io"
)

// StoredFile describes a file written by an ImageStore
type StoredFile struct {
	Filename string
	Path     string
	Size     int64
}

// ImageStore persists uploaded images and serves stored assets
type ImageStore interface {
	// Save writes the content under a unique name derived from originalName
	Save(ctx context.Context, originalName string, content io.Reader) (*StoredFile, error)

	// Open returns the stored image with the given filename
	Open(ctx context.Context, filename string) (io.ReadCloser, error)

	// OpenHeatmap returns the stored heatmap with the given filename
	OpenHeatmap(ctx context.Context, filename string) (io.ReadCloser, error)

	// Remove deletes a stored image; a missing file is not an error
	Remove(ctx context.Context, filename string) error

	// RemoveHeatmap deletes a stored heatmap; a missing file is not an error
	RemoveHeatmap(ctx context.Context, filename string) error
}
