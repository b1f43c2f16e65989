package services

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// MaxImagesPerUpload bounds a single multipart upload
const MaxImagesPerUpload = 10

var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// UploadFile is one uploaded image with its optional slide metadata
type UploadFile struct {
	OriginalName  string
	ContentType   string
	Data          []byte
	Magnification string
	Staining      string
}

// ImageProcessor stores uploads, classifies them and attaches heatmaps.
// Model and heatmap failures degrade to images without those parts.
type ImageProcessor struct {
	store    providers.ImageStore
	ml       providers.MLGateway
	heatmaps providers.HeatmapRenderer
	now      func() time.Time
}

// NewImageProcessor creates an image processor; ml and heatmaps may be nil
func NewImageProcessor(store providers.ImageStore, ml providers.MLGateway, heatmaps providers.HeatmapRenderer) *ImageProcessor {
	return &ImageProcessor{store: store, ml: ml, heatmaps: heatmaps, now: time.Now}
}

// ValidateFiles checks count and file types before anything is written
func ValidateFiles(files []UploadFile) error {
	if len(files) > MaxImagesPerUpload {
		return apperrors.NewValidationError("too many images",
			apperrors.FieldError{Field: "images", Message: "at most 10 images per upload"})
	}
	var fields []apperrors.FieldError
	for _, f := range files {
		if !allowedImageExtensions[strings.ToLower(filepath.Ext(f.OriginalName))] {
			fields = append(fields, apperrors.FieldError{Field: "images", Message: f.OriginalName + " is not a supported image type"})
		}
		if len(f.Data) == 0 {
			fields = append(fields, apperrors.FieldError{Field: "images", Message: f.OriginalName + " is empty"})
		}
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError("invalid images", fields...)
	}
	return nil
}

// Process stores every file and returns the resulting image entries in
// upload order
func (p *ImageProcessor) Process(ctx context.Context, actor entities.Actor, files []UploadFile) ([]entities.SampleImage, error) {
	if err := ValidateFiles(files); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []entities.SampleImage{}, nil
	}

	images := make([]entities.SampleImage, len(files))
	for i, f := range files {
		stored, err := p.store.Save(ctx, f.OriginalName, bytes.NewReader(f.Data))
		if err != nil {
			p.Discard(ctx, images[:i])
			return nil, apperrors.NewInternalError("failed to store image", err)
		}
		images[i] = entities.SampleImage{
			Filename:      stored.Filename,
			OriginalName:  f.OriginalName,
			MimeType:      f.ContentType,
			Size:          stored.Size,
			Path:          stored.Path,
			UploadedBy:    actor.UserID,
			UploadedAt:    p.now().UTC(),
			Magnification: f.Magnification,
			Staining:      f.Staining,
		}
	}

	for i, analysis := range p.analyze(ctx, files) {
		images[i].MLAnalysis = analysis
	}

	if p.heatmaps != nil {
		for i := range images {
			hm, err := p.heatmaps.Render(ctx, &images[i])
			if err != nil {
				log.Warn().Err(err).Str("filename", images[i].Filename).Msg("Heatmap generation failed")
				continue
			}
			images[i].Heatmap = hm
		}
	}

	return images, nil
}

// Discard removes the stored files and heatmaps of images that were never
// persisted on a sample. Failures are logged.
func (p *ImageProcessor) Discard(ctx context.Context, images []entities.SampleImage) {
	ctx = context.WithoutCancel(ctx)
	for _, img := range images {
		if err := p.store.Remove(ctx, img.Filename); err != nil {
			log.Warn().Err(err).Str("filename", img.Filename).Msg("Failed to remove orphaned image")
		}
		if img.Heatmap == nil {
			continue
		}
		if err := p.store.RemoveHeatmap(ctx, img.Heatmap.Filename); err != nil {
			log.Warn().Err(err).Str("filename", img.Heatmap.Filename).Msg("Failed to remove orphaned heatmap")
		}
	}
}

// analyze returns one entry per file; a failed call yields all nils
func (p *ImageProcessor) analyze(ctx context.Context, files []UploadFile) []*entities.MLAnalysis {
	out := make([]*entities.MLAnalysis, len(files))
	if p.ml == nil {
		return out
	}

	inputs := make([]providers.ImageInput, len(files))
	for i, f := range files {
		inputs[i] = providers.ImageInput{Filename: f.OriginalName, ContentType: f.ContentType, Data: f.Data}
	}

	if len(inputs) == 1 {
		analysis, err := p.ml.Predict(ctx, inputs[0])
		if err != nil {
			log.Warn().Err(err).Str("filename", inputs[0].Filename).Msg("ML prediction failed, storing image without analysis")
			return out
		}
		out[0] = analysis
		return out
	}

	results, err := p.ml.BatchPredict(ctx, inputs)
	if err != nil {
		log.Warn().Err(err).Int("images", len(inputs)).Msg("ML batch prediction failed, storing images without analysis")
		return out
	}
	copy(out, results)
	return out
}
