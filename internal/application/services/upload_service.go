package services

import (
	"context"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// UploadService creates a sample together with its analysed images
type UploadService struct {
	samples *SampleService
	images  *ImageProcessor
}

// NewUploadService creates a new upload service
func NewUploadService(samples *SampleService, images *ImageProcessor) *UploadService {
	return &UploadService{samples: samples, images: images}
}

// UploadWithAnalysis validates the sample, stores and classifies the
// images, then creates the sample with the images attached. An ML outage
// still creates the sample; the images simply carry no analysis.
func (s *UploadService) UploadWithAnalysis(ctx context.Context, actor entities.Actor, input SampleInput, files []UploadFile) (*entities.Sample, error) {
	if err := s.samples.ValidateCreate(actor, input); err != nil {
		return nil, err
	}
	if err := ValidateFiles(files); err != nil {
		return nil, err
	}

	images, err := s.images.Process(ctx, actor, files)
	if err != nil {
		return nil, err
	}
	sample, err := s.samples.Create(ctx, actor, input, images)
	if err != nil {
		s.images.Discard(ctx, images)
		return nil, err
	}
	return sample, nil
}
