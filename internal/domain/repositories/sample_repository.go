package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// SampleFilter narrows sample listings
type SampleFilter struct {
	Status       string
	SpecimenType string
	Priority     string
	SubmittedBy  string
	StartDate    *time.Time
	EndDate      *time.Time
	Search       string
	Limit        int
	Offset       int
}

// SampleStats holds aggregate counts over samples
type SampleStats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"byStatus"`
	BySpecimenType map[string]int `json:"bySpecimenType"`
	ByPriority     map[string]int `json:"byPriority"`
}

// SampleRepository defines persistence for samples
type SampleRepository interface {
	// Create stores a new sample at version 1
	Create(ctx context.Context, sample *entities.Sample) error

	// GetByID retrieves a sample by storage id or human sampleId
	GetByID(ctx context.Context, id string) (*entities.Sample, error)

	// Update writes the sample if its stored version still equals
	// sample.Version, then increments the version. A lost race returns a
	// conflict error.
	Update(ctx context.Context, sample *entities.Sample) error

	// List returns one page of matching samples, newest first, and the
	// total match count
	List(ctx context.Context, filter SampleFilter) ([]*entities.Sample, int, error)

	// Stats counts samples created within the optional range
	Stats(ctx context.Context, from, to *time.Time) (*SampleStats, error)
}

// SampleSearchHit is a lightweight full-text match
type SampleSearchHit struct {
	ID             string `json:"id"`
	SampleID       string `json:"sampleId"`
	PatientName    string `json:"patientName"`
	PatientID      string `json:"patientId"`
	AnatomicalSite string `json:"anatomicalSite,omitempty"`
	SpecimenType   string `json:"specimenType,omitempty"`
	Status         string `json:"status"`
	SubmittedBy    string `json:"submittedBy"`
}

// SampleSearchRepository defines the full-text sample index
type SampleSearchRepository interface {
	Index(ctx context.Context, sample *entities.Sample) error
	Delete(ctx context.Context, id string) error
	// Search matches q; a non-empty submittedBy restricts hits to that submitter
	Search(ctx context.Context, q string, submittedBy string, limit int) ([]SampleSearchHit, error)
}
