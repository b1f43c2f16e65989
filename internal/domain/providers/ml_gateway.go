package providers

import (
	"context"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// ImageInput is one image handed to the model service
type ImageInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MLHealth is the model service's self-reported state
type MLHealth struct {
	Status      string                 `json:"status"`
	ModelLoaded bool                   `json:"modelLoaded"`
	Reachable   bool                   `json:"reachable"`
	ModelInfo   map[string]interface{} `json:"modelInfo,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// MLGateway classifies images through the external model service and
// normalises the answers
type MLGateway interface {
	// Predict analyses a single image. A nil analysis with nil error means
	// the service declined that image.
	Predict(ctx context.Context, image ImageInput) (*entities.MLAnalysis, error)

	// BatchPredict returns one entry per input, in input order. Entries are
	// nil where the service declined an image. Any transport, status or
	// shape problem fails the whole batch.
	BatchPredict(ctx context.Context, images []ImageInput) ([]*entities.MLAnalysis, error)

	// Health reports whether the service is reachable and ready
	Health(ctx context.Context) (*MLHealth, error)

	// ModelInfo returns the service's model description
	ModelInfo(ctx context.Context) (map[string]interface{}, error)
}

// HeatmapRenderer produces a visual overlay for a stored image
type HeatmapRenderer interface {
	Render(ctx context.Context, image *entities.SampleImage) (*entities.Heatmap, error)
}
