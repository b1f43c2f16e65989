// Package ml adapts the external tumour-classification service to the
// MLGateway port, normalising both of its response dialects.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/mlserver"
	"github.com/zatekoja/recursiadx/pkg/config"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

const defaultConfidence = 0.5

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ml_gateway_requests_total",
		Help: "Requests sent to the ML service by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ml_gateway_request_duration_seconds",
		Help:    "Latency of ML service requests",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"endpoint"})
)

// Gateway implements providers.MLGateway on top of the HTTP client
type Gateway struct {
	client *mlserver.Client
	cfg    config.MLConfig
	now    func() time.Time
}

// NewGateway creates a gateway using the configured per-call timeouts
func NewGateway(client *mlserver.Client, cfg config.MLConfig) *Gateway {
	if cfg.PredictTimeout <= 0 {
		cfg.PredictTimeout = 30 * time.Second
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 60 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	return &Gateway{client: client, cfg: cfg, now: time.Now}
}

var _ providers.MLGateway = (*Gateway)(nil)

// Predict classifies a single image
func (g *Gateway) Predict(ctx context.Context, image providers.ImageInput) (*entities.MLAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.PredictTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Predict(ctx, toFile(image))
	if err == nil && !resp.Success {
		err = fmt.Errorf("ml service reported failure: %s", resp.Error)
	}
	if err == nil && resp.Prediction == nil {
		err = errors.New("ml service response has no prediction")
	}
	observe("predict", start, err)
	if err != nil {
		return nil, apperrors.NewExternalError("ml prediction failed", err)
	}

	metadata := copyMetadata(resp.Metadata)
	if resp.ModelVersion != "" {
		metadata["model_version"] = resp.ModelVersion
	}
	entry := *resp.Prediction
	if entry.ProcessingTime == 0 {
		entry.ProcessingTime = resp.ProcessingTime
	}
	return g.analysis(entry, metadata), nil
}

// BatchPredict classifies every image in one request. The result has one
// entry per input in input order.
func (g *Gateway) BatchPredict(ctx context.Context, images []providers.ImageInput) ([]*entities.MLAnalysis, error) {
	if len(images) == 0 {
		return []*entities.MLAnalysis{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.BatchTimeout)
	defer cancel()

	files := make([]mlserver.File, len(images))
	for i, img := range images {
		files[i] = toFile(img)
	}

	start := time.Now()
	resp, err := g.client.BatchPredict(ctx, files)
	if err == nil && !resp.Success {
		err = fmt.Errorf("ml service reported failure: %s", resp.Error)
	}
	if err == nil && len(resp.Entries()) != len(images) {
		err = fmt.Errorf("ml service returned %d results for %d images", len(resp.Entries()), len(images))
	}
	observe("batch_predict", start, err)
	if err != nil {
		return nil, apperrors.NewExternalError("ml batch prediction failed", err)
	}

	out := make([]*entities.MLAnalysis, len(images))
	for i, entry := range resp.Entries() {
		if entry.Success != nil && !*entry.Success {
			log.Warn().Str("filename", images[i].Filename).Str("error", entry.Error).Msg("ML service declined image")
			continue
		}
		out[i] = g.analysis(entry, copyMetadata(resp.Metadata))
	}
	return out, nil
}

// Health reports reachability. An unreachable service is not an error.
func (g *Gateway) Health(ctx context.Context) (*providers.MLHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Health(ctx)
	observe("health", start, err)
	if err != nil {
		return &providers.MLHealth{Status: "unavailable", Error: err.Error()}, nil
	}

	health := &providers.MLHealth{
		Status:      resp.Status,
		ModelLoaded: resp.ModelLoaded,
		Reachable:   true,
	}
	if info, err := g.client.ModelInfo(ctx); err == nil {
		health.ModelInfo = info
	}
	return health, nil
}

// ModelInfo returns the service's model description
func (g *Gateway) ModelInfo(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HealthTimeout)
	defer cancel()

	start := time.Now()
	info, err := g.client.ModelInfo(ctx)
	observe("model_info", start, err)
	if err != nil {
		return nil, apperrors.NewExternalError("ml model info unavailable", err)
	}
	return info, nil
}

func (g *Gateway) analysis(entry mlserver.Prediction, metadata map[string]interface{}) *entities.MLAnalysis {
	entry = flatten(entry)

	out := &entities.MLAnalysis{
		Prediction:       NormalizeLabel(label(entry)),
		Confidence:       NormalizeConfidence(entry.Confidence),
		RiskAssessment:   NormalizeRisk(firstNonEmpty(entry.RiskLevel, entry.RiskAssessment)),
		DetectedFeatures: entry.DetectedFeatures,
		ProcessingTime:   entry.ProcessingTime,
		ModelImageID:     entry.ImageID,
		AnalyzedAt:       g.now().UTC(),
	}
	if entry.Probabilities != nil {
		out.Probabilities = &entities.Probabilities{
			Tumor:  entry.Probabilities.Tumor,
			Normal: entry.Probabilities.NonTumor,
		}
	}
	if len(metadata) > 0 {
		out.Metadata = metadata
	}
	return out
}

// flatten lifts a nested prediction object over its envelope. Fields the
// inner object leaves empty are taken from the envelope.
func flatten(entry mlserver.Prediction) mlserver.Prediction {
	raw := bytes.TrimSpace(entry.Prediction)
	if len(raw) == 0 || raw[0] != '{' {
		return entry
	}
	var inner mlserver.Prediction
	if err := json.Unmarshal(raw, &inner); err != nil {
		return entry
	}
	inner = flatten(inner)

	if inner.Filename == "" {
		inner.Filename = entry.Filename
	}
	if inner.PredictedClass == "" {
		inner.PredictedClass = entry.PredictedClass
	}
	if len(inner.Confidence) == 0 {
		inner.Confidence = entry.Confidence
	}
	if inner.RiskLevel == "" && inner.RiskAssessment == "" {
		inner.RiskLevel = entry.RiskLevel
		inner.RiskAssessment = entry.RiskAssessment
	}
	if inner.Probabilities == nil {
		inner.Probabilities = entry.Probabilities
	}
	if len(inner.DetectedFeatures) == 0 {
		inner.DetectedFeatures = entry.DetectedFeatures
	}
	if inner.ProcessingTime == 0 {
		inner.ProcessingTime = entry.ProcessingTime
	}
	if inner.ImageID == "" {
		inner.ImageID = entry.ImageID
	}
	return inner
}

func label(entry mlserver.Prediction) string {
	if entry.PredictedClass != "" {
		return entry.PredictedClass
	}
	var s string
	if err := json.Unmarshal(entry.Prediction, &s); err == nil {
		return s
	}
	return ""
}

// NormalizeLabel maps service class names onto benign/malignant.
func NormalizeLabel(raw string) entities.Prediction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tumor", "malignant":
		return entities.PredictionMalignant
	case "non-tumor", "non_tumor", "benign":
		return entities.PredictionBenign
	default:
		return entities.PredictionIndeterminate
	}
}

// NormalizeRisk maps a risk label onto low/medium/high; unknown is medium.
func NormalizeRisk(raw string) entities.RiskLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return entities.RiskLow
	case "high":
		return entities.RiskHigh
	default:
		return entities.RiskMedium
	}
}

// NormalizeConfidence accepts a JSON number or numeric string in [0,1].
func NormalizeConfidence(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return defaultConfidence
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return defaultConfidence
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return defaultConfidence
		}
		value = parsed
	}
	if value < 0 || value > 1 {
		return defaultConfidence
	}
	return value
}

func toFile(img providers.ImageInput) mlserver.File {
	return mlserver.File{Filename: img.Filename, ContentType: img.ContentType, Data: img.Data}
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func observe(endpoint string, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, mlserver.ErrCircuitOpen):
		outcome = "circuit_open"
	case err != nil:
		outcome = "failure"
	}
	requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
