// Package mlserver is the HTTP transport for the tumour-classification
// service. It returns the service's wire shapes untouched; interpretation
// lives in the gateway adapter.
package mlserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// File is one image sent to the service
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Prediction is a single prediction object. Two dialects exist: the model
// server reports predicted_class/risk_level/probabilities, the mock server
// reports a string prediction/risk_assessment. Batch entries additionally
// carry filename/success/error and may nest the object under "prediction".
type Prediction struct {
	Filename         string          `json:"filename,omitempty"`
	Success          *bool           `json:"success,omitempty"`
	Error            string          `json:"error,omitempty"`
	Prediction       json.RawMessage `json:"prediction,omitempty"`
	PredictedClass   string          `json:"predicted_class,omitempty"`
	Confidence       json.RawMessage `json:"confidence,omitempty"`
	RiskLevel        string          `json:"risk_level,omitempty"`
	RiskAssessment   string          `json:"risk_assessment,omitempty"`
	Probabilities    *Probabilities  `json:"probabilities,omitempty"`
	DetectedFeatures []string        `json:"detected_features,omitempty"`
	ProcessingTime   float64         `json:"processing_time,omitempty"`
	ImageID          string          `json:"image_id,omitempty"`
}

// Probabilities as reported by the model server
type Probabilities struct {
	Tumor    float64 `json:"tumor"`
	NonTumor float64 `json:"non_tumor"`
}

// PredictResponse is the body of POST /predict
type PredictResponse struct {
	Success        bool                   `json:"success"`
	Error          string                 `json:"error,omitempty"`
	Prediction     *Prediction            `json:"prediction,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	ProcessingTime float64                `json:"processing_time,omitempty"`
	ModelVersion   string                 `json:"model_version,omitempty"`
}

// BatchResponse is the body of POST /batch_predict. The model server fills
// Results, the mock server fills Predictions.
type BatchResponse struct {
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
	Results     []Prediction           `json:"results,omitempty"`
	Predictions []Prediction           `json:"predictions,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Entries returns whichever result list the server populated
func (r *BatchResponse) Entries() []Prediction {
	if r.Results != nil {
		return r.Results
	}
	return r.Predictions
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// StatusError reports a non-2xx answer
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ml service returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ml service returned status %d", e.StatusCode)
}

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("ml service circuit open")

// Client talks to the ML service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a client for the service at baseURL. Per-call deadlines
// come from the caller's context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ml-service",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Predict posts a single image as multipart field "image"
func (c *Client) Predict(ctx context.Context, file File) (*PredictResponse, error) {
	body, contentType, err := multipartBody("image", []File{file})
	if err != nil {
		return nil, err
	}
	out := &PredictResponse{}
	if err := c.do(ctx, http.MethodPost, "/predict", body, contentType, out); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchPredict posts every image as a repeated multipart field "images"
func (c *Client) BatchPredict(ctx context.Context, files []File) (*BatchResponse, error) {
	body, contentType, err := multipartBody("images", files)
	if err != nil {
		return nil, err
	}
	out := &BatchResponse{}
	if err := c.do(ctx, http.MethodPost, "/batch_predict", body, contentType, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	out := &HealthResponse{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelInfo calls GET /model_info
func (c *Client) ModelInfo(ctx context.Context) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.do(ctx, http.MethodGet, "/model_info", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func multipartBody(field string, files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Filename))
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write multipart part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var payload struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
			return nil, &StatusError{StatusCode: resp.StatusCode, Message: payload.Error}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode ml service response: %w", err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}
