package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/mlserver"
	"github.com/zatekoja/recursiadx/pkg/config"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGateway(mlserver.NewClient(server.URL), config.MLConfig{
		PredictTimeout: time.Second,
		BatchTimeout:   time.Second,
		HealthTimeout:  time.Second,
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func images(names ...string) []providers.ImageInput {
	out := make([]providers.ImageInput, len(names))
	for i, n := range names {
		out[i] = providers.ImageInput{Filename: n, ContentType: "image/png", Data: []byte("png-" + n)}
	}
	return out
}

func TestGateway_BatchPredict_ModelServerFormat(t *testing.T) {
	var received []string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/batch_predict", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, fh := range r.MultipartForm.File["images"] {
			received = append(received, fh.Filename)
		}
		writeJSON(w, http.StatusOK, `{
			"success": true,
			"results": [
				{"filename": "a.png", "success": true, "prediction": {"predicted_class": "Tumor", "confidence": 0.91, "is_tumor": true, "probabilities": {"non_tumor": 0.09, "tumor": 0.91}, "risk_level": "High"}},
				{"filename": "b.png", "success": false, "error": "corrupt image"},
				{"filename": "c.png", "success": true, "prediction": {"predicted_class": "Non-Tumor", "confidence": "0.77", "risk_level": "moderate"}}
			],
			"total_images": 3,
			"successful_predictions": 2
		}`)
	})

	out, err := gw.BatchPredict(context.Background(), images("a.png", "b.png", "c.png"))

	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, received)
	require.Len(t, out, 3)

	require.NotNil(t, out[0])
	assert.Equal(t, entities.PredictionMalignant, out[0].Prediction)
	assert.Equal(t, 0.91, out[0].Confidence)
	assert.Equal(t, entities.RiskHigh, out[0].RiskAssessment)
	require.NotNil(t, out[0].Probabilities)
	assert.Equal(t, 0.09, out[0].Probabilities.Normal)

	assert.Nil(t, out[1])

	require.NotNil(t, out[2])
	assert.Equal(t, entities.PredictionBenign, out[2].Prediction)
	assert.Equal(t, 0.77, out[2].Confidence)
	assert.Equal(t, entities.RiskMedium, out[2].RiskAssessment)
}

func TestGateway_BatchPredict_MockServerFormat(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"success": true,
			"predictions": [
				{"filename": "a.png", "prediction": "malignant", "confidence": 0.88, "risk_assessment": "high", "processing_time": 1.2, "image_id": "img_1"},
				{"filename": "b.png", "prediction": "benign", "confidence": 1.7, "risk_assessment": "low", "processing_time": 0.8, "image_id": "img_2"}
			],
			"summary": {"total_images": 2}
		}`)
	})

	out, err := gw.BatchPredict(context.Background(), images("a.png", "b.png"))

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, entities.PredictionMalignant, out[0].Prediction)
	assert.Equal(t, "img_1", out[0].ModelImageID)
	assert.Equal(t, 1.2, out[0].ProcessingTime)
	assert.Equal(t, entities.PredictionBenign, out[1].Prediction)
	assert.Equal(t, defaultConfidence, out[1].Confidence)
	assert.Equal(t, entities.RiskLow, out[1].RiskAssessment)
}

func TestGateway_BatchPredict_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		timeout bool
	}{
		{name: "count mismatch", status: http.StatusOK, body: `{"success": true, "results": [{"success": true, "prediction": {"predicted_class": "Tumor"}}]}`},
		{name: "service reported failure", status: http.StatusOK, body: `{"success": false, "error": "model not loaded"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"success": false, "error": "boom"}`},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
		{name: "timeout", timeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.timeout {
					<-r.Context().Done()
					return
				}
				writeJSON(w, tt.status, tt.body)
			})
			gw.cfg.BatchTimeout = 50 * time.Millisecond

			out, err := gw.BatchPredict(context.Background(), images("a.png", "b.png"))

			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
		})
	}
}

func TestGateway_BatchPredict_Empty(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	out, err := gw.BatchPredict(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGateway_Predict(t *testing.T) {
	t.Run("model server", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/predict", r.URL.Path)
			_, fh, err := r.FormFile("image")
			require.NoError(t, err)
			assert.Equal(t, "slide.png", fh.Filename)
			writeJSON(w, http.StatusOK, `{
				"success": true,
				"prediction": {"predicted_class": "tumor", "confidence": 0.66, "risk_level": "medium"},
				"processing_time": 0.42,
				"model_version": "1.0.0"
			}`)
		})

		out, err := gw.Predict(context.Background(), images("slide.png")[0])

		require.NoError(t, err)
		assert.Equal(t, entities.PredictionMalignant, out.Prediction)
		assert.Equal(t, entities.RiskMedium, out.RiskAssessment)
		assert.Equal(t, 0.42, out.ProcessingTime)
		assert.Equal(t, "1.0.0", out.Metadata["model_version"])
	})

	t.Run("mock server", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{
				"success": true,
				"prediction": {"filename": "slide.png", "prediction": "benign", "confidence": 0.93, "risk_assessment": "low", "image_id": "img_9"},
				"metadata": {"model_version": "mock-v1"}
			}`)
		})

		out, err := gw.Predict(context.Background(), images("slide.png")[0])

		require.NoError(t, err)
		assert.Equal(t, entities.PredictionBenign, out.Prediction)
		assert.Equal(t, "img_9", out.ModelImageID)
		assert.Equal(t, "mock-v1", out.Metadata["model_version"])
	})

	t.Run("failure is external", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, `{"success": false, "error": "Invalid file type"}`)
		})

		_, err := gw.Predict(context.Background(), images("slide.txt")[0])

		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
		assert.Contains(t, err.Error(), "Invalid file type")
	})
}

func TestGateway_Health(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/health":
				writeJSON(w, http.StatusOK, `{"status": "healthy", "model_loaded": true}`)
			case "/model_info":
				writeJSON(w, http.StatusOK, `{"success": true, "model_type": "CNN", "num_classes": 2}`)
			}
		})

		health, err := gw.Health(context.Background())

		require.NoError(t, err)
		assert.True(t, health.Reachable)
		assert.True(t, health.ModelLoaded)
		assert.Equal(t, "CNN", health.ModelInfo["model_type"])
	})

	t.Run("unreachable", func(t *testing.T) {
		gw := NewGateway(mlserver.NewClient("http://127.0.0.1:1"), config.MLConfig{HealthTimeout: 200 * time.Millisecond})

		health, err := gw.Health(context.Background())

		require.NoError(t, err)
		assert.False(t, health.Reachable)
		assert.Equal(t, "unavailable", health.Status)
		assert.NotEmpty(t, health.Error)
	})
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]entities.Prediction{
		"Tumor":     entities.PredictionMalignant,
		"TUMOR":     entities.PredictionMalignant,
		"malignant": entities.PredictionMalignant,
		"Non-Tumor": entities.PredictionBenign,
		"benign":    entities.PredictionBenign,
		"":          entities.PredictionIndeterminate,
		"atypical":  entities.PredictionIndeterminate,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLabel(in), in)
	}
}

func TestNormalizeRisk(t *testing.T) {
	assert.Equal(t, entities.RiskHigh, NormalizeRisk("HIGH"))
	assert.Equal(t, entities.RiskLow, NormalizeRisk("low"))
	assert.Equal(t, entities.RiskMedium, NormalizeRisk("Moderate"))
	assert.Equal(t, entities.RiskMedium, NormalizeRisk(""))
	assert.Equal(t, entities.RiskMedium, NormalizeRisk("severe"))
}

func TestNormalizeConfidence(t *testing.T) {
	cases := map[string]float64{
		`0.83`:   0.83,
		`"0.4"`:  0.4,
		`0`:      0,
		`1`:      1,
		`1.01`:   defaultConfidence,
		`-0.2`:   defaultConfidence,
		`"high"`: defaultConfidence,
		`null`:   defaultConfidence,
		`{}`:     defaultConfidence,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeConfidence(json.RawMessage(in)), in)
	}
	assert.Equal(t, defaultConfidence, NormalizeConfidence(nil))
}
