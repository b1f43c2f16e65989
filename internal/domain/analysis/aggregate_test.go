package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

func analyzed(pred entities.Prediction, conf float64, risk entities.RiskLevel, features ...string) entities.SampleImage {
	return entities.SampleImage{MLAnalysis: &entities.MLAnalysis{
		Prediction:       pred,
		Confidence:       conf,
		RiskAssessment:   risk,
		DetectedFeatures: features,
	}}
}

func TestSummarize(t *testing.T) {
	t.Run("two malignant of three", func(t *testing.T) {
		images := []entities.SampleImage{
			analyzed(entities.PredictionMalignant, 0.9, entities.RiskHigh),
			analyzed(entities.PredictionMalignant, 0.8, entities.RiskMedium),
			analyzed(entities.PredictionBenign, 0.7, entities.RiskLow),
		}

		s := Summarize(images)

		assert.Equal(t, 3, s.TotalImagesAnalyzed)
		assert.Equal(t, 2, s.MalignantDetections)
		assert.Equal(t, 1, s.BenignDetections)
		assert.Equal(t, 1, s.HighRiskImages)
		assert.InDelta(t, 0.8, s.AverageConfidence, 1e-9)
		assert.Equal(t, entities.PredictionMalignant, s.OverallPrediction)
		assert.Equal(t, 0.8, s.MaxRiskScore)
		assert.Equal(t, TierHigh, s.OverallRisk)
	})

	t.Run("tie stays benign", func(t *testing.T) {
		images := []entities.SampleImage{
			analyzed(entities.PredictionMalignant, 0.6, entities.RiskMedium),
			analyzed(entities.PredictionBenign, 0.6, entities.RiskMedium),
		}

		s := Summarize(images)

		assert.Equal(t, entities.PredictionBenign, s.OverallPrediction)
		assert.Equal(t, TierModerate, s.OverallRisk)
	})

	t.Run("no analysed images", func(t *testing.T) {
		s := Summarize([]entities.SampleImage{{Filename: "raw.png"}})

		assert.Equal(t, 0, s.TotalImagesAnalyzed)
		assert.Equal(t, 0.0, s.AverageConfidence)
		assert.Equal(t, entities.PredictionBenign, s.OverallPrediction)
		assert.Equal(t, TierLow, s.OverallRisk)
		assert.Empty(t, s.DetectedFeatures)
	})

	t.Run("features deduplicated in first-seen order", func(t *testing.T) {
		images := []entities.SampleImage{
			analyzed(entities.PredictionMalignant, 0.9, entities.RiskHigh, "nuclear pleomorphism", "mitotic figures"),
			analyzed(entities.PredictionMalignant, 0.9, entities.RiskHigh, "mitotic figures", "necrosis"),
		}

		s := Summarize(images)

		assert.Equal(t, []string{"nuclear pleomorphism", "mitotic figures", "necrosis"}, s.DetectedFeatures)
	})
}

func TestRiskTier(t *testing.T) {
	assert.Equal(t, TierHigh, RiskTier(0.8))
	assert.Equal(t, TierModerate, RiskTier(0.7))
	assert.Equal(t, TierModerate, RiskTier(0.5))
	assert.Equal(t, TierLow, RiskTier(0.4))
	assert.Equal(t, TierLow, RiskTier(0.2))
}

func TestInterpret(t *testing.T) {
	t.Run("zero analysed", func(t *testing.T) {
		out := Interpret(Summarize(nil))

		assert.Equal(t, "No images were available for AI analysis. "+Disclaimer, out)
	})

	t.Run("malignant high risk with features", func(t *testing.T) {
		s := Summarize([]entities.SampleImage{
			analyzed(entities.PredictionMalignant, 0.9, entities.RiskHigh, "necrosis"),
			analyzed(entities.PredictionBenign, 0.7, entities.RiskLow),
		})

		out := Interpret(s)

		assert.Equal(t, "AI analysis identified potential malignant features in 1 out of 2 images. "+
			"Average prediction confidence: 80.0%. "+
			"High risk assessment (80%) - recommend immediate pathologist review. "+
			"Detected features include: necrosis. "+Disclaimer, out)
	})

	t.Run("benign low risk", func(t *testing.T) {
		s := Summarize([]entities.SampleImage{analyzed(entities.PredictionBenign, 0.95, entities.RiskLow)})

		out := Interpret(s)

		assert.Contains(t, out, "did not identify malignant features in the examined 1 images.")
		assert.Contains(t, out, "Average prediction confidence: 95.0%.")
		assert.Contains(t, out, "Low risk assessment (20%) - routine pathologist review.")
		assert.NotContains(t, out, "Detected features")
	})
}

func TestReportAnalysis(t *testing.T) {
	sample := &entities.Sample{Images: []entities.SampleImage{
		analyzed(entities.PredictionMalignant, 0.6, entities.RiskMedium),
		{Filename: "unanalysed.png"},
	}}

	a := ReportAnalysis(sample)

	assert.Equal(t, 2, a.TotalImages)
	assert.Equal(t, 1, a.ProcessedImages)
	assert.Equal(t, TierModerate, a.OverallRisk)
	assert.Contains(t, a.AIInterpretation, "standard pathologist review recommended")
}
