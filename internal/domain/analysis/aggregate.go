// Package analysis derives sample-level summaries and report narratives
// from per-image model output. Everything here is pure.
package analysis

import (
	"fmt"
	"strings"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// Risk tiers derived from the maximum per-image risk score.
const (
	TierHigh     = "High"
	TierModerate = "Moderate"
	TierLow      = "Low"

	highTierThreshold     = 0.7
	moderateTierThreshold = 0.4
)

// Disclaimer closes every generated interpretation.
const Disclaimer = "Note: AI analysis is a screening tool and should not replace expert pathologist interpretation."

// RiskTier maps a risk score onto the High/Moderate/Low scale.
func RiskTier(score float64) string {
	switch {
	case score > highTierThreshold:
		return TierHigh
	case score > moderateTierThreshold:
		return TierModerate
	default:
		return TierLow
	}
}

// Summarize aggregates the analyses attached to images. Images without an
// analysis are ignored.
func Summarize(images []entities.SampleImage) entities.AISummary {
	summary := entities.AISummary{
		OverallPrediction: entities.PredictionBenign,
		DetectedFeatures:  []string{},
	}

	var confidenceSum float64
	seen := make(map[string]struct{})

	for _, img := range images {
		ml := img.MLAnalysis
		if ml == nil {
			continue
		}
		summary.TotalImagesAnalyzed++
		switch ml.Prediction {
		case entities.PredictionMalignant:
			summary.MalignantDetections++
		case entities.PredictionBenign:
			summary.BenignDetections++
		}
		if ml.RiskAssessment == entities.RiskHigh {
			summary.HighRiskImages++
		}
		confidenceSum += ml.Confidence
		if score := ml.RiskAssessment.Score(); score > summary.MaxRiskScore {
			summary.MaxRiskScore = score
		}
		for _, f := range ml.DetectedFeatures {
			if _, ok := seen[f]; ok || f == "" {
				continue
			}
			seen[f] = struct{}{}
			summary.DetectedFeatures = append(summary.DetectedFeatures, f)
		}
	}

	if summary.TotalImagesAnalyzed > 0 {
		summary.AverageConfidence = confidenceSum / float64(summary.TotalImagesAnalyzed)
		// strict majority; ties stay benign
		if summary.MalignantDetections*2 > summary.TotalImagesAnalyzed {
			summary.OverallPrediction = entities.PredictionMalignant
		}
	}
	summary.OverallRisk = RiskTier(summary.MaxRiskScore)

	return summary
}

// Interpret renders the fixed-template narrative for a summary.
func Interpret(summary entities.AISummary) string {
	if summary.TotalImagesAnalyzed == 0 {
		return "No images were available for AI analysis. " + Disclaimer
	}

	parts := make([]string, 0, 5)
	if summary.MalignantDetections > 0 {
		parts = append(parts, fmt.Sprintf("AI analysis identified potential malignant features in %d out of %d images.",
			summary.MalignantDetections, summary.TotalImagesAnalyzed))
	} else {
		parts = append(parts, fmt.Sprintf("AI analysis did not identify malignant features in the examined %d images.",
			summary.TotalImagesAnalyzed))
	}

	parts = append(parts, fmt.Sprintf("Average prediction confidence: %.1f%%.", summary.AverageConfidence*100))

	risk := fmt.Sprintf("%.0f%%", summary.MaxRiskScore*100)
	switch RiskTier(summary.MaxRiskScore) {
	case TierHigh:
		parts = append(parts, fmt.Sprintf("High risk assessment (%s) - recommend immediate pathologist review.", risk))
	case TierModerate:
		parts = append(parts, fmt.Sprintf("Moderate risk assessment (%s) - standard pathologist review recommended.", risk))
	default:
		parts = append(parts, fmt.Sprintf("Low risk assessment (%s) - routine pathologist review.", risk))
	}

	if len(summary.DetectedFeatures) > 0 {
		parts = append(parts, fmt.Sprintf("Detected features include: %s.", strings.Join(summary.DetectedFeatures, ", ")))
	}

	parts = append(parts, Disclaimer)
	return strings.Join(parts, " ")
}

// ReportAnalysis builds the aggregated block embedded in a report.
func ReportAnalysis(sample *entities.Sample) entities.ReportAIAnalysis {
	summary := Summarize(sample.Images)
	return entities.ReportAIAnalysis{
		TotalImages:         len(sample.Images),
		ProcessedImages:     summary.TotalImagesAnalyzed,
		MalignantDetections: summary.MalignantDetections,
		AverageConfidence:   summary.AverageConfidence,
		MaxRiskScore:        summary.MaxRiskScore,
		DetectedFeatures:    summary.DetectedFeatures,
		OverallRisk:         summary.OverallRisk,
		AIInterpretation:    Interpret(summary),
	}
}
