package entities

import "time"

// Prediction is the normalized classification of one image
type Prediction string

const (
	PredictionBenign        Prediction = "benign"
	PredictionMalignant     Prediction = "malignant"
	PredictionIndeterminate Prediction = "indeterminate"
)

// RiskLevel is the normalized risk assessment of one image
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Score maps a risk level to the numeric score used in aggregation.
func (r RiskLevel) Score() float64 {
	switch r {
	case RiskHigh:
		return 0.8
	case RiskMedium:
		return 0.5
	default:
		return 0.2
	}
}

// Probabilities as reported by the model
type Probabilities struct {
	Tumor  float64 `json:"tumor"`
	Normal float64 `json:"normal"`
}

// MLAnalysis is the immutable model output attached to an image
type MLAnalysis struct {
	Prediction       Prediction             `json:"prediction"`
	Confidence       float64                `json:"confidence"`
	RiskAssessment   RiskLevel              `json:"riskAssessment"`
	DetectedFeatures []string               `json:"detectedFeatures,omitempty"`
	Probabilities    *Probabilities         `json:"probabilities,omitempty"`
	ProcessingTime   float64                `json:"processingTime,omitempty"`
	ModelImageID     string                 `json:"modelImageId,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	AnalyzedAt       time.Time              `json:"analyzedAt"`
}

// HeatmapAnalytics are summary statistics of a heatmap raster
type HeatmapAnalytics struct {
	MinValue    float64 `json:"minValue"`
	MaxValue    float64 `json:"maxValue"`
	MeanValue   float64 `json:"meanValue"`
	StdValue    float64 `json:"stdValue"`
	Shape       [2]int  `json:"shape"`
	Hotspots    int     `json:"hotspots"`
	TotalPixels int     `json:"totalPixels"`
}

// Heatmap is a visual overlay for an image, independent of MLAnalysis
type Heatmap struct {
	Filename    string           `json:"filename"`
	Path        string           `json:"path"`
	Data        string           `json:"data,omitempty"`
	Colormap    string           `json:"colormap"`
	Type        string           `json:"type"`
	Analytics   HeatmapAnalytics `json:"analytics"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// SampleImage is one uploaded image owned by a Sample
type SampleImage struct {
	Filename      string      `json:"filename"`
	OriginalName  string      `json:"originalName"`
	MimeType      string      `json:"mimeType,omitempty"`
	Size          int64       `json:"size"`
	Path          string      `json:"path"`
	UploadedBy    string      `json:"uploadedBy,omitempty"`
	UploadedAt    time.Time   `json:"uploadedAt"`
	Magnification string      `json:"magnification,omitempty"`
	Staining      string      `json:"staining,omitempty"`
	MLAnalysis    *MLAnalysis `json:"mlAnalysis,omitempty"`
	Heatmap       *Heatmap    `json:"heatmap,omitempty"`
}

// AISummary is derived from the images' analyses and never client supplied
type AISummary struct {
	TotalImagesAnalyzed int        `json:"totalImagesAnalyzed"`
	MalignantDetections int        `json:"malignantDetections"`
	BenignDetections    int        `json:"benignDetections"`
	HighRiskImages      int        `json:"highRiskImages"`
	AverageConfidence   float64    `json:"averageConfidence"`
	OverallPrediction   Prediction `json:"overallPrediction"`
	MaxRiskScore        float64    `json:"maxRiskScore"`
	OverallRisk         string     `json:"overallRisk"`
	DetectedFeatures    []string   `json:"detectedFeatures"`
}
