package entities

import (
	"fmt"
	"time"
)

// ReportStatus is the review state of a report
type ReportStatus string

const (
	ReportStatusDraft     ReportStatus = "draft"
	ReportStatusReview    ReportStatus = "review"
	ReportStatusApproved  ReportStatus = "approved"
	ReportStatusFinalized ReportStatus = "finalized"
	ReportStatusRejected  ReportStatus = "rejected"
)

// ParseReportStatus returns the status matching s, or false.
func ParseReportStatus(s string) (ReportStatus, bool) {
	switch ReportStatus(s) {
	case ReportStatusDraft, ReportStatusReview, ReportStatusApproved, ReportStatusFinalized, ReportStatusRejected:
		return ReportStatus(s), true
	}
	return "", false
}

// ReportType of a pathology report
type ReportType string

const (
	ReportTypePreliminary ReportType = "Preliminary"
	ReportTypeFinal       ReportType = "Final"
	ReportTypeAmended     ReportType = "Amended"
)

// Valid reports whether t is a known report type
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypePreliminary, ReportTypeFinal, ReportTypeAmended:
		return true
	}
	return false
}

// ReportClinicalInfo is the clinical snapshot taken at generation time
type ReportClinicalInfo struct {
	OrderingPhysician    string    `json:"orderingPhysician,omitempty"`
	ClinicalHistory      string    `json:"clinicalHistory,omitempty"`
	ProvisionalDiagnosis string    `json:"provisionalDiagnosis,omitempty"`
	SampleSite           string    `json:"sampleSite,omitempty"`
	SampleDate           time.Time `json:"sampleDate"`
}

// ReportAIAnalysis is the aggregated analysis embedded in a report
type ReportAIAnalysis struct {
	TotalImages         int      `json:"totalImages"`
	ProcessedImages     int      `json:"processedImages"`
	MalignantDetections int      `json:"malignantDetections"`
	AverageConfidence   float64  `json:"averageConfidence"`
	MaxRiskScore        float64  `json:"maxRiskScore"`
	DetectedFeatures    []string `json:"detectedFeatures"`
	OverallRisk         string   `json:"overallRisk"`
	AIInterpretation    string   `json:"aiInterpretation"`
}

// ReportImage is a copy of one analysed image at generation time
type ReportImage struct {
	Filename      string      `json:"filename"`
	OriginalName  string      `json:"originalName"`
	Magnification string      `json:"magnification,omitempty"`
	Staining      string      `json:"staining,omitempty"`
	MLAnalysis    *MLAnalysis `json:"mlAnalysis,omitempty"`
}

// Report is an immutable-snapshot pathology report derived from a sample
type Report struct {
	ID            string             `json:"id"`
	ReportID      string             `json:"reportId"`
	SampleRef     string             `json:"sampleRef"`
	SampleID      string             `json:"sampleId"`
	PatientInfo   PatientInfo        `json:"patientInfo"`
	ClinicalInfo  ReportClinicalInfo `json:"clinicalInfo"`
	AIAnalysis    ReportAIAnalysis   `json:"aiAnalysis"`
	ImageAnalysis []ReportImage      `json:"imageAnalysis,omitempty"`
	ReportType    ReportType         `json:"reportType"`
	Status        ReportStatus       `json:"status"`
	Workflow      []WorkflowEntry    `json:"workflow"`
	GeneratedBy   string             `json:"generatedBy"`
	GeneratedAt   time.Time          `json:"generatedAt"`
	FinalizedAt   *time.Time         `json:"finalizedAt,omitempty"`
	FinalizedBy   string             `json:"finalizedBy,omitempty"`
	Version       int                `json:"version"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// FormatReportID renders the human-readable identifier for seq within year.
func FormatReportID(year int, seq int64) string {
	return fmt.Sprintf("RPT-%d-%04d", year, seq)
}

// AppendWorkflow records a status change in the report history.
func (r *Report) AppendWorkflow(status ReportStatus, actor, notes string, at time.Time) {
	r.Workflow = append(r.Workflow, WorkflowEntry{
		Status:    string(status),
		Timestamp: at,
		Actor:     actor,
		Notes:     notes,
	})
}
