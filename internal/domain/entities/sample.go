package entities

import (
	"fmt"
	"strings"
	"time"
)

// SampleStatus is a lifecycle state of a specimen
type SampleStatus string

const (
	SampleStatusReceived    SampleStatus = "Received"
	SampleStatusProcessing  SampleStatus = "Processing"
	SampleStatusSectioning  SampleStatus = "Sectioning"
	SampleStatusStaining    SampleStatus = "Staining"
	SampleStatusReading     SampleStatus = "Reading"
	SampleStatusReporting   SampleStatus = "Reporting"
	SampleStatusComplete    SampleStatus = "Complete"
	SampleStatusUnderReview SampleStatus = "Under Review"
	SampleStatusCancelled   SampleStatus = "Cancelled"
)

// SampleStatuses lists every known sample status in lifecycle order.
var SampleStatuses = []SampleStatus{
	SampleStatusReceived,
	SampleStatusProcessing,
	SampleStatusSectioning,
	SampleStatusStaining,
	SampleStatusReading,
	SampleStatusReporting,
	SampleStatusComplete,
	SampleStatusUnderReview,
	SampleStatusCancelled,
}

// ParseSampleStatus returns the status matching s, or false.
func ParseSampleStatus(s string) (SampleStatus, bool) {
	for _, status := range SampleStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// Priority of a sample
type Priority string

const (
	PriorityRoutine Priority = "Routine"
	PriorityUrgent  Priority = "Urgent"
	PrioritySTAT    Priority = "STAT"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PrioritySTAT:
		return true
	}
	return false
}

// PatientInfo holds patient demographics as submitted
type PatientInfo struct {
	PatientID     string `json:"patientId"`
	Name          string `json:"name"`
	Age           *int   `json:"age,omitempty"`
	Gender        string `json:"gender,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
}

// ClinicalInfo holds the requesting clinician's context
type ClinicalInfo struct {
	OrderingPhysician    string   `json:"orderingPhysician,omitempty"`
	ClinicalHistory      string   `json:"clinicalHistory,omitempty"`
	ProvisionalDiagnosis string   `json:"provisionalDiagnosis,omitempty"`
	Symptoms             []string `json:"symptoms,omitempty"`
	Urgency              string   `json:"urgency,omitempty"`
}

// WorkflowEntry is one append-only record of a status change
type WorkflowEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Sample represents a submitted specimen with its images and history
type Sample struct {
	ID                  string          `json:"id"`
	SampleID            string          `json:"sampleId"`
	PatientInfo         PatientInfo     `json:"patientInfo"`
	ClinicalInfo        ClinicalInfo    `json:"clinicalInfo"`
	SpecimenType        string          `json:"specimenType,omitempty"`
	AnatomicalSite      string          `json:"anatomicalSite,omitempty"`
	Priority            Priority        `json:"priority"`
	Images              []SampleImage   `json:"images"`
	AISummary           AISummary       `json:"aiSummary"`
	Status              SampleStatus    `json:"status"`
	Workflow            []WorkflowEntry `json:"workflow"`
	SubmittedBy         string          `json:"submittedBy"`
	AssignedTo          string          `json:"assignedTo,omitempty"`
	AssignedAt          *time.Time      `json:"assignedAt,omitempty"`
	ReceivedAt          *time.Time      `json:"receivedAt,omitempty"`
	ProcessingStartedAt *time.Time      `json:"processingStartedAt,omitempty"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
	CancelledAt         *time.Time      `json:"cancelledAt,omitempty"`
	CancelledBy         string          `json:"cancelledBy,omitempty"`
	Version             int             `json:"version"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// FormatSampleID renders the human-readable identifier for seq within year.
func FormatSampleID(year int, seq int64) string {
	return fmt.Sprintf("SP-%d-%04d", year, seq)
}

// AppendWorkflow records a status change in the sample history.
func (s *Sample) AppendWorkflow(status SampleStatus, actor, notes string, at time.Time) {
	s.Workflow = append(s.Workflow, WorkflowEntry{
		Status:    string(status),
		Timestamp: at,
		Actor:     actor,
		Notes:     notes,
	})
}

// AnalyzedImages returns the images that carry an ML analysis.
func (s *Sample) AnalyzedImages() []SampleImage {
	out := make([]SampleImage, 0, len(s.Images))
	for _, img := range s.Images {
		if img.MLAnalysis != nil {
			out = append(out, img)
		}
	}
	return out
}

// ValidationIssue is a single failed presence or range check.
type ValidationIssue struct {
	Field   string
	Message string
}

// Validate checks the fields required when a sample is created or edited.
func (s *Sample) Validate() []ValidationIssue {
	var issues []ValidationIssue
	if strings.TrimSpace(s.PatientInfo.PatientID) == "" {
		issues = append(issues, ValidationIssue{Field: "patientInfo.patientId", Message: "is required"})
	}
	if strings.TrimSpace(s.PatientInfo.Name) == "" {
		issues = append(issues, ValidationIssue{Field: "patientInfo.name", Message: "is required"})
	}
	if age := s.PatientInfo.Age; age != nil && (*age < 0 || *age > 150) {
		issues = append(issues, ValidationIssue{Field: "patientInfo.age", Message: "must be between 0 and 150"})
	}
	if s.Priority != "" && !s.Priority.Valid() {
		issues = append(issues, ValidationIssue{Field: "priority", Message: "must be one of Routine, Urgent, STAT"})
	}
	return issues
}
