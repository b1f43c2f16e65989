package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "SP-2024-0001", FormatSampleID(2024, 1))
	assert.Equal(t, "SP-2024-0042", FormatSampleID(2024, 42))
	assert.Equal(t, "SP-2024-12345", FormatSampleID(2024, 12345))
	assert.Equal(t, "RPT-2025-0007", FormatReportID(2025, 7))
}

func TestSample_Validate(t *testing.T) {
	age := func(v int) *int { return &v }

	t.Run("valid sample", func(t *testing.T) {
		s := &Sample{PatientInfo: PatientInfo{PatientID: "P-1", Name: "Jane Roe", Age: age(54)}, Priority: PriorityUrgent}
		assert.Empty(t, s.Validate())
	})

	t.Run("missing required patient fields", func(t *testing.T) {
		s := &Sample{}
		issues := s.Validate()

		assert.Len(t, issues, 2)
		assert.Equal(t, "patientInfo.patientId", issues[0].Field)
		assert.Equal(t, "patientInfo.name", issues[1].Field)
	})

	t.Run("age and priority out of range", func(t *testing.T) {
		s := &Sample{PatientInfo: PatientInfo{PatientID: "P-1", Name: "x", Age: age(-3)}, Priority: "Whenever"}
		issues := s.Validate()

		assert.Len(t, issues, 2)
		assert.Equal(t, "patientInfo.age", issues[0].Field)
		assert.Equal(t, "priority", issues[1].Field)
	})
}

func TestSample_AppendWorkflowAndAnalyzedImages(t *testing.T) {
	now := time.Now()
	s := &Sample{Images: []SampleImage{
		{Filename: "a.png", MLAnalysis: &MLAnalysis{Prediction: PredictionBenign}},
		{Filename: "b.png"},
	}}
	s.AppendWorkflow(SampleStatusReceived, "u-1", "Sample received", now)
	s.AppendWorkflow(SampleStatusProcessing, "u-1", "", now)

	assert.Len(t, s.Workflow, 2)
	assert.Equal(t, "Processing", s.Workflow[1].Status)
	assert.Len(t, s.AnalyzedImages(), 1)
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"Technician":     RoleLabTechnician,
		"Lab Technician": RoleLabTechnician,
		"pathologist":    RolePathologist,
		"Administrator":  RoleAdmin,
		"Resident":       RoleResident,
	}
	for in, want := range cases {
		got, ok := ParseRole(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseRole("Janitor")
	assert.False(t, ok)
}

func TestRiskLevel_Score(t *testing.T) {
	assert.Equal(t, 0.8, RiskHigh.Score())
	assert.Equal(t, 0.5, RiskMedium.Score())
	assert.Equal(t, 0.2, RiskLow.Score())
}
