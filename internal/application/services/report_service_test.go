package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/analysis"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/domain/workflow"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

type reportDeps struct {
	reports   *MockReportRepository
	samples   *MockSampleRepository
	sequences *MockSequenceRepository
	events    *MockEventBus
}

func newReportService(policy workflow.TerminalPolicy) (*services.ReportService, reportDeps) {
	deps := reportDeps{
		reports:   new(MockReportRepository),
		samples:   new(MockSampleRepository),
		sequences: new(MockSequenceRepository),
		events:    new(MockEventBus),
	}
	deps.events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return services.NewReportService(deps.reports, deps.samples, deps.sequences, deps.events, workflow.NewMachine(policy)), deps
}

func analyzedSample(status entities.SampleStatus) *entities.Sample {
	s := storedSample(status, "tech-1")
	s.AnatomicalSite = "Breast"
	s.ClinicalInfo = entities.ClinicalInfo{OrderingPhysician: "Dr. House"}
	s.Images = []entities.SampleImage{
		{Filename: "a.png", MLAnalysis: &entities.MLAnalysis{Prediction: entities.PredictionMalignant, Confidence: 0.9, RiskAssessment: entities.RiskHigh, DetectedFeatures: []string{"necrosis"}}},
		{Filename: "b.png", MLAnalysis: &entities.MLAnalysis{Prediction: entities.PredictionBenign, Confidence: 0.7, RiskAssessment: entities.RiskLow}},
		{Filename: "c.png"},
	}
	return s
}

func TestReportService_Generate(t *testing.T) {
	t.Run("snapshots sample and moves it to under review", func(t *testing.T) {
		// Arrange
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.samples.On("GetByID", mock.Anything, "SP-2024-0001").Return(analyzedSample(entities.SampleStatusReading), nil)
		deps.samples.On("GetByID", mock.Anything, sampleUUID).Return(analyzedSample(entities.SampleStatusReading), nil)
		deps.sequences.On("Next", mock.Anything, repositories.SequenceReport, mock.Anything).Return(int64(12), nil)
		deps.reports.On("Create", mock.Anything, mock.Anything).Return(nil)
		deps.samples.On("Update", mock.Anything, mock.MatchedBy(func(s *entities.Sample) bool {
			last := s.Workflow[len(s.Workflow)-1]
			return s.Status == entities.SampleStatusUnderReview &&
				last.Notes == "Report generated automatically based on AI analysis"
		})).Return(nil)

		// Act
		report, err := svc.Generate(context.Background(), pathologist, "SP-2024-0001", services.GenerateReportInput{IncludeImages: true})

		// Assert
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(report.ReportID, "-0012"))
		assert.Equal(t, sampleUUID, report.SampleRef)
		assert.Equal(t, entities.ReportTypePreliminary, report.ReportType)
		assert.Equal(t, entities.ReportStatusDraft, report.Status)
		require.Len(t, report.Workflow, 1)
		assert.Equal(t, "Report generated", report.Workflow[0].Notes)
		assert.Equal(t, "Breast", report.ClinicalInfo.SampleSite)
		assert.Equal(t, 3, report.AIAnalysis.TotalImages)
		assert.Equal(t, 2, report.AIAnalysis.ProcessedImages)
		assert.Equal(t, analysis.TierHigh, report.AIAnalysis.OverallRisk)
		assert.Contains(t, report.AIAnalysis.AIInterpretation, "1 out of 2 images")
		assert.True(t, strings.HasSuffix(report.AIAnalysis.AIInterpretation, analysis.Disclaimer))
		assert.Len(t, report.ImageAnalysis, 2)
		deps.samples.AssertExpectations(t)
	})

	t.Run("repeated generation differs only in identity", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.samples.On("GetByID", mock.Anything, sampleUUID).Return(analyzedSample(entities.SampleStatusReading), nil).Once()
		deps.samples.On("GetByID", mock.Anything, sampleUUID).Return(analyzedSample(entities.SampleStatusUnderReview), nil)
		deps.sequences.On("Next", mock.Anything, repositories.SequenceReport, mock.Anything).Return(int64(20), nil).Once()
		deps.sequences.On("Next", mock.Anything, repositories.SequenceReport, mock.Anything).Return(int64(21), nil).Once()
		deps.reports.On("Create", mock.Anything, mock.Anything).Return(nil)
		deps.samples.On("Update", mock.Anything, mock.Anything).Return(nil)

		first, err := svc.Generate(context.Background(), pathologist, sampleUUID, services.GenerateReportInput{IncludeImages: true})
		require.NoError(t, err)
		second, err := svc.Generate(context.Background(), pathologist, sampleUUID, services.GenerateReportInput{IncludeImages: true})
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.NotEqual(t, first.ReportID, second.ReportID)
		assert.Equal(t, first.AIAnalysis, second.AIAnalysis)
		assert.Equal(t, first.ImageAnalysis, second.ImageAnalysis)
	})

	t.Run("terminal sample is refused before any write", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.samples.On("GetByID", mock.Anything, sampleUUID).Return(analyzedSample(entities.SampleStatusComplete), nil)

		_, err := svc.Generate(context.Background(), pathologist, sampleUUID, services.GenerateReportInput{})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
		deps.sequences.AssertNotCalled(t, "Next", mock.Anything, mock.Anything, mock.Anything)
		deps.reports.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("admin override permits completed sample for admins", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyAdminOverride)
		deps.samples.On("GetByID", mock.Anything, sampleUUID).Return(analyzedSample(entities.SampleStatusComplete), nil)
		deps.sequences.On("Next", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)
		deps.reports.On("Create", mock.Anything, mock.Anything).Return(nil)
		deps.samples.On("Update", mock.Anything, mock.Anything).Return(nil)

		report, err := svc.Generate(context.Background(), admin, sampleUUID, services.GenerateReportInput{ReportType: entities.ReportTypeFinal})

		require.NoError(t, err)
		assert.Equal(t, entities.ReportTypeFinal, report.ReportType)
		assert.Empty(t, report.ImageAnalysis)
	})

	t.Run("unknown sample", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.samples.On("GetByID", mock.Anything, "nope").Return(nil, apperrors.NewNotFoundError("sample not found"))

		_, err := svc.Generate(context.Background(), pathologist, "nope", services.GenerateReportInput{})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("invalid report type", func(t *testing.T) {
		svc, _ := newReportService(workflow.PolicyStrict)

		_, err := svc.Generate(context.Background(), pathologist, sampleUUID, services.GenerateReportInput{ReportType: "Draft"})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("no analysed images", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		bare := storedSample(entities.SampleStatusReceived, "tech-1")
		deps.samples.On("GetByID", mock.Anything, sampleUUID).Return(bare, nil)
		deps.sequences.On("Next", mock.Anything, mock.Anything, mock.Anything).Return(int64(2), nil)
		deps.reports.On("Create", mock.Anything, mock.Anything).Return(nil)
		deps.samples.On("Update", mock.Anything, mock.Anything).Return(nil)

		report, err := svc.Generate(context.Background(), resident, sampleUUID, services.GenerateReportInput{})

		require.NoError(t, err)
		assert.Equal(t, "No images were available for AI analysis. "+analysis.Disclaimer, report.AIAnalysis.AIInterpretation)
	})
}

func TestReportService_UpdateStatus(t *testing.T) {
	draft := func() *entities.Report {
		return &entities.Report{ID: "r-1", ReportID: "RPT-2024-0001", Status: entities.ReportStatusDraft, Version: 1}
	}

	t.Run("finalize stamps signer", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.reports.On("GetByID", mock.Anything, "RPT-2024-0001").Return(draft(), nil)
		deps.reports.On("Update", mock.Anything, mock.Anything).Return(nil)

		report, err := svc.UpdateStatus(context.Background(), pathologist, "RPT-2024-0001", entities.ReportStatusFinalized, "signed out")

		require.NoError(t, err)
		assert.Equal(t, entities.ReportStatusFinalized, report.Status)
		assert.Equal(t, "path-1", report.FinalizedBy)
		require.Len(t, report.Workflow, 1)
		assert.Equal(t, "signed out", report.Workflow[0].Notes)
	})

	t.Run("retries lost race", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.reports.On("GetByID", mock.Anything, "RPT-2024-0001").Return(draft(), nil).Once()
		deps.reports.On("GetByID", mock.Anything, "RPT-2024-0001").Return(draft(), nil).Once()
		deps.reports.On("Update", mock.Anything, mock.Anything).Return(apperrors.NewConflictError("stale")).Once()
		deps.reports.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

		report, err := svc.UpdateStatus(context.Background(), pathologist, "RPT-2024-0001", entities.ReportStatusReview, "")

		require.NoError(t, err)
		assert.Len(t, report.Workflow, 1)
		deps.reports.AssertExpectations(t)
	})

	t.Run("invalid status", func(t *testing.T) {
		svc, deps := newReportService(workflow.PolicyStrict)
		deps.reports.On("GetByID", mock.Anything, "RPT-2024-0001").Return(draft(), nil)

		_, err := svc.UpdateStatus(context.Background(), pathologist, "RPT-2024-0001", "archived", "")

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		deps.reports.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestReportService_List(t *testing.T) {
	svc, deps := newReportService(workflow.PolicyStrict)
	deps.reports.On("List", mock.Anything, repositories.ReportFilter{Status: "draft", Limit: 10, Offset: 10}).
		Return([]*entities.Report{{ReportID: "RPT-2024-0011"}}, 11, nil)

	out, err := svc.List(context.Background(), services.ReportListQuery{Status: "draft", Page: 2})

	require.NoError(t, err)
	assert.Len(t, out.Reports, 1)
	assert.Equal(t, services.Pagination{CurrentPage: 2, TotalPages: 2, TotalCount: 11, HasPrev: true}, out.Pagination)

	_, err = svc.List(context.Background(), services.ReportListQuery{Status: "lost"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestReportService_Download(t *testing.T) {
	svc, deps := newReportService(workflow.PolicyStrict)
	deps.reports.On("GetByID", mock.Anything, "RPT-2024-0001").Return(&entities.Report{ReportID: "RPT-2024-0001"}, nil)

	dl, err := svc.Download(context.Background(), "RPT-2024-0001", "")
	require.NoError(t, err)
	assert.Equal(t, "report-RPT-2024-0001.json", dl.Filename)
	assert.Equal(t, "application/json", dl.ContentType)

	_, err = svc.Download(context.Background(), "RPT-2024-0001", "pdf")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
