package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/analysis"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/domain/workflow"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

const (
	defaultReportLimit = 10
	maxReportLimit     = 100

	reportGeneratedNote = "Report generated automatically based on AI analysis"
)

// GenerateReportInput selects the report flavour
type GenerateReportInput struct {
	ReportType    entities.ReportType
	IncludeImages bool
}

// ReportListQuery holds list filters and paging as received from a client
type ReportListQuery struct {
	Status     string
	ReportType string
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string
	Page       int
	Limit      int
}

// ReportList is one page of reports
type ReportList struct {
	Reports    []*entities.Report `json:"reports"`
	Pagination Pagination         `json:"pagination"`
}

// ReportDownload is a report rendered for download
type ReportDownload struct {
	Filename    string
	ContentType string
	Report      *entities.Report
}

// ReportService handles business logic for reports
type ReportService struct {
	reports   repositories.ReportRepository
	samples   repositories.SampleRepository
	sequences repositories.SequenceRepository
	events    providers.EventBus
	machine   *workflow.Machine
	now       func() time.Time
}

// NewReportService creates a new report service
func NewReportService(
	reports repositories.ReportRepository,
	samples repositories.SampleRepository,
	sequences repositories.SequenceRepository,
	events providers.EventBus,
	machine *workflow.Machine,
) *ReportService {
	return &ReportService{
		reports:   reports,
		samples:   samples,
		sequences: sequences,
		events:    events,
		machine:   machine,
		now:       time.Now,
	}
}

// Generate snapshots the sample into a draft report and moves the sample
// to Under Review
func (s *ReportService) Generate(ctx context.Context, actor entities.Actor, sampleRef string, input GenerateReportInput) (*entities.Report, error) {
	reportType := input.ReportType
	if reportType == "" {
		reportType = entities.ReportTypePreliminary
	}
	if !reportType.Valid() {
		return nil, apperrors.NewValidationError("invalid report type",
			apperrors.FieldError{Field: "reportType", Message: "must be one of Preliminary, Final, Amended"})
	}

	sample, err := s.samples.GetByID(ctx, sampleRef)
	if err != nil {
		return nil, err
	}
	if err := canRead(actor, sample); err != nil {
		return nil, err
	}
	if err := s.machine.CheckSystemTransition(sample, actor); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	seq, err := s.sequences.Next(ctx, repositories.SequenceReport, now.Year())
	if err != nil {
		return nil, err
	}

	report := &entities.Report{
		ID:          uuid.NewString(),
		ReportID:    entities.FormatReportID(now.Year(), seq),
		SampleRef:   sample.ID,
		SampleID:    sample.SampleID,
		PatientInfo: sample.PatientInfo,
		ClinicalInfo: entities.ReportClinicalInfo{
			OrderingPhysician:    sample.ClinicalInfo.OrderingPhysician,
			ClinicalHistory:      sample.ClinicalInfo.ClinicalHistory,
			ProvisionalDiagnosis: sample.ClinicalInfo.ProvisionalDiagnosis,
			SampleSite:           sample.AnatomicalSite,
			SampleDate:           sample.CreatedAt,
		},
		AIAnalysis:  analysis.ReportAnalysis(sample),
		ReportType:  reportType,
		Status:      entities.ReportStatusDraft,
		GeneratedBy: actor.UserID,
		GeneratedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	report.AppendWorkflow(entities.ReportStatusDraft, actor.UserID, "Report generated", now)
	if input.IncludeImages {
		for _, img := range sample.AnalyzedImages() {
			report.ImageAnalysis = append(report.ImageAnalysis, entities.ReportImage{
				Filename:      img.Filename,
				OriginalName:  img.OriginalName,
				Magnification: img.Magnification,
				Staining:      img.Staining,
				MLAnalysis:    img.MLAnalysis,
			})
		}
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	updated, err := updateWithRetry(ctx,
		func() (*entities.Sample, error) { return s.samples.GetByID(ctx, sample.ID) },
		func(current *entities.Sample) error {
			return s.machine.SystemTransition(current, actor, entities.SampleStatusUnderReview, reportGeneratedNote)
		},
		func(current *entities.Sample) error { return s.samples.Update(ctx, current) },
	)
	if err != nil {
		log.Error().Err(err).Str("report_id", report.ReportID).Str("sample_id", sample.SampleID).
			Msg("Report stored but sample could not be moved to Under Review")
		return report, nil
	}

	publishSampleEvent(ctx, s.events, updated, entities.SampleEventReportGenerated, actor.UserID, report.ReportID)
	return report, nil
}

// List returns one page of reports
func (s *ReportService) List(ctx context.Context, query ReportListQuery) (*ReportList, error) {
	page, limit := normalizePage(query.Page, query.Limit, defaultReportLimit, maxReportLimit)
	if query.Status != "" {
		if _, ok := entities.ParseReportStatus(query.Status); !ok {
			return nil, apperrors.NewValidationError("invalid status filter",
				apperrors.FieldError{Field: "status", Message: "is not a valid report status"})
		}
	}

	reports, total, err := s.reports.List(ctx, repositories.ReportFilter{
		Status:     query.Status,
		ReportType: query.ReportType,
		DateFrom:   query.DateFrom,
		DateTo:     query.DateTo,
		Search:     query.Search,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	return &ReportList{Reports: reports, Pagination: NewPagination(page, limit, total)}, nil
}

// Get retrieves a report by reportId or storage id
func (s *ReportService) Get(ctx context.Context, id string) (*entities.Report, error) {
	return s.reports.GetByID(ctx, id)
}

// UpdateStatus moves a report through review
func (s *ReportService) UpdateStatus(ctx context.Context, actor entities.Actor, id string, status entities.ReportStatus, notes string) (*entities.Report, error) {
	return updateWithRetry(ctx,
		func() (*entities.Report, error) { return s.reports.GetByID(ctx, id) },
		func(report *entities.Report) error {
			return s.machine.TransitionReport(report, actor, status, notes)
		},
		func(report *entities.Report) error { return s.reports.Update(ctx, report) },
	)
}

// Download returns the report prepared for the requested format. Only JSON
// is rendered.
func (s *ReportService) Download(ctx context.Context, id, format string) (*ReportDownload, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != "json" {
		return nil, apperrors.NewValidationError("unsupported format",
			apperrors.FieldError{Field: "format", Message: "only json is supported"})
	}

	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReportDownload{
		Filename:    "report-" + report.ReportID + ".json",
		ContentType: "application/json",
		Report:      report,
	}, nil
}
