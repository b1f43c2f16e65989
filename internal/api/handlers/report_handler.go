package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// ReportUseCases is the report surface used by ReportHandler
type ReportUseCases interface {
	Generate(ctx context.Context, actor entities.Actor, sampleRef string, input services.GenerateReportInput) (*entities.Report, error)
	List(ctx context.Context, query services.ReportListQuery) (*services.ReportList, error)
	Get(ctx context.Context, id string) (*entities.Report, error)
	UpdateStatus(ctx context.Context, actor entities.Actor, id string, status entities.ReportStatus, notes string) (*entities.Report, error)
	Download(ctx context.Context, id, format string) (*services.ReportDownload, error)
}

// ReportHandler handles report endpoints
type ReportHandler struct {
	reports ReportUseCases
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportUseCases) *ReportHandler {
	return &ReportHandler{reports: reports}
}

type generateReportRequest struct {
	ReportType    string `json:"reportType"`
	IncludeImages *bool  `json:"includeImages"`
}

type reportStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// GenerateReport handles POST /api/reports/generate/{sampleId}. The body
// is optional; images are included unless includeImages is false.
func (h *ReportHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req generateReportRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondWithAppError(w, r, err)
		return
	}
	input := services.GenerateReportInput{
		ReportType:    entities.ReportType(strings.TrimSpace(req.ReportType)),
		IncludeImages: req.IncludeImages == nil || *req.IncludeImages,
	}

	report, err := h.reports.Generate(r.Context(), actor, r.PathValue("sampleId"), input)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, "Report generated successfully", map[string]interface{}{"report": report})
}

// ListReports handles GET /api/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	q := r.URL.Query()
	query := services.ReportListQuery{
		Status:     q.Get("status"),
		ReportType: q.Get("reportType"),
		Search:     q.Get("search"),
	}
	var err error
	if query.Page, err = queryInt(r, "page"); err == nil {
		if query.Limit, err = queryInt(r, "limit"); err == nil {
			if query.DateFrom, err = queryDate(r, "dateFrom"); err == nil {
				query.DateTo, err = queryDate(r, "dateTo")
			}
		}
	}
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	list, err := h.reports.List(r.Context(), query)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", list)
}

// GetReport handles GET /api/reports/{id}
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	report, err := h.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", map[string]interface{}{"report": report})
}

// UpdateReportStatus handles PATCH /api/reports/{id}/status
func (h *ReportHandler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req reportStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	report, err := h.reports.UpdateStatus(r.Context(), actor, r.PathValue("id"),
		entities.ReportStatus(strings.ToLower(strings.TrimSpace(req.Status))), req.Notes)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, fmt.Sprintf("Report %s successfully", report.Status), map[string]interface{}{
		"reportId":    report.ReportID,
		"status":      report.Status,
		"lastUpdated": report.UpdatedAt,
	})
}

// DownloadReport handles GET /api/reports/{id}/download?format=json and
// serves the report document as an attachment
func (h *ReportHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	download, err := h.reports.Download(r.Context(), r.PathValue("id"), r.URL.Query().Get("format"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(download.Report); err != nil {
		log.Warn().Err(err).Str("report", download.Report.ReportID).Msg("Failed to write report download")
	}
}
