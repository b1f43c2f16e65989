package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// SampleUseCases is the sample surface used by SampleHandler
type SampleUseCases interface {
	Create(ctx context.Context, actor entities.Actor, input services.SampleInput, images []entities.SampleImage) (*entities.Sample, error)
	Get(ctx context.Context, actor entities.Actor, id string) (*entities.Sample, error)
	List(ctx context.Context, actor entities.Actor, query services.SampleListQuery) (*services.SampleList, error)
	Update(ctx context.Context, actor entities.Actor, id string, patch services.SamplePatch) (*entities.Sample, error)
	Delete(ctx context.Context, actor entities.Actor, id string) (*entities.Sample, error)
	Assign(ctx context.Context, actor entities.Actor, id, assigneeID string) (*entities.Sample, error)
	UpdateStatus(ctx context.Context, actor entities.Actor, id string, status entities.SampleStatus, notes string) (*entities.Sample, error)
	AddImage(ctx context.Context, actor entities.Actor, id string, file services.UploadFile) (*entities.Sample, error)
	Stats(ctx context.Context, actor entities.Actor, from, to *time.Time) (*repositories.SampleStats, error)
	QuickSearch(ctx context.Context, actor entities.Actor, q string) ([]repositories.SampleSearchHit, error)
}

// UploadUseCases creates a sample together with analysed images
type UploadUseCases interface {
	UploadWithAnalysis(ctx context.Context, actor entities.Actor, input services.SampleInput, files []services.UploadFile) (*entities.Sample, error)
}

// SampleHandler handles sample endpoints
type SampleHandler struct {
	samples        SampleUseCases
	uploads        UploadUseCases
	maxUploadBytes int64
}

// NewSampleHandler creates a new sample handler. Multipart bodies larger
// than maxUploadMB are rejected.
func NewSampleHandler(samples SampleUseCases, uploads UploadUseCases, maxUploadMB int) *SampleHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 100
	}
	return &SampleHandler{
		samples:        samples,
		uploads:        uploads,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

type sampleRequest struct {
	PatientInfo    entities.PatientInfo  `json:"patientInfo"`
	ClinicalInfo   entities.ClinicalInfo `json:"clinicalInfo"`
	SpecimenType   string                `json:"specimenType"`
	AnatomicalSite string                `json:"anatomicalSite"`
	Priority       string                `json:"priority"`
}

func (req sampleRequest) input() services.SampleInput {
	return services.SampleInput{
		PatientInfo:    req.PatientInfo,
		ClinicalInfo:   req.ClinicalInfo,
		SpecimenType:   strings.TrimSpace(req.SpecimenType),
		AnatomicalSite: strings.TrimSpace(req.AnatomicalSite),
		Priority:       entities.Priority(strings.TrimSpace(req.Priority)),
	}
}

type samplePatchRequest struct {
	PatientInfo    *entities.PatientInfo  `json:"patientInfo"`
	ClinicalInfo   *entities.ClinicalInfo `json:"clinicalInfo"`
	SpecimenType   *string                `json:"specimenType"`
	AnatomicalSite *string                `json:"anatomicalSite"`
	Priority       *string                `json:"priority"`
	Status         *string                `json:"status"`
	Notes          string                 `json:"notes"`
}

func (req samplePatchRequest) patch() services.SamplePatch {
	patch := services.SamplePatch{
		PatientInfo:    req.PatientInfo,
		ClinicalInfo:   req.ClinicalInfo,
		SpecimenType:   req.SpecimenType,
		AnatomicalSite: req.AnatomicalSite,
		Notes:          req.Notes,
	}
	if req.Priority != nil {
		p := entities.Priority(*req.Priority)
		patch.Priority = &p
	}
	if req.Status != nil {
		s := entities.SampleStatus(*req.Status)
		patch.Status = &s
	}
	return patch
}

type assignRequest struct {
	AssignedTo string `json:"assignedTo"`
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (req statusRequest) Validate() error {
	if strings.TrimSpace(req.Status) == "" {
		return apperrors.NewValidationError("invalid status request",
			apperrors.FieldError{Field: "status", Message: "is required"})
	}
	return nil
}

// CreateSample handles POST /api/samples
func (h *SampleHandler) CreateSample(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req sampleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	sample, err := h.samples.Create(r.Context(), actor, req.input(), nil)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, "Sample created successfully", map[string]interface{}{"sample": sample})
}

// ListSamples handles GET /api/samples
func (h *SampleHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	query, err := parseSampleListQuery(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	list, err := h.samples.List(r.Context(), actor, query)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", list)
}

// SearchSamples handles GET /api/samples/search?q=
func (h *SampleHandler) SearchSamples(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("search query is required",
			apperrors.FieldError{Field: "q", Message: "is required"}))
		return
	}

	hits, err := h.samples.QuickSearch(r.Context(), actor, q)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", map[string]interface{}{"results": hits, "count": len(hits)})
}

// GetStats handles GET /api/samples/stats/overview
func (h *SampleHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	from, err := queryDate(r, "startDate")
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	to, err := queryDate(r, "endDate")
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	stats, err := h.samples.Stats(r.Context(), actor, from, to)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", map[string]interface{}{"stats": stats})
}

// GetSample handles GET /api/samples/{id}
func (h *SampleHandler) GetSample(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	sample, err := h.samples.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "", map[string]interface{}{"sample": sample})
}

// UpdateSample handles PUT /api/samples/{id}
func (h *SampleHandler) UpdateSample(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req samplePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	sample, err := h.samples.Update(r.Context(), actor, r.PathValue("id"), req.patch())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "Sample updated successfully", map[string]interface{}{"sample": sample})
}

// DeleteSample handles DELETE /api/samples/{id}
func (h *SampleHandler) DeleteSample(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if _, err := h.samples.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "Sample deleted successfully", nil)
}

// AssignSample handles PUT /api/samples/{id}/assign
func (h *SampleHandler) AssignSample(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.AssignedTo) == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("assigned user ID is required",
			apperrors.FieldError{Field: "assignedTo", Message: "is required"}))
		return
	}

	sample, err := h.samples.Assign(r.Context(), actor, r.PathValue("id"), strings.TrimSpace(req.AssignedTo))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "Sample assigned successfully", map[string]interface{}{"sample": sample})
}

// UpdateStatus handles PUT /api/samples/{id}/status
func (h *SampleHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	sample, err := h.samples.UpdateStatus(r.Context(), actor, r.PathValue("id"),
		entities.SampleStatus(strings.TrimSpace(req.Status)), req.Notes)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusOK, "Status updated successfully", map[string]interface{}{"sample": sample})
}

// AddImage handles POST /api/samples/{id}/images (multipart field "image")
func (h *SampleHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["image"]
	if len(headers) != 1 {
		respondWithAppError(w, r, apperrors.NewValidationError("exactly one image is required",
			apperrors.FieldError{Field: "image", Message: "is required"}))
		return
	}
	files, err := readUploads(headers, r.FormValue("magnification"), r.FormValue("staining"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	sample, err := h.samples.AddImage(r.Context(), actor, r.PathValue("id"), files[0])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	image := sample.Images[len(sample.Images)-1]
	respondWithData(w, http.StatusOK, "Image added successfully", map[string]interface{}{
		"image":  image,
		"sample": sample,
	})
}

// UploadWithAnalysis handles POST /api/samples/upload-with-analysis with
// multipart fields "sampleData" (JSON) and "images"
func (h *SampleHandler) UploadWithAnalysis(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	raw := r.FormValue("sampleData")
	if raw == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("sample data is required",
			apperrors.FieldError{Field: "sampleData", Message: "is required"}))
		return
	}
	var req sampleRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		respondWithAppError(w, r, apperrors.NewValidationError("invalid sample data",
			apperrors.FieldError{Field: "sampleData", Message: "must be a JSON object"}))
		return
	}

	files, err := readUploads(r.MultipartForm.File["images"], r.FormValue("magnification"), r.FormValue("staining"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	sample, err := h.uploads.UploadWithAnalysis(r.Context(), actor, req.input(), files)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithData(w, http.StatusCreated, "Sample created with AI analysis", map[string]interface{}{
		"sample":    sample,
		"aiSummary": sample.AISummary,
	})
}

func (h *SampleHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewValidationError("upload exceeds the size limit")
		}
		return apperrors.NewValidationError("invalid multipart body: " + err.Error())
	}
	return nil
}

func readUploads(headers []*multipart.FileHeader, magnification, staining string) ([]services.UploadFile, error) {
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, apperrors.NewValidationError("failed to read upload " + fh.Filename)
		}
		files = append(files, services.UploadFile{
			OriginalName:  fh.Filename,
			ContentType:   fh.Header.Get("Content-Type"),
			Data:          data,
			Magnification: magnification,
			Staining:      staining,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseSampleListQuery(r *http.Request) (services.SampleListQuery, error) {
	q := r.URL.Query()
	query := services.SampleListQuery{
		Status:       q.Get("status"),
		SpecimenType: q.Get("specimenType"),
		Priority:     q.Get("priority"),
		SubmittedBy:  q.Get("submittedBy"),
		Search:       q.Get("search"),
	}
	var err error
	if query.Page, err = queryInt(r, "page"); err != nil {
		return query, err
	}
	if query.Limit, err = queryInt(r, "limit"); err != nil {
		return query, err
	}
	if query.StartDate, err = queryDate(r, "startDate"); err != nil {
		return query, err
	}
	if query.EndDate, err = queryDate(r, "endDate"); err != nil {
		return query, err
	}
	return query, nil
}
