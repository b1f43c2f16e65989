package services

import (
	"context"
	"fmt"
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
	defaultSampleLimit = 20
	maxSampleLimit     = 100
	quickSearchLimit   = 10
)

var sampleWriters = []entities.Role{entities.RolePathologist, entities.RoleLabTechnician, entities.RoleAdmin}

// SampleInput is the client-supplied part of a new sample
type SampleInput struct {
	PatientInfo    entities.PatientInfo
	ClinicalInfo   entities.ClinicalInfo
	SpecimenType   string
	AnatomicalSite string
	Priority       entities.Priority
}

// SamplePatch carries the fields a client may edit; nil means unchanged
type SamplePatch struct {
	PatientInfo    *entities.PatientInfo
	ClinicalInfo   *entities.ClinicalInfo
	SpecimenType   *string
	AnatomicalSite *string
	Priority       *entities.Priority
	Status         *entities.SampleStatus
	Notes          string
}

// SampleListQuery holds list filters and paging as received from a client
type SampleListQuery struct {
	Status       string
	SpecimenType string
	Priority     string
	SubmittedBy  string
	StartDate    *time.Time
	EndDate      *time.Time
	Search       string
	Page         int
	Limit        int
}

// SampleList is one page of samples
type SampleList struct {
	Samples    []*entities.Sample `json:"samples"`
	Pagination Pagination         `json:"pagination"`
}

// SampleService handles business logic for samples
type SampleService struct {
	repo       repositories.SampleRepository
	searchRepo repositories.SampleSearchRepository
	users      repositories.UserRepository
	sequences  repositories.SequenceRepository
	events     providers.EventBus
	machine    *workflow.Machine
	images     *ImageProcessor
	now        func() time.Time
}

// NewSampleService creates a new sample service. searchRepo, events and
// images may be nil.
func NewSampleService(
	repo repositories.SampleRepository,
	searchRepo repositories.SampleSearchRepository,
	users repositories.UserRepository,
	sequences repositories.SequenceRepository,
	events providers.EventBus,
	machine *workflow.Machine,
	images *ImageProcessor,
) *SampleService {
	return &SampleService{
		repo:       repo,
		searchRepo: searchRepo,
		users:      users,
		sequences:  sequences,
		events:     events,
		machine:    machine,
		images:     images,
		now:        time.Now,
	}
}

// ValidateCreate runs the role and field checks of Create without writing
func (s *SampleService) ValidateCreate(actor entities.Actor, input SampleInput) error {
	if err := requireRole(actor, "create samples", sampleWriters...); err != nil {
		return err
	}
	draft := entities.Sample{PatientInfo: input.PatientInfo, Priority: input.Priority}
	if issues := draft.Validate(); len(issues) > 0 {
		return validationError("invalid sample", issues)
	}
	return nil
}

// Create stores a new sample in Received status with the given images
func (s *SampleService) Create(ctx context.Context, actor entities.Actor, input SampleInput, images []entities.SampleImage) (*entities.Sample, error) {
	if err := s.ValidateCreate(actor, input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	seq, err := s.sequences.Next(ctx, repositories.SequenceSample, now.Year())
	if err != nil {
		return nil, err
	}

	priority := input.Priority
	if priority == "" {
		priority = entities.PriorityRoutine
	}
	if images == nil {
		images = []entities.SampleImage{}
	}

	sample := &entities.Sample{
		ID:             uuid.NewString(),
		SampleID:       entities.FormatSampleID(now.Year(), seq),
		PatientInfo:    input.PatientInfo,
		ClinicalInfo:   input.ClinicalInfo,
		SpecimenType:   input.SpecimenType,
		AnatomicalSite: input.AnatomicalSite,
		Priority:       priority,
		Images:         images,
		SubmittedBy:    actor.UserID,
		CreatedAt:      now,
	}
	s.machine.Start(sample, actor, "Sample received")
	sample.AISummary = analysis.Summarize(sample.Images)

	if err := s.repo.Create(ctx, sample); err != nil {
		return nil, err
	}

	s.index(ctx, sample)
	publishSampleEvent(ctx, s.events, sample, entities.SampleEventCreated, actor.UserID, "")
	return sample, nil
}

// Get retrieves a sample the actor is allowed to see
func (s *SampleService) Get(ctx context.Context, actor entities.Actor, id string) (*entities.Sample, error) {
	sample, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(actor, sample); err != nil {
		return nil, err
	}
	return sample, nil
}

// List returns one page of samples visible to the actor
func (s *SampleService) List(ctx context.Context, actor entities.Actor, query SampleListQuery) (*SampleList, error) {
	page, limit := normalizePage(query.Page, query.Limit, defaultSampleLimit, maxSampleLimit)

	filter := repositories.SampleFilter{
		Status:       query.Status,
		SpecimenType: query.SpecimenType,
		Priority:     query.Priority,
		StartDate:    query.StartDate,
		EndDate:      query.EndDate,
		Search:       query.Search,
		Limit:        limit,
		Offset:       (page - 1) * limit,
	}
	switch {
	case actor.Role == entities.RoleLabTechnician:
		filter.SubmittedBy = actor.UserID
	case actor.Role.IsPrivileged():
		filter.SubmittedBy = query.SubmittedBy
	}

	samples, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &SampleList{Samples: samples, Pagination: NewPagination(page, limit, total)}, nil
}

// Update applies a patch, routing any status change through the workflow
func (s *SampleService) Update(ctx context.Context, actor entities.Actor, id string, patch SamplePatch) (*entities.Sample, error) {
	if err := requireRole(actor, "edit samples", sampleWriters...); err != nil {
		return nil, err
	}

	sample, err := s.mutate(ctx, id, func(sample *entities.Sample) error {
		if actor.Role == entities.RoleLabTechnician && sample.SubmittedBy != actor.UserID {
			return apperrors.NewForbiddenError("lab technicians may only edit their own samples")
		}
		if patch.PatientInfo != nil {
			sample.PatientInfo = *patch.PatientInfo
		}
		if patch.ClinicalInfo != nil {
			sample.ClinicalInfo = *patch.ClinicalInfo
		}
		if patch.SpecimenType != nil {
			sample.SpecimenType = *patch.SpecimenType
		}
		if patch.AnatomicalSite != nil {
			sample.AnatomicalSite = *patch.AnatomicalSite
		}
		if patch.Priority != nil {
			sample.Priority = *patch.Priority
		}
		if issues := sample.Validate(); len(issues) > 0 {
			return validationError("invalid sample", issues)
		}
		if patch.Status != nil && *patch.Status != sample.Status {
			if err := s.machine.Transition(sample, actor, *patch.Status, patch.Notes); err != nil {
				return err
			}
		}
		sample.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.index(ctx, sample)
	if patch.Status != nil {
		publishSampleEvent(ctx, s.events, sample, entities.SampleEventStatusChanged, actor.UserID, patch.Notes)
	}
	return sample, nil
}

// Delete cancels the sample; the record is kept
func (s *SampleService) Delete(ctx context.Context, actor entities.Actor, id string) (*entities.Sample, error) {
	if err := requireRole(actor, "delete samples", entities.RoleAdmin, entities.RolePathologist); err != nil {
		return nil, err
	}

	sample, err := s.mutate(ctx, id, func(sample *entities.Sample) error {
		return s.machine.Cancel(sample, actor, "")
	})
	if err != nil {
		return nil, err
	}

	s.index(ctx, sample)
	publishSampleEvent(ctx, s.events, sample, entities.SampleEventStatusChanged, actor.UserID, "Sample cancelled")
	return sample, nil
}

// Assign sets the responsible user. A Received sample moves to Processing.
func (s *SampleService) Assign(ctx context.Context, actor entities.Actor, id, assigneeID string) (*entities.Sample, error) {
	if err := requireRole(actor, "assign samples", entities.RoleAdmin, entities.RolePathologist); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(assigneeID); err != nil {
		return nil, apperrors.NewValidationError("invalid assignee",
			apperrors.FieldError{Field: "assignedTo", Message: "must be a user id"})
	}

	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NewValidationError("assignee not found",
				apperrors.FieldError{Field: "assignedTo", Message: "does not reference an existing user"})
		}
		return nil, err
	}
	if !assignee.IsActive {
		return nil, apperrors.NewValidationError("assignee is inactive",
			apperrors.FieldError{Field: "assignedTo", Message: "user is deactivated"})
	}

	sample, err := s.mutate(ctx, id, func(sample *entities.Sample) error {
		now := s.now().UTC()
		sample.AssignedTo = assignee.ID
		sample.AssignedAt = &now
		if sample.Status == entities.SampleStatusReceived {
			return s.machine.SystemTransition(sample, actor, entities.SampleStatusProcessing,
				fmt.Sprintf("Sample assigned to %s", assignee.Name))
		}
		sample.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.index(ctx, sample)
	publishSampleEvent(ctx, s.events, sample, entities.SampleEventAssigned, actor.UserID, assignee.ID)
	return sample, nil
}

// UpdateStatus performs a role-gated workflow transition
func (s *SampleService) UpdateStatus(ctx context.Context, actor entities.Actor, id string, status entities.SampleStatus, notes string) (*entities.Sample, error) {
	sample, err := s.mutate(ctx, id, func(sample *entities.Sample) error {
		if err := canRead(actor, sample); err != nil {
			return err
		}
		return s.machine.Transition(sample, actor, status, notes)
	})
	if err != nil {
		return nil, err
	}

	s.index(ctx, sample)
	publishSampleEvent(ctx, s.events, sample, entities.SampleEventStatusChanged, actor.UserID, notes)
	return sample, nil
}

// AddImage stores and analyses one more image and recomputes the summary
func (s *SampleService) AddImage(ctx context.Context, actor entities.Actor, id string, file UploadFile) (*entities.Sample, error) {
	if err := requireRole(actor, "add images", sampleWriters...); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, apperrors.NewInternalError("image processing is not configured", nil)
	}

	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if current.Status == entities.SampleStatusCancelled {
		return nil, apperrors.NewConflictError("cannot add images to a cancelled sample")
	}

	images, err := s.images.Process(ctx, actor, []UploadFile{file})
	if err != nil {
		return nil, err
	}

	sample, err := s.mutate(ctx, current.ID, func(sample *entities.Sample) error {
		sample.Images = append(sample.Images, images...)
		sample.AISummary = analysis.Summarize(sample.Images)
		sample.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		s.images.Discard(ctx, images)
		return nil, err
	}

	publishSampleEvent(ctx, s.events, sample, entities.SampleEventImageAdded, actor.UserID, images[0].Filename)
	return sample, nil
}

// Stats returns counts by status, specimen type and priority
func (s *SampleService) Stats(ctx context.Context, actor entities.Actor, from, to *time.Time) (*repositories.SampleStats, error) {
	if err := requireRole(actor, "view statistics", entities.RoleAdmin, entities.RolePathologist); err != nil {
		return nil, err
	}
	return s.repo.Stats(ctx, from, to)
}

// QuickSearch matches samples through the search index when available,
// falling back to the database
func (s *SampleService) QuickSearch(ctx context.Context, actor entities.Actor, q string) ([]repositories.SampleSearchHit, error) {
	submittedBy := ""
	if actor.Role == entities.RoleLabTechnician {
		submittedBy = actor.UserID
	}

	if s.searchRepo != nil {
		hits, err := s.searchRepo.Search(ctx, q, submittedBy, quickSearchLimit)
		if err == nil {
			return hits, nil
		}
		log.Warn().Err(err).Msg("Sample index search failed, falling back to database")
	}

	samples, _, err := s.repo.List(ctx, repositories.SampleFilter{
		Search:      q,
		SubmittedBy: submittedBy,
		Limit:       quickSearchLimit,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]repositories.SampleSearchHit, len(samples))
	for i, sample := range samples {
		hits[i] = repositories.SampleSearchHit{
			ID:             sample.ID,
			SampleID:       sample.SampleID,
			PatientName:    sample.PatientInfo.Name,
			PatientID:      sample.PatientInfo.PatientID,
			AnatomicalSite: sample.AnatomicalSite,
			SpecimenType:   sample.SpecimenType,
			Status:         string(sample.Status),
			SubmittedBy:    sample.SubmittedBy,
		}
	}
	return hits, nil
}

func (s *SampleService) mutate(ctx context.Context, id string, apply func(*entities.Sample) error) (*entities.Sample, error) {
	return updateWithRetry(ctx,
		func() (*entities.Sample, error) { return s.repo.GetByID(ctx, id) },
		apply,
		func(sample *entities.Sample) error { return s.repo.Update(ctx, sample) },
	)
}

func (s *SampleService) index(ctx context.Context, sample *entities.Sample) {
	if s.searchRepo == nil {
		return
	}
	if err := s.searchRepo.Index(ctx, sample); err != nil {
		log.Warn().Err(err).Str("sample_id", sample.SampleID).Msg("Failed to index sample")
	}
}

func canRead(actor entities.Actor, sample *entities.Sample) error {
	if actor.Role == entities.RoleLabTechnician && sample.SubmittedBy != actor.UserID {
		return apperrors.NewForbiddenError("lab technicians may only view their own samples")
	}
	return nil
}
