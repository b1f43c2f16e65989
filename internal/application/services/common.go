package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
	"github.com/zatekoja/recursiadx/pkg/retry"
)

// Pagination describes one page of a listing
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// NewPagination computes page metadata for total items split into pages of limit
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  pages,
		TotalCount:  total,
		HasNext:     page < pages,
		HasPrev:     page > 1,
	}
}

func normalizePage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func requireRole(actor entities.Actor, action string, roles ...entities.Role) error {
	if actor.HasRole(roles...) {
		return nil
	}
	return apperrors.NewForbiddenError(fmt.Sprintf("role %s is not allowed to %s", actor.Role, action))
}

func validationError(message string, issues []entities.ValidationIssue) error {
	fields := make([]apperrors.FieldError, len(issues))
	for i, issue := range issues {
		fields[i] = apperrors.FieldError{Field: issue.Field, Message: issue.Message}
	}
	return apperrors.NewValidationError(message, fields...)
}

// staleWrite marks a compare-and-swap write that lost a version race, so it
// can be told apart from domain conflicts such as terminal statuses.
type staleWrite struct {
	err error
}

func (e *staleWrite) Error() string { return e.err.Error() }
func (e *staleWrite) Unwrap() error { return e.err }

func isStaleWrite(err error) bool {
	var stale *staleWrite
	return errors.As(err, &stale)
}

// updateWithRetry loads a fresh copy, applies the mutation and saves it,
// repeating the whole cycle when the save loses a version race.
func updateWithRetry[T any](ctx context.Context, load func() (T, error), apply func(T) error, save func(T) error) (T, error) {
	var out T
	err := retry.Do(ctx, retry.ConflictConfig(isStaleWrite), func() error {
		current, err := load()
		if err != nil {
			return err
		}
		if err := apply(current); err != nil {
			return err
		}
		if err := save(current); err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
				return &staleWrite{err: err}
			}
			return err
		}
		out = current
		return nil
	})
	return out, err
}

func publishSampleEvent(ctx context.Context, bus providers.EventBus, sample *entities.Sample, eventType entities.SampleEventType, actor, detail string) {
	if bus == nil {
		return
	}
	event := entities.NewSampleEvent(sample, eventType, actor, detail)
	for _, channel := range []string{providers.EventChannelSampleUpdates, providers.GetSampleChannel(sample.ID)} {
		if err := bus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("sample_id", sample.SampleID).Str("channel", channel).Msg("Failed to publish sample event")
		}
	}
}
