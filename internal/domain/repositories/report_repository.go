package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// ReportFilter narrows report listings
type ReportFilter struct {
	Status     string
	ReportType string
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string
	Limit      int
	Offset     int
}

// ReportRepository defines persistence for reports
type ReportRepository interface {
	// Create stores a new report at version 1
	Create(ctx context.Context, report *entities.Report) error

	// GetByID retrieves a report by storage id or human reportId
	GetByID(ctx context.Context, id string) (*entities.Report, error)

	// Update is a versioned compare-and-swap write
	Update(ctx context.Context, report *entities.Report) error

	// List returns one page of matching reports, newest first, and the total
	List(ctx context.Context, filter ReportFilter) ([]*entities.Report, int, error)
}
