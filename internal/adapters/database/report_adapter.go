package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// ReportAdapter implements ReportRepository
type ReportAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewReportAdapter creates a new report adapter
func NewReportAdapter(client *postgres.Client) repositories.ReportRepository {
	return &ReportAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func reportColumns(report *entities.Report, document string) goqu.Record {
	return goqu.Record{
		"report_id":    report.ReportID,
		"sample_ref":   report.SampleRef,
		"sample_id":    report.SampleID,
		"patient_name": report.PatientInfo.Name,
		"report_type":  string(report.ReportType),
		"status":       string(report.Status),
		"generated_by": report.GeneratedBy,
		"document":     document,
		"updated_at":   report.UpdatedAt,
	}
}

// Create creates a new report
func (a *ReportAdapter) Create(ctx context.Context, report *entities.Report) error {
	report.Version = 1
	document, err := encodeDocument(report)
	if err != nil {
		return err
	}

	record := reportColumns(report, document)
	record["id"] = report.ID
	record["version"] = report.Version
	record["created_at"] = report.CreatedAt

	query, args, err := a.db.Insert("reports").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create report", err)
	}
	return nil
}

// GetByID retrieves a report by UUID or reportId
func (a *ReportAdapter) GetByID(ctx context.Context, id string) (*entities.Report, error) {
	query, args, err := a.db.Select("document", "version").
		From("reports").
		Where(goqu.Ex{lookupColumn(id, "report_id"): id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build select query", err)
	}

	var (
		document []byte
		version  int
	)
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(&document, &version)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("report %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get report", err)
	}

	report := &entities.Report{}
	if err := decodeDocument(document, report); err != nil {
		return nil, err
	}
	report.Version = version
	return report, nil
}

// Update writes the report if its version is unchanged since it was read
func (a *ReportAdapter) Update(ctx context.Context, report *entities.Report) error {
	expected := report.Version
	report.Version = expected + 1
	document, err := encodeDocument(report)
	if err != nil {
		report.Version = expected
		return err
	}

	record := reportColumns(report, document)
	record["version"] = report.Version

	query, args, err := a.db.Update("reports").
		Set(record).
		Where(goqu.Ex{"id": report.ID, "version": expected}).
		ToSQL()
	if err != nil {
		report.Version = expected
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		report.Version = expected
		return apperrors.NewInternalError("failed to update report", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		report.Version = expected
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	report.Version = expected
	countQuery, countArgs, err := a.db.Select(goqu.COUNT("*")).From("reports").Where(goqu.Ex{"id": report.ID}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build count query", err)
	}
	var n int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&n); err != nil {
		return apperrors.NewInternalError("failed to check report", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("report %s not found", report.ID))
	}
	return apperrors.NewConflictError(fmt.Sprintf("report %s was modified concurrently", report.ReportID))
}

// List retrieves one page of reports, newest first
func (a *ReportAdapter) List(ctx context.Context, filter repositories.ReportFilter) ([]*entities.Report, int, error) {
	ds := a.db.From("reports")
	eq := goqu.Ex{}
	if filter.Status != "" {
		eq["status"] = filter.Status
	}
	if filter.ReportType != "" {
		eq["report_type"] = filter.ReportType
	}
	if len(eq) > 0 {
		ds = ds.Where(eq)
	}
	if filter.DateFrom != nil {
		ds = ds.Where(goqu.C("created_at").Gte(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		ds = ds.Where(goqu.C("created_at").Lte(*filter.DateTo))
	}
	if filter.Search != "" {
		pattern := containsPattern(filter.Search)
		ds = ds.Where(goqu.Or(
			goqu.C("report_id").ILike(pattern),
			goqu.C("sample_id").ILike(pattern),
			goqu.C("patient_name").ILike(pattern),
		))
	}

	countQuery, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}
	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count reports", err)
	}

	ds = ds.Select("document", "version").Order(goqu.C("created_at").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to list reports", err)
	}
	defer rows.Close()

	reports := []*entities.Report{}
	for rows.Next() {
		var (
			document []byte
			version  int
		)
		if err := rows.Scan(&document, &version); err != nil {
			return nil, 0, apperrors.NewInternalError("failed to scan report", err)
		}
		report := &entities.Report{}
		if err := decodeDocument(document, report); err != nil {
			return nil, 0, err
		}
		report.Version = version
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewInternalError("error iterating reports", err)
	}
	return reports, total, nil
}
