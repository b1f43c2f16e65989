package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// SampleAdapter implements SampleRepository. The whole sample is kept as a
// JSONB document; filter columns are copied beside it on every write.
type SampleAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSampleAdapter creates a new sample adapter
func NewSampleAdapter(client *postgres.Client) repositories.SampleRepository {
	return &SampleAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func sampleColumns(sample *entities.Sample, document string) goqu.Record {
	return goqu.Record{
		"sample_id":       sample.SampleID,
		"patient_id":      sample.PatientInfo.PatientID,
		"patient_name":    sample.PatientInfo.Name,
		"specimen_type":   sample.SpecimenType,
		"anatomical_site": sample.AnatomicalSite,
		"priority":        string(sample.Priority),
		"status":          string(sample.Status),
		"submitted_by":    sample.SubmittedBy,
		"assigned_to":     sample.AssignedTo,
		"document":        document,
		"updated_at":      sample.UpdatedAt,
	}
}

// Create creates a new sample
func (a *SampleAdapter) Create(ctx context.Context, sample *entities.Sample) error {
	sample.Version = 1
	document, err := encodeDocument(sample)
	if err != nil {
		return err
	}

	record := sampleColumns(sample, document)
	record["id"] = sample.ID
	record["version"] = sample.Version
	record["created_at"] = sample.CreatedAt

	query, args, err := a.db.Insert("samples").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create sample", err)
	}
	return nil
}

// GetByID retrieves a sample by UUID or sampleId
func (a *SampleAdapter) GetByID(ctx context.Context, id string) (*entities.Sample, error) {
	query, args, err := a.db.Select("document", "version").
		From("samples").
		Where(goqu.Ex{lookupColumn(id, "sample_id"): id}).
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
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("sample %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get sample", err)
	}

	sample := &entities.Sample{}
	if err := decodeDocument(document, sample); err != nil {
		return nil, err
	}
	sample.Version = version
	return sample, nil
}

// Update writes the sample if nobody else has written it since it was read
func (a *SampleAdapter) Update(ctx context.Context, sample *entities.Sample) error {
	expected := sample.Version
	sample.Version = expected + 1
	document, err := encodeDocument(sample)
	if err != nil {
		sample.Version = expected
		return err
	}

	record := sampleColumns(sample, document)
	record["version"] = sample.Version

	query, args, err := a.db.Update("samples").
		Set(record).
		Where(goqu.Ex{"id": sample.ID, "version": expected}).
		ToSQL()
	if err != nil {
		sample.Version = expected
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		sample.Version = expected
		return apperrors.NewInternalError("failed to update sample", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		sample.Version = expected
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		sample.Version = expected
		return a.missOrConflict(ctx, sample.ID)
	}
	return nil
}

func (a *SampleAdapter) missOrConflict(ctx context.Context, id string) error {
	query, args, err := a.db.Select(goqu.COUNT("*")).From("samples").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build count query", err)
	}
	var n int
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return apperrors.NewInternalError("failed to check sample", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("sample %s not found", id))
	}
	return apperrors.NewConflictError(fmt.Sprintf("sample %s was modified concurrently", id))
}

func (a *SampleAdapter) filtered(filter repositories.SampleFilter) *goqu.SelectDataset {
	ds := a.db.From("samples")

	eq := goqu.Ex{}
	if filter.Status != "" {
		eq["status"] = filter.Status
	}
	if filter.SpecimenType != "" {
		eq["specimen_type"] = filter.SpecimenType
	}
	if filter.Priority != "" {
		eq["priority"] = filter.Priority
	}
	if filter.SubmittedBy != "" {
		eq["submitted_by"] = filter.SubmittedBy
	}
	if len(eq) > 0 {
		ds = ds.Where(eq)
	}
	if filter.StartDate != nil {
		ds = ds.Where(goqu.C("created_at").Gte(*filter.StartDate))
	}
	if filter.EndDate != nil {
		ds = ds.Where(goqu.C("created_at").Lte(*filter.EndDate))
	}
	if filter.Search != "" {
		pattern := containsPattern(filter.Search)
		ds = ds.Where(goqu.Or(
			goqu.C("sample_id").ILike(pattern),
			goqu.C("patient_name").ILike(pattern),
			goqu.C("patient_id").ILike(pattern),
			goqu.C("anatomical_site").ILike(pattern),
		))
	}
	return ds
}

// List retrieves one page of samples matching the filter, newest first
func (a *SampleAdapter) List(ctx context.Context, filter repositories.SampleFilter) ([]*entities.Sample, int, error) {
	ds := a.filtered(filter)

	countQuery, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("failed to build count query", err)
	}
	var total int
	if err := a.client.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to count samples", err)
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
		return nil, 0, apperrors.NewInternalError("failed to list samples", err)
	}
	defer rows.Close()

	samples := []*entities.Sample{}
	for rows.Next() {
		var (
			document []byte
			version  int
		)
		if err := rows.Scan(&document, &version); err != nil {
			return nil, 0, apperrors.NewInternalError("failed to scan sample", err)
		}
		sample := &entities.Sample{}
		if err := decodeDocument(document, sample); err != nil {
			return nil, 0, err
		}
		sample.Version = version
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewInternalError("error iterating samples", err)
	}

	return samples, total, nil
}

// Stats counts samples by status, specimen type and priority
func (a *SampleAdapter) Stats(ctx context.Context, from, to *time.Time) (*repositories.SampleStats, error) {
	var conds []exp.Expression
	if from != nil {
		conds = append(conds, goqu.C("created_at").Gte(*from))
	}
	if to != nil {
		conds = append(conds, goqu.C("created_at").Lte(*to))
	}

	stats := &repositories.SampleStats{}
	var err error
	if stats.ByStatus, err = a.countBy(ctx, "status", conds); err != nil {
		return nil, err
	}
	if stats.BySpecimenType, err = a.countBy(ctx, "specimen_type", conds); err != nil {
		return nil, err
	}
	if stats.ByPriority, err = a.countBy(ctx, "priority", conds); err != nil {
		return nil, err
	}
	for _, n := range stats.ByStatus {
		stats.Total += n
	}
	return stats, nil
}

func (a *SampleAdapter) countBy(ctx context.Context, column string, conds []exp.Expression) (map[string]int, error) {
	query, args, err := a.db.From("samples").
		Select(goqu.COALESCE(goqu.C(column), "").As("bucket"), goqu.COUNT("*")).
		Where(conds...).
		GroupBy("bucket").
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build stats query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to compute sample stats", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			bucket string
			n      int
		)
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, apperrors.NewInternalError("failed to scan sample stats", err)
		}
		if bucket == "" {
			bucket = "Unspecified"
		}
		counts[bucket] += n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating sample stats", err)
	}
	return counts, nil
}
