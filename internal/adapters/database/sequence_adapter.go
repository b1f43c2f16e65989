package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// SequenceAdapter implements SequenceRepository on an upserted counter row
type SequenceAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSequenceAdapter creates a new sequence adapter
func NewSequenceAdapter(client *postgres.Client) repositories.SequenceRepository {
	return &SequenceAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Next increments and returns the counter for (name, year). The first call
// for a pair returns 1.
func (a *SequenceAdapter) Next(ctx context.Context, name string, year int) (int64, error) {
	query, args, err := a.db.Insert("id_sequences").
		Rows(goqu.Record{"name": name, "year": year, "value": 1}).
		OnConflict(goqu.DoUpdate("name, year", goqu.Record{"value": goqu.L("id_sequences.value + 1")})).
		Returning("value").
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build sequence query", err)
	}

	var value int64
	if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return 0, apperrors.NewInternalError("failed to allocate sequence value", err)
	}
	return value, nil
}
