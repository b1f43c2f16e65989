package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	tsclient "github.com/zatekoja/recursiadx/internal/infrastructure/clients/typesense"
)

const queryFields = "sample_id,patient_name,patient_id,anatomical_site"

// TypesenseAdapter implements sample quick-search using Typesense
type TypesenseAdapter struct {
	client *tsclient.Client
}

var _ repositories.SampleSearchRepository = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// InitSchema ensures the collection exists
func (a *TypesenseAdapter) InitSchema(ctx context.Context) error {
	return a.client.InitSchema(ctx)
}

// Index upserts a sample into the index
func (a *TypesenseAdapter) Index(ctx context.Context, sample *entities.Sample) error {
	_, err := a.client.Client().Collection(tsclient.SamplesCollection).Documents().Upsert(ctx, sampleDocument(sample))
	if err != nil {
		return fmt.Errorf("failed to index sample %s: %w", sample.SampleID, err)
	}
	return nil
}

// Delete removes a sample from the index
func (a *TypesenseAdapter) Delete(ctx context.Context, id string) error {
	if _, err := a.client.Client().Collection(tsclient.SamplesCollection).Document(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete sample from index: %w", err)
	}
	return nil
}

// Search runs a typo-tolerant query over the sample index
func (a *TypesenseAdapter) Search(ctx context.Context, q string, submittedBy string, limit int) ([]repositories.SampleSearchHit, error) {
	result, err := a.client.Client().Collection(tsclient.SamplesCollection).Documents().Search(ctx, searchParams(q, submittedBy, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search samples: %w", err)
	}
	if result.Hits == nil {
		return []repositories.SampleSearchHit{}, nil
	}

	hits := make([]repositories.SampleSearchHit, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		hits = append(hits, hitFromDocument(*hit.Document))
	}
	return hits, nil
}

func sampleDocument(sample *entities.Sample) map[string]interface{} {
	return map[string]interface{}{
		"id":              sample.ID,
		"sample_id":       sample.SampleID,
		"patient_name":    sample.PatientInfo.Name,
		"patient_id":      sample.PatientInfo.PatientID,
		"anatomical_site": sample.AnatomicalSite,
		"specimen_type":   sample.SpecimenType,
		"status":          string(sample.Status),
		"priority":        string(sample.Priority),
		"submitted_by":    sample.SubmittedBy,
		"created_at":      sample.CreatedAt.Unix(),
	}
}

func searchParams(q, submittedBy string, limit int) *api.SearchCollectionParams {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q = strings.TrimSpace(q)
	if q == "" {
		q = "*"
	}
	params := &api.SearchCollectionParams{
		Q:       pointer.String(q),
		QueryBy: pointer.String(queryFields),
		SortBy:  pointer.String("_text_match:desc,created_at:desc"),
		PerPage: pointer.Int(limit),
	}
	if submittedBy != "" {
		params.FilterBy = pointer.String(fmt.Sprintf("submitted_by:=`%s`", strings.ReplaceAll(submittedBy, "`", "")))
	}
	return params
}

func hitFromDocument(doc map[string]interface{}) repositories.SampleSearchHit {
	str := func(key string) string {
		if v, ok := doc[key].(string); ok {
			return v
		}
		return ""
	}
	return repositories.SampleSearchHit{
		ID:             str("id"),
		SampleID:       str("sample_id"),
		PatientName:    str("patient_name"),
		PatientID:      str("patient_id"),
		AnatomicalSite: str("anatomical_site"),
		SpecimenType:   str("specimen_type"),
		Status:         str("status"),
		SubmittedBy:    str("submitted_by"),
	}
}
