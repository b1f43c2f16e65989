package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/recursiadx/pkg/config"
	"github.com/zatekoja/recursiadx/pkg/retry"
)

const (
	SamplesCollection = "samples"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client with exponential backoff retry
func NewClient(cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = 3
	err := retry.DoWithLog(
		context.Background(),
		retryConfig,
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := client.Health(ctx, 2*time.Second)
			return err
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("Typesense connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("Connected to Typesense")
	return &Client{client: client}, nil
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// SamplesSchema is the collection layout for the sample quick-search index
func SamplesSchema() *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: SamplesCollection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "sample_id", Type: "string"},
			{Name: "patient_name", Type: "string"},
			{Name: "patient_id", Type: "string"},
			{Name: "anatomical_site", Type: "string", Optional: pointer.True()},
			{Name: "specimen_type", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "status", Type: "string", Facet: pointer.True()},
			{Name: "priority", Type: "string", Facet: pointer.True()},
			{Name: "submitted_by", Type: "string", Facet: pointer.True()},
			{Name: "created_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("created_at"),
	}
}

// InitSchema ensures the samples collection exists
func (c *Client) InitSchema(ctx context.Context) error {
	collections, err := c.client.Collections().Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve collections: %w", err)
	}

	for _, col := range collections {
		if col.Name == SamplesCollection {
			return nil
		}
	}

	if _, err := c.client.Collections().Create(ctx, SamplesSchema()); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	log.Info().Str("collection", SamplesCollection).Msg("Created Typesense collection")
	return nil
}

// ResetSchema drops and recreates the samples collection
func (c *Client) ResetSchema(ctx context.Context) error {
	if _, err := c.client.Collection(SamplesCollection).Delete(ctx); err != nil {
		log.Warn().Err(err).Str("collection", SamplesCollection).Msg("Failed to drop collection")
	}
	return c.InitSchema(ctx)
}
