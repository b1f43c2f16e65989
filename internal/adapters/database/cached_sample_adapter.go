package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"golang.org/x/sync/singleflight"
)

// CachedSampleAdapter wraps a SampleRepository with read-through caching of
// single samples. Listings and stats always hit the database.
type CachedSampleAdapter struct {
	adapter repositories.SampleRepository
	cache   providers.CacheProvider
	ttl     int
	group   singleflight.Group
}

// NewCachedSampleAdapter creates a new cached sample adapter
func NewCachedSampleAdapter(adapter repositories.SampleRepository, cache providers.CacheProvider, ttlSeconds int) repositories.SampleRepository {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &CachedSampleAdapter{
		adapter: adapter,
		cache:   cache,
		ttl:     ttlSeconds,
	}
}

// writeFenceSeconds must outlive the gap between a database read and the
// cache fill that follows it.
const writeFenceSeconds = 10

func sampleCacheKey(id string) string {
	return fmt.Sprintf("sample:%s", id)
}

func sampleFenceKey(id string) string {
	return fmt.Sprintf("sample-fence:%s", id)
}

// Create creates a new sample
func (a *CachedSampleAdapter) Create(ctx context.Context, sample *entities.Sample) error {
	return a.adapter.Create(ctx, sample)
}

// GetByID retrieves a sample by id with caching
func (a *CachedSampleAdapter) GetByID(ctx context.Context, id string) (*entities.Sample, error) {
	cacheKey := sampleCacheKey(id)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var sample entities.Sample
		if err := json.Unmarshal(cached, &sample); err == nil {
			return &sample, nil
		}
		log.Warn().Str("sample", id).Msg("Discarding undecodable cached sample")
	}

	v, err, _ := a.group.Do(cacheKey, func() (interface{}, error) {
		return a.adapter.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	sample := v.(*entities.Sample)

	data, err := json.Marshal(sample)
	if err == nil {
		a.fill(ctx, id, data)
	}

	// callers mutate what they get back; never hand out the shared pointer
	var copied entities.Sample
	if err := json.Unmarshal(data, &copied); err != nil {
		return sample, nil
	}
	return &copied, nil
}

// Update writes through and drops cached copies. A conflict also drops
// them so the caller's re-read sees the winning write.
func (a *CachedSampleAdapter) Update(ctx context.Context, sample *entities.Sample) error {
	err := a.adapter.Update(ctx, sample)
	a.invalidate(ctx, sample)
	return err
}

// fill caches a copy read from the database. A write fenced after that
// read either deletes the copy itself or is seen by the second fence check.
func (a *CachedSampleAdapter) fill(ctx context.Context, id string, data []byte) {
	cacheKey, fenceKey := sampleCacheKey(id), sampleFenceKey(id)
	if fenced, err := a.cache.Exists(ctx, fenceKey); err != nil || fenced {
		return
	}
	if err := a.cache.Set(ctx, cacheKey, data, a.ttl); err != nil {
		log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache sample")
		return
	}
	if fenced, err := a.cache.Exists(ctx, fenceKey); err != nil || fenced {
		if err := a.cache.Delete(ctx, cacheKey); err != nil {
			log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to drop fenced sample")
		}
	}
}

func (a *CachedSampleAdapter) invalidate(ctx context.Context, sample *entities.Sample) {
	for _, key := range []string{sample.ID, sample.SampleID} {
		if key == "" {
			continue
		}
		if err := a.cache.Set(ctx, sampleFenceKey(key), []byte("1"), writeFenceSeconds); err != nil {
			log.Warn().Err(err).Str("sample", key).Msg("Failed to fence cached sample")
		}
		if err := a.cache.Delete(ctx, sampleCacheKey(key)); err != nil {
			log.Warn().Err(err).Str("sample", key).Msg("Failed to invalidate cached sample")
		}
	}
}

// List passes through to the database
func (a *CachedSampleAdapter) List(ctx context.Context, filter repositories.SampleFilter) ([]*entities.Sample, int, error) {
	return a.adapter.List(ctx, filter)
}

// Stats passes through to the database
func (a *CachedSampleAdapter) Stats(ctx context.Context, from, to *time.Time) (*repositories.SampleStats, error) {
	return a.adapter.Stats(ctx, from, to)
}
