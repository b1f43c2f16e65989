package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

func TestSampleDocument(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	sample := &entities.Sample{
		ID:             "s-1",
		SampleID:       "SP-2024-0001",
		PatientInfo:    entities.PatientInfo{PatientID: "P-9", Name: "Jane Roe"},
		AnatomicalSite: "Left breast",
		Status:         entities.SampleStatusReading,
		Priority:       entities.PriorityUrgent,
		SubmittedBy:    "tech-1",
		CreatedAt:      created,
	}

	doc := sampleDocument(sample)

	assert.Equal(t, "SP-2024-0001", doc["sample_id"])
	assert.Equal(t, "Reading", doc["status"])
	assert.Equal(t, "Urgent", doc["priority"])
	assert.Equal(t, created.Unix(), doc["created_at"])
}

func TestSearchParams(t *testing.T) {
	t.Run("scoped to submitter", func(t *testing.T) {
		p := searchParams(" roe ", "tech-1", 5)

		assert.Equal(t, "roe", *p.Q)
		assert.Equal(t, queryFields, *p.QueryBy)
		require.NotNil(t, p.FilterBy)
		assert.Equal(t, "submitted_by:=`tech-1`", *p.FilterBy)
		assert.Equal(t, 5, *p.PerPage)
	})

	t.Run("empty query and bad limit", func(t *testing.T) {
		p := searchParams("", "", 500)

		assert.Equal(t, "*", *p.Q)
		assert.Nil(t, p.FilterBy)
		assert.Equal(t, 10, *p.PerPage)
	})
}

func TestHitFromDocument(t *testing.T) {
	hit := hitFromDocument(map[string]interface{}{
		"id":           "s-1",
		"sample_id":    "SP-2024-0001",
		"patient_name": "Jane Roe",
		"status":       "Received",
		"created_at":   float64(1714550400),
	})

	assert.Equal(t, "SP-2024-0001", hit.SampleID)
	assert.Equal(t, "Jane Roe", hit.PatientName)
	assert.Empty(t, hit.AnatomicalSite)
}
