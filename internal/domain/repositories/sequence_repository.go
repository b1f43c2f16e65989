package repositories

import "context"

// Sequence names
const (
	SequenceSample = "sample"
	SequenceReport = "report"
)

// SequenceRepository hands out gap-tolerant, strictly increasing counters
// per name and year
type SequenceRepository interface {
	Next(ctx context.Context, name string, year int) (int64, error)
}
