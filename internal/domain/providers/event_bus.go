package providers

import (
	"context"

	"github.com/zatekoja/recursiadx/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.SampleEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.SampleEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelSampleUpdates carries every sample event
	EventChannelSampleUpdates = "samples:updates"

	// EventChannelSamplePrefix is the prefix for per-sample channels
	EventChannelSamplePrefix = "sample:"
)

// GetSampleChannel returns the channel name for a specific sample
func GetSampleChannel(sampleRef string) string {
	return EventChannelSamplePrefix + sampleRef
}
