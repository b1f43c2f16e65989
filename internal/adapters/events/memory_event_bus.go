package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
)

// MemoryEventBus is a single-process EventBus used when Redis is disabled
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.SampleEvent]struct{}
	closed      bool
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.SampleEvent]struct{}),
	}
}

// Publish delivers the event to current subscribers without blocking
func (b *MemoryEventBus) Publish(_ context.Context, channel string, event *entities.SampleEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			log.Warn().Str("channel", channel).Str("event", event.ID).Msg("Subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe subscribes to events on a channel until ctx is cancelled
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.SampleEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventChan := make(chan *entities.SampleEvent, subscriberBuffer)
	if b.closed {
		close(eventChan)
		return eventChan, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.SampleEvent]struct{})
	}
	b.subscribers[channel][eventChan] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()
	return eventChan, nil
}

func (b *MemoryEventBus) remove(channel string, eventChan chan *entities.SampleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[channel][eventChan]; !ok {
		return
	}
	delete(b.subscribers[channel], eventChan)
	close(eventChan)
	if len(b.subscribers[channel]) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe drops every subscriber of a channel
func (b *MemoryEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes every subscription
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subscribers := range b.subscribers {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
