package events_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zatekoja/recursiadx/internal/adapters/events"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/redis"
	"github.com/zatekoja/recursiadx/pkg/config"
)

// setupRedis starts a throwaway Redis container. Skipped unless
// TEST_INTEGRATION is set.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := redis.NewClient(ctx, &config.RedisConfig{Host: host, Port: port.Int()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func waitForEvent(t *testing.T, ch <-chan *entities.SampleEvent) *entities.SampleEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed before an event arrived")
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestRedisEventBus_FanoutIntegration(t *testing.T) {
	// Arrange
	bus := events.NewRedisEventBus(setupRedis(t))
	defer bus.Close()

	sample := &entities.Sample{ID: "s-redis-1", SampleID: "SP-2024-0042", Status: entities.SampleStatusReading}
	channel := providers.GetSampleChannel(sample.ID)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel1()
	defer cancel2()

	sub1, err := bus.Subscribe(ctx1, channel)
	require.NoError(t, err)
	sub2, err := bus.Subscribe(ctx2, channel)
	require.NoError(t, err)
	// the Redis SUBSCRIBE is acknowledged asynchronously
	time.Sleep(100 * time.Millisecond)

	event := entities.NewSampleEvent(sample, entities.SampleEventStatusChanged, "path-1", "Reading")

	// Act
	require.NoError(t, bus.Publish(context.Background(), channel, event))

	// Assert
	received1 := waitForEvent(t, sub1)
	received2 := waitForEvent(t, sub2)
	assert.Equal(t, event.ID, received1.ID)
	assert.Equal(t, event.ID, received2.ID)
	assert.Equal(t, entities.SampleStatusReading, received1.Status)
	assert.Equal(t, "SP-2024-0042", received2.SampleID)

	// a cancelled subscriber's channel is closed
	cancel1()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub1:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
