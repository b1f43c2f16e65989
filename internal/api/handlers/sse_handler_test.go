package handlers_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/recursiadx/internal/adapters/events"
	"github.com/zatekoja/recursiadx/internal/api/handlers"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// readEvent returns the next "event:" name and its data line
func readEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestSSEHandler_StreamSampleUpdates(t *testing.T) {
	// Arrange
	bus := events.NewMemoryEventBus()
	defer bus.Close()

	samples := new(MockSampleUseCases)
	sample := &entities.Sample{ID: "s-1", SampleID: "SP-2024-0001", Status: entities.SampleStatusStaining}
	samples.On("Get", mock.Anything, technician, "s-1").Return(sample, nil)

	h := handlers.NewSSEHandler(bus, samples).WithHeartbeat(time.Hour)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stream/samples/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.StreamSampleUpdates(w, withActor(r, technician))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/stream/samples/s-1", nil)
	require.NoError(t, err)

	// Act
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	name, data := readEvent(t, reader)
	assert.Equal(t, "connected", name)
	assert.Contains(t, data, `"sampleId":"SP-2024-0001"`)

	event := entities.NewSampleEvent(sample, entities.SampleEventStatusChanged, "tech-1", "moved on")
	require.NoError(t, bus.Publish(ctx, providers.GetSampleChannel("s-1"), event))

	name, data = readEvent(t, reader)
	assert.Equal(t, string(entities.SampleEventStatusChanged), name)
	assert.Contains(t, data, `"detail":"moved on"`)

	require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return h.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	bus := events.NewMemoryEventBus()
	defer bus.Close()

	samples := new(MockSampleUseCases)
	samples.On("Get", mock.Anything, technician, "s-1").
		Return(&entities.Sample{ID: "s-1", SampleID: "SP-2024-0001"}, nil)

	h := handlers.NewSSEHandler(bus, samples).WithHeartbeat(20 * time.Millisecond)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.SetPathValue("id", "s-1")
		h.StreamSampleUpdates(w, withActor(r, technician))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)

	name, _ := readEvent(t, reader)
	assert.Equal(t, "connected", name)
	name, _ = readEvent(t, reader)
	assert.Equal(t, "heartbeat", name)
}

func TestSSEHandler_Rejections(t *testing.T) {
	t.Run("no actor", func(t *testing.T) {
		h := handlers.NewSSEHandler(events.NewMemoryEventBus(), new(MockSampleUseCases))
		rec := httptest.NewRecorder()

		h.StreamSampleUpdates(rec, httptest.NewRequest(http.MethodGet, "/api/stream/samples/s-1", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("sample hidden from actor", func(t *testing.T) {
		samples := new(MockSampleUseCases)
		samples.On("Get", mock.Anything, technician, "s-2").Return(nil, apperrors.NewNotFoundError("sample not found"))
		h := handlers.NewSSEHandler(events.NewMemoryEventBus(), samples)

		req := withActor(httptest.NewRequest(http.MethodGet, "/api/stream/samples/s-2", nil), technician)
		req.SetPathValue("id", "s-2")
		rec := httptest.NewRecorder()

		h.StreamSampleUpdates(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Zero(t, h.GetClientCount())
	})
}
