package services_test

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
)

// Mocks

type MockSampleRepository struct {
	mock.Mock
}

func (m *MockSampleRepository) Create(ctx context.Context, sample *entities.Sample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockSampleRepository) GetByID(ctx context.Context, id string) (*entities.Sample, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Sample), args.Error(1)
}

func (m *MockSampleRepository) Update(ctx context.Context, sample *entities.Sample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockSampleRepository) List(ctx context.Context, filter repositories.SampleFilter) ([]*entities.Sample, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*entities.Sample), args.Int(1), args.Error(2)
}

func (m *MockSampleRepository) Stats(ctx context.Context, from, to *time.Time) (*repositories.SampleStats, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.SampleStats), args.Error(1)
}

type MockSampleSearchRepository struct {
	mock.Mock
}

func (m *MockSampleSearchRepository) Index(ctx context.Context, sample *entities.Sample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockSampleSearchRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSampleSearchRepository) Search(ctx context.Context, q, submittedBy string, limit int) ([]repositories.SampleSearchHit, error) {
	args := m.Called(ctx, q, submittedBy, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.SampleSearchHit), args.Error(1)
}

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Create(ctx context.Context, report *entities.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) GetByID(ctx context.Context, id string) (*entities.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Report), args.Error(1)
}

func (m *MockReportRepository) Update(ctx context.Context, report *entities.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) List(ctx context.Context, filter repositories.ReportFilter) ([]*entities.Report, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*entities.Report), args.Int(1), args.Error(2)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *entities.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *entities.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) Next(ctx context.Context, name string, year int) (int64, error) {
	args := m.Called(ctx, name, year)
	return args.Get(0).(int64), args.Error(1)
}

type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.SampleEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.SampleEvent, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan *entities.SampleEvent), args.Error(1)
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	return nil
}

func (m *MockEventBus) Close() error {
	return nil
}

type MockMLGateway struct {
	mock.Mock
}

func (m *MockMLGateway) Predict(ctx context.Context, image providers.ImageInput) (*entities.MLAnalysis, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.MLAnalysis), args.Error(1)
}

func (m *MockMLGateway) BatchPredict(ctx context.Context, images []providers.ImageInput) ([]*entities.MLAnalysis, error) {
	args := m.Called(ctx, images)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.MLAnalysis), args.Error(1)
}

func (m *MockMLGateway) Health(ctx context.Context) (*providers.MLHealth, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.MLHealth), args.Error(1)
}

func (m *MockMLGateway) ModelInfo(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

type MockHeatmapRenderer struct {
	mock.Mock
}

func (m *MockHeatmapRenderer) Render(ctx context.Context, image *entities.SampleImage) (*entities.Heatmap, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Heatmap), args.Error(1)
}

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Save(ctx context.Context, originalName string, content io.Reader) (*providers.StoredFile, error) {
	args := m.Called(ctx, originalName, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.StoredFile), args.Error(1)
}

func (m *MockImageStore) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockImageStore) OpenHeatmap(ctx context.Context, filename string) (io.ReadCloser, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockImageStore) Remove(ctx context.Context, filename string) error {
	return m.Called(ctx, filename).Error(0)
}

func (m *MockImageStore) RemoveHeatmap(ctx context.Context, filename string) error {
	return m.Called(ctx, filename).Error(0)
}
