package handlers_test

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/recursiadx/internal/api/middleware"
	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
)

var (
	technician  = entities.Actor{UserID: "tech-1", Name: "Tess Tech", Role: entities.RoleLabTechnician}
	pathologist = entities.Actor{UserID: "path-1", Name: "Pat Path", Role: entities.RolePathologist}
)

func withActor(req *http.Request, actor entities.Actor) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

type MockAuthUseCases struct {
	mock.Mock
}

func (m *MockAuthUseCases) Register(ctx context.Context, input services.RegisterInput) (*services.AuthResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResult), args.Error(1)
}

func (m *MockAuthUseCases) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResult), args.Error(1)
}

func (m *MockAuthUseCases) Refresh(ctx context.Context, refreshToken string) (*services.AuthResult, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResult), args.Error(1)
}

func (m *MockAuthUseCases) Logout(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *MockAuthUseCases) Me(ctx context.Context, actor entities.Actor) (*entities.User, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockAuthUseCases) UpdateProfile(ctx context.Context, actor entities.Actor, input services.ProfileInput) (*entities.User, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockAuthUseCases) ChangePassword(ctx context.Context, actor entities.Actor, current, next string) (*services.AuthResult, error) {
	args := m.Called(ctx, actor, current, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResult), args.Error(1)
}

func (m *MockAuthUseCases) Deactivate(ctx context.Context, actor entities.Actor, accessToken string) error {
	return m.Called(ctx, actor, accessToken).Error(0)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) bool {
	return m.Called(ctx, key).Bool(0)
}

func (m *MockLimiter) RetryAfter() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

type MockSampleUseCases struct {
	mock.Mock
}

func (m *MockSampleUseCases) sample(args mock.Arguments) (*entities.Sample, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Sample), args.Error(1)
}

func (m *MockSampleUseCases) Create(ctx context.Context, actor entities.Actor, input services.SampleInput, images []entities.SampleImage) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, input, images))
}

func (m *MockSampleUseCases) Get(ctx context.Context, actor entities.Actor, id string) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, id))
}

func (m *MockSampleUseCases) List(ctx context.Context, actor entities.Actor, query services.SampleListQuery) (*services.SampleList, error) {
	args := m.Called(ctx, actor, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SampleList), args.Error(1)
}

func (m *MockSampleUseCases) Update(ctx context.Context, actor entities.Actor, id string, patch services.SamplePatch) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, id, patch))
}

func (m *MockSampleUseCases) Delete(ctx context.Context, actor entities.Actor, id string) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, id))
}

func (m *MockSampleUseCases) Assign(ctx context.Context, actor entities.Actor, id, assigneeID string) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, id, assigneeID))
}

func (m *MockSampleUseCases) UpdateStatus(ctx context.Context, actor entities.Actor, id string, status entities.SampleStatus, notes string) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, id, status, notes))
}

func (m *MockSampleUseCases) AddImage(ctx context.Context, actor entities.Actor, id string, file services.UploadFile) (*entities.Sample, error) {
	return m.sample(m.Called(ctx, actor, id, file))
}

func (m *MockSampleUseCases) Stats(ctx context.Context, actor entities.Actor, from, to *time.Time) (*repositories.SampleStats, error) {
	args := m.Called(ctx, actor, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.SampleStats), args.Error(1)
}

func (m *MockSampleUseCases) QuickSearch(ctx context.Context, actor entities.Actor, q string) ([]repositories.SampleSearchHit, error) {
	args := m.Called(ctx, actor, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.SampleSearchHit), args.Error(1)
}

type MockUploadUseCases struct {
	mock.Mock
}

func (m *MockUploadUseCases) UploadWithAnalysis(ctx context.Context, actor entities.Actor, input services.SampleInput, files []services.UploadFile) (*entities.Sample, error) {
	args := m.Called(ctx, actor, input, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Sample), args.Error(1)
}

type MockReportUseCases struct {
	mock.Mock
}

func (m *MockReportUseCases) report(args mock.Arguments) (*entities.Report, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Report), args.Error(1)
}

func (m *MockReportUseCases) Generate(ctx context.Context, actor entities.Actor, sampleRef string, input services.GenerateReportInput) (*entities.Report, error) {
	return m.report(m.Called(ctx, actor, sampleRef, input))
}

func (m *MockReportUseCases) List(ctx context.Context, query services.ReportListQuery) (*services.ReportList, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReportList), args.Error(1)
}

func (m *MockReportUseCases) Get(ctx context.Context, id string) (*entities.Report, error) {
	return m.report(m.Called(ctx, id))
}

func (m *MockReportUseCases) UpdateStatus(ctx context.Context, actor entities.Actor, id string, status entities.ReportStatus, notes string) (*entities.Report, error) {
	return m.report(m.Called(ctx, actor, id, status, notes))
}

func (m *MockReportUseCases) Download(ctx context.Context, id, format string) (*services.ReportDownload, error) {
	args := m.Called(ctx, id, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReportDownload), args.Error(1)
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
