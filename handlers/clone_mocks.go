package handlers

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"guildcloner/models"
	"guildcloner/usecases/clone"
)

type MockCloneService struct {
	mock.Mock
}

func (m *MockCloneService) Verify(ctx context.Context, credential string) (*models.VerifyResult, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VerifyResult), args.Error(1)
}

func (m *MockCloneService) CreateGuild(ctx context.Context, credential, name string) (*models.GuildDescriptor, error) {
	args := m.Called(ctx, credential, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuildDescriptor), args.Error(1)
}

func (m *MockCloneService) Start(req models.RunRequest, sink clone.Sink) (string, error) {
	args := m.Called(req, sink)
	return args.String(0), args.Error(1)
}

func (m *MockCloneService) Cancel() bool {
	return m.Called().Bool(0)
}

func (m *MockCloneService) Status() (models.RunStatus, bool) {
	args := m.Called()
	return args.Get(0).(models.RunStatus), args.Bool(1)
}

type MockRunHistory struct {
	mock.Mock
}

func (m *MockRunHistory) GetRun(ctx context.Context, id string) (mo.Option[*models.RunRecord], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.RunRecord]), args.Error(1)
}

func (m *MockRunHistory) ListRecent(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RunRecord), args.Error(1)
}
