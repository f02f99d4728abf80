package runs

import (
	"context"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"guildcloner/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) InsertRun(ctx context.Context, record *models.RunRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) GetRunByID(ctx context.Context, id string) (mo.Option[*models.RunRecord], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.RunRecord]), args.Error(1)
}

func (m *MockRepository) ListRecentRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RunRecord), args.Error(1)
}
