package discord

import (
	"context"

	"github.com/stretchr/testify/mock"

	"guildcloner/clients"
	"guildcloner/models"
)

// MockDiscordClient implements the clients.DiscordClient interface for testing
type MockDiscordClient struct {
	mock.Mock
}

var _ clients.DiscordClient = (*MockDiscordClient)(nil)

func (m *MockDiscordClient) GetCurrentUser(ctx context.Context) (*models.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockDiscordClient) ListCurrentUserGuilds(ctx context.Context) ([]models.GuildDescriptor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.GuildDescriptor), args.Error(1)
}

func (m *MockDiscordClient) GetGuild(ctx context.Context, guildID string) (*models.GuildDescriptor, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuildDescriptor), args.Error(1)
}

func (m *MockDiscordClient) CreateGuild(ctx context.Context, name string) (*models.GuildDescriptor, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuildDescriptor), args.Error(1)
}

func (m *MockDiscordClient) ModifyGuild(ctx context.Context, guildID string, update models.GuildUpdate) error {
	args := m.Called(ctx, guildID, update)
	return args.Error(0)
}

func (m *MockDiscordClient) FetchGuildIcon(ctx context.Context, guildID, iconHash string) ([]byte, string, error) {
	args := m.Called(ctx, guildID, iconHash)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockDiscordClient) ListRoles(ctx context.Context, guildID string) ([]models.RoleSpec, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleSpec), args.Error(1)
}

func (m *MockDiscordClient) CreateRole(ctx context.Context, guildID string, role models.RoleSpec) (string, error) {
	args := m.Called(ctx, guildID, role)
	return args.String(0), args.Error(1)
}

func (m *MockDiscordClient) ListChannels(ctx context.Context, guildID string) (*models.ChannelListing, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChannelListing), args.Error(1)
}

func (m *MockDiscordClient) CreateCategory(ctx context.Context, guildID string, category models.CategorySpec) (string, error) {
	args := m.Called(ctx, guildID, category)
	return args.String(0), args.Error(1)
}

func (m *MockDiscordClient) CreateChannel(
	ctx context.Context,
	guildID string,
	channel models.ChannelSpec,
	parentID string,
) (string, error) {
	args := m.Called(ctx, guildID, channel, parentID)
	return args.String(0), args.Error(1)
}

func (m *MockDiscordClient) SetChannelPermission(
	ctx context.Context,
	channelID, targetID string,
	overwrite models.OverwriteSpec,
) error {
	args := m.Called(ctx, channelID, targetID, overwrite)
	return args.Error(0)
}

func (m *MockDiscordClient) ListMessages(
	ctx context.Context,
	channelID, before string,
	limit int,
) ([]models.MessageRecord, error) {
	args := m.Called(ctx, channelID, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MessageRecord), args.Error(1)
}

func (m *MockDiscordClient) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	args := m.Called(ctx, channelID, content)
	return args.String(0), args.Error(1)
}

func (m *MockDiscordClient) Close() {
	m.Called()
}
