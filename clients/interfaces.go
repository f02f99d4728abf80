package clients

import (
	"context"

	"guildcloner/models"
)

// DiscordClient is the REST surface the replication engine consumes.
// Implementations own a connection pool which Close releases.
type DiscordClient interface {
	// Account operations
	GetCurrentUser(ctx context.Context) (*models.Account, error)
	ListCurrentUserGuilds(ctx context.Context) ([]models.GuildDescriptor, error)

	// Guild operations
	GetGuild(ctx context.Context, guildID string) (*models.GuildDescriptor, error)
	CreateGuild(ctx context.Context, name string) (*models.GuildDescriptor, error)
	ModifyGuild(ctx context.Context, guildID string, update models.GuildUpdate) error
	FetchGuildIcon(ctx context.Context, guildID, iconHash string) ([]byte, string, error)

	// Structure operations
	ListRoles(ctx context.Context, guildID string) ([]models.RoleSpec, error)
	CreateRole(ctx context.Context, guildID string, role models.RoleSpec) (string, error)
	ListChannels(ctx context.Context, guildID string) (*models.ChannelListing, error)
	CreateCategory(ctx context.Context, guildID string, category models.CategorySpec) (string, error)
	CreateChannel(ctx context.Context, guildID string, channel models.ChannelSpec, parentID string) (string, error)
	SetChannelPermission(ctx context.Context, channelID, targetID string, overwrite models.OverwriteSpec) error

	// Message operations
	ListMessages(ctx context.Context, channelID, before string, limit int) ([]models.MessageRecord, error)
	SendMessage(ctx context.Context, channelID, content string) (string, error)

	Close()
}

// ClientFactory builds a DiscordClient for one credential. onError is invoked once
// for every call that ultimately fails.
type ClientFactory func(credential string, onError func(error)) (DiscordClient, error)
