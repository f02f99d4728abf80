package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/bwmarrin/discordgo"

	"guildcloner/models"
)

// maxVoiceBitrate is the highest bitrate a guild without boosts accepts.
const maxVoiceBitrate = 96000

func (c *RateLimitedClient) GetCurrentUser(ctx context.Context) (*models.Account, error) {
	var user discordgo.User
	if err := c.requestJSON(ctx, http.MethodGet, apiPath(discordgo.EndpointUser(currentUser)), nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &models.Account{ID: user.ID, Username: user.Username, GlobalName: user.GlobalName}, nil
}

func (c *RateLimitedClient) ListCurrentUserGuilds(ctx context.Context) ([]models.GuildDescriptor, error) {
	var guilds []*discordgo.UserGuild
	if err := c.requestJSON(ctx, http.MethodGet, apiPath(discordgo.EndpointUserGuilds(currentUser)), nil, &guilds); err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	result := make([]models.GuildDescriptor, 0, len(guilds))
	for _, g := range guilds {
		result = append(result, models.GuildDescriptor{ID: g.ID, Name: g.Name, Icon: g.Icon})
	}
	return result, nil
}

func (c *RateLimitedClient) GetGuild(ctx context.Context, guildID string) (*models.GuildDescriptor, error) {
	var guild discordgo.Guild
	if err := c.requestJSON(ctx, http.MethodGet, apiPath(discordgo.EndpointGuild(guildID)), nil, &guild); err != nil {
		return nil, fmt.Errorf("failed to fetch guild %s: %w", guildID, err)
	}
	return &models.GuildDescriptor{ID: guild.ID, Name: guild.Name, Icon: guild.Icon}, nil
}

func (c *RateLimitedClient) CreateGuild(ctx context.Context, name string) (*models.GuildDescriptor, error) {
	var guild discordgo.Guild
	params := discordgo.GuildParams{Name: name}
	if err := c.requestJSON(ctx, http.MethodPost, apiPath(discordgo.EndpointGuildCreate), params, &guild); err != nil {
		return nil, fmt.Errorf("failed to create guild: %w", err)
	}
	return &models.GuildDescriptor{ID: guild.ID, Name: guild.Name, Icon: guild.Icon}, nil
}

func (c *RateLimitedClient) ModifyGuild(ctx context.Context, guildID string, update models.GuildUpdate) error {
	params := discordgo.GuildParams{Name: update.Name, Icon: update.Icon}
	if err := c.requestJSON(ctx, http.MethodPatch, apiPath(discordgo.EndpointGuild(guildID)), params, nil); err != nil {
		return fmt.Errorf("failed to modify guild %s: %w", guildID, err)
	}
	return nil
}

// FetchGuildIcon downloads the icon PNG from the CDN. It returns the bytes and content type.
func (c *RateLimitedClient) FetchGuildIcon(ctx context.Context, guildID, iconHash string) ([]byte, string, error) {
	if c.cdnBaseURL == "" {
		return nil, "", fmt.Errorf("cdn base url is not configured")
	}
	path := cdnPath(discordgo.EndpointGuildIcon(guildID, iconHash))
	data, header, err := c.do(ctx, http.MethodGet, c.cdnBaseURL+"/"+path, path, nil, false)
	if err != nil {
		c.reportError(err)
		return nil, "", fmt.Errorf("failed to fetch icon for guild %s: %w", guildID, err)
	}

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (c *RateLimitedClient) ListRoles(ctx context.Context, guildID string) ([]models.RoleSpec, error) {
	var roles []*discordgo.Role
	if err := c.requestJSON(ctx, http.MethodGet, apiPath(discordgo.EndpointGuildRoles(guildID)), nil, &roles); err != nil {
		return nil, fmt.Errorf("failed to list roles for guild %s: %w", guildID, err)
	}

	result := make([]models.RoleSpec, 0, len(roles))
	for _, r := range roles {
		result = append(result, models.RoleSpec{
			SourceID:    r.ID,
			Name:        r.Name,
			Color:       r.Color,
			Permissions: r.Permissions,
			Position:    r.Position,
			Hoist:       r.Hoist,
			Mentionable: r.Mentionable,
			Managed:     r.Managed,
		})
	}
	return result, nil
}

func (c *RateLimitedClient) CreateRole(ctx context.Context, guildID string, role models.RoleSpec) (string, error) {
	params := discordgo.RoleParams{
		Name:        role.Name,
		Color:       &role.Color,
		Hoist:       &role.Hoist,
		Permissions: &role.Permissions,
		Mentionable: &role.Mentionable,
	}

	var created discordgo.Role
	if err := c.requestJSON(ctx, http.MethodPost, apiPath(discordgo.EndpointGuildRoles(guildID)), params, &created); err != nil {
		return "", fmt.Errorf("failed to create role %q: %w", role.Name, err)
	}
	return created.ID, nil
}

func (c *RateLimitedClient) ListChannels(ctx context.Context, guildID string) (*models.ChannelListing, error) {
	var channels []*discordgo.Channel
	if err := c.requestJSON(ctx, http.MethodGet, apiPath(discordgo.EndpointGuildChannels(guildID)), nil, &channels); err != nil {
		return nil, fmt.Errorf("failed to list channels for guild %s: %w", guildID, err)
	}

	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].Position < channels[j].Position
	})

	listing := &models.ChannelListing{}
	for _, ch := range channels {
		overwrites := toOverwriteSpecs(ch.PermissionOverwrites)
		switch ch.Type {
		case discordgo.ChannelTypeGuildCategory:
			listing.Categories = append(listing.Categories, models.CategorySpec{
				SourceID:             ch.ID,
				Name:                 ch.Name,
				Position:             ch.Position,
				PermissionOverwrites: overwrites,
			})
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
			listing.TextChannels = append(listing.TextChannels, models.ChannelSpec{
				SourceID:               ch.ID,
				Kind:                   models.ChannelKindText,
				Name:                   ch.Name,
				Position:               ch.Position,
				ParentCategorySourceID: ch.ParentID,
				Topic:                  ch.Topic,
				NSFW:                   ch.NSFW,
				RateLimitPerUser:       ch.RateLimitPerUser,
				PermissionOverwrites:   overwrites,
			})
		case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
			listing.VoiceChannels = append(listing.VoiceChannels, models.ChannelSpec{
				SourceID:               ch.ID,
				Kind:                   models.ChannelKindVoice,
				Name:                   ch.Name,
				Position:               ch.Position,
				ParentCategorySourceID: ch.ParentID,
				Bitrate:                ch.Bitrate,
				UserLimit:              ch.UserLimit,
				PermissionOverwrites:   overwrites,
			})
		}
	}
	return listing, nil
}

func (c *RateLimitedClient) CreateCategory(ctx context.Context, guildID string, category models.CategorySpec) (string, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     category.Name,
		Type:     discordgo.ChannelTypeGuildCategory,
		Position: category.Position,
	}
	return c.createChannel(ctx, guildID, data)
}

// CreateChannel creates a text or voice channel. An empty parentID creates it at the top level.
func (c *RateLimitedClient) CreateChannel(
	ctx context.Context,
	guildID string,
	channel models.ChannelSpec,
	parentID string,
) (string, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     channel.Name,
		Position: channel.Position,
		ParentID: parentID,
	}

	switch channel.Kind {
	case models.ChannelKindText:
		data.Type = discordgo.ChannelTypeGuildText
		data.Topic = channel.Topic
		data.NSFW = channel.NSFW
		data.RateLimitPerUser = channel.RateLimitPerUser
	case models.ChannelKindVoice:
		data.Type = discordgo.ChannelTypeGuildVoice
		data.Bitrate = min(channel.Bitrate, maxVoiceBitrate)
		data.UserLimit = channel.UserLimit
	default:
		return "", fmt.Errorf("unsupported channel kind %q", channel.Kind)
	}

	return c.createChannel(ctx, guildID, data)
}

func (c *RateLimitedClient) createChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (string, error) {
	var created discordgo.Channel
	if err := c.requestJSON(ctx, http.MethodPost, apiPath(discordgo.EndpointGuildChannels(guildID)), data, &created); err != nil {
		return "", fmt.Errorf("failed to create channel %q: %w", data.Name, err)
	}
	return created.ID, nil
}

// SetChannelPermission writes one overwrite. targetID is the destination role or member id.
func (c *RateLimitedClient) SetChannelPermission(
	ctx context.Context,
	channelID, targetID string,
	overwrite models.OverwriteSpec,
) error {
	body := discordgo.PermissionOverwrite{
		ID:    targetID,
		Type:  discordgo.PermissionOverwriteTypeRole,
		Allow: overwrite.Allow,
		Deny:  overwrite.Deny,
	}
	if overwrite.TargetKind == models.OverwriteTargetMember {
		body.Type = discordgo.PermissionOverwriteTypeMember
	}

	path := apiPath(discordgo.EndpointChannelPermission(channelID, targetID))
	if err := c.requestJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("failed to set permission overwrite on channel %s: %w", channelID, err)
	}
	return nil
}

func (c *RateLimitedClient) requestJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := c.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		err = fmt.Errorf("failed to decode response for %s %s: %w", method, path, err)
		c.reportError(err)
		return err
	}
	return nil
}

func toOverwriteSpecs(overwrites []*discordgo.PermissionOverwrite) []models.OverwriteSpec {
	if len(overwrites) == 0 {
		return nil
	}
	result := make([]models.OverwriteSpec, 0, len(overwrites))
	for _, o := range overwrites {
		kind := models.OverwriteTargetRole
		if o.Type == discordgo.PermissionOverwriteTypeMember {
			kind = models.OverwriteTargetMember
		}
		result = append(result, models.OverwriteSpec{
			TargetSourceID: o.ID,
			TargetKind:     kind,
			Allow:          o.Allow,
			Deny:           o.Deny,
		})
	}
	return result
}
