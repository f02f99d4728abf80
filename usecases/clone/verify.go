package clone

import (
	"context"
	"fmt"
	"strings"

	"guildcloner/core"
	"guildcloner/models"
	"guildcloner/utils"
)

// Verify checks a credential and lists the guilds it can see. It does not touch
// the active run.
func (e *Engine) Verify(ctx context.Context, credential string) (*models.VerifyResult, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, core.ErrEmptyCredential
	}

	client, err := e.clientFactory(credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}
	defer client.Close()

	e.logger.Info().Msg("Starting to verify credential")
	account, err := client.GetCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}
	guilds, err := client.ListCurrentUserGuilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list available guilds: %w", err)
	}

	e.logger.Info().Str("user_id", account.ID).Int("guilds", len(guilds)).
		Msg("Completed successfully - verified credential")
	return &models.VerifyResult{
		UserID:      account.ID,
		DisplayName: account.DisplayName(),
		Guilds:      guilds,
	}, nil
}

// CreateGuild creates an empty destination guild owned by the credential's account.
// Bot credentials cannot create guilds and are rejected before any call is made.
func (e *Engine) CreateGuild(ctx context.Context, credential, name string) (*models.GuildDescriptor, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, core.ErrEmptyCredential
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: guild name cannot be empty", core.ErrInvalidOptions)
	}
	if utils.IsBotCredential(credential) {
		return nil, &core.PermissionError{
			Method:  "POST",
			Path:    "guilds",
			Message: "bot accounts cannot create guilds",
		}
	}

	client, err := e.clientFactory(credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}
	defer client.Close()

	guild, err := client.CreateGuild(ctx, name)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("guild_id", guild.ID).Msg("Completed successfully - created destination guild")
	return guild, nil
}
