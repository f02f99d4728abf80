package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"guildcloner/models"
)

// MaxMessagesPerPage is the largest page the messages endpoint returns.
const MaxMessagesPerPage = 100

// ListMessages returns up to limit messages older than before (newest first, as the API orders them).
// An empty before starts from the latest message.
func (c *RateLimitedClient) ListMessages(
	ctx context.Context,
	channelID, before string,
	limit int,
) ([]models.MessageRecord, error) {
	limit = max(1, min(limit, MaxMessagesPerPage))

	var messages []*discordgo.Message
	if err := c.requestJSON(ctx, http.MethodGet, messagesPath(channelID, before, limit), nil, &messages); err != nil {
		return nil, fmt.Errorf("failed to list messages for channel %s: %w", channelID, err)
	}

	result := make([]models.MessageRecord, 0, len(messages))
	for _, m := range messages {
		result = append(result, models.MessageRecord{
			ID:                m.ID,
			AuthorDisplayName: authorDisplayName(m),
			Content:           m.Content,
			CreatedAt:         m.Timestamp,
		})
	}
	return result, nil
}

// SendMessage posts plain content with every mention type suppressed.
func (c *RateLimitedClient) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	body := discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}

	var created discordgo.Message
	if err := c.requestJSON(ctx, http.MethodPost, apiPath(discordgo.EndpointChannelMessages(channelID)), body, &created); err != nil {
		return "", fmt.Errorf("failed to send message to channel %s: %w", channelID, err)
	}
	return created.ID, nil
}

func authorDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author != nil {
		return m.Author.DisplayName()
	}
	return "Unknown"
}
