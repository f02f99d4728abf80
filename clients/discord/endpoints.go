package discord

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const currentUser = "@me"

// apiPath turns a discordgo endpoint into a path relative to the configured API base,
// so a different base URL or API version can be targeted.
func apiPath(endpoint string) string {
	return strings.TrimPrefix(endpoint, discordgo.EndpointAPI)
}

func cdnPath(endpoint string) string {
	return strings.TrimPrefix(endpoint, discordgo.EndpointCDN)
}

func messagesPath(channelID, before string, limit int) string {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if before != "" {
		query.Set("before", before)
	}
	return apiPath(discordgo.EndpointChannelMessages(channelID)) + "?" + query.Encode()
}
