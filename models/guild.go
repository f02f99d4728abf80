package models

import "time"

// GuildDescriptor identifies a source or destination community.
type GuildDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type RoleSpec struct {
	SourceID    string `json:"source_id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Permissions int64  `json:"permissions"`
	Position    int    `json:"position"`
	Hoist       bool   `json:"hoist"`
	Mentionable bool   `json:"mentionable"`
	Managed     bool   `json:"managed"`
}

type CategorySpec struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	// Category-level overwrites are re-applied in the overwrite phase like channel ones.
	PermissionOverwrites []OverwriteSpec `json:"permission_overwrites,omitempty"`
}

type ChannelKind string

const (
	ChannelKindText  ChannelKind = "text"
	ChannelKindVoice ChannelKind = "voice"
)

type ChannelSpec struct {
	SourceID               string          `json:"source_id"`
	Kind                   ChannelKind     `json:"kind"`
	Name                   string          `json:"name"`
	Position               int             `json:"position"`
	ParentCategorySourceID string          `json:"parent_category_source_id,omitempty"`
	Topic                  string          `json:"topic,omitempty"`
	NSFW                   bool            `json:"nsfw,omitempty"`
	RateLimitPerUser       int             `json:"rate_limit_per_user,omitempty"`
	Bitrate                int             `json:"bitrate,omitempty"`
	UserLimit              int             `json:"user_limit,omitempty"`
	PermissionOverwrites   []OverwriteSpec `json:"permission_overwrites,omitempty"`
}

type OverwriteTargetKind string

const (
	OverwriteTargetRole   OverwriteTargetKind = "role"
	OverwriteTargetMember OverwriteTargetKind = "member"
)

type OverwriteSpec struct {
	TargetSourceID string              `json:"target_source_id"`
	TargetKind     OverwriteTargetKind `json:"target_kind"`
	Allow          int64               `json:"allow"`
	Deny           int64               `json:"deny"`
}

// MessageRecord is a read-only projection of a fetched message.
type MessageRecord struct {
	ID                string    `json:"id"`
	AuthorDisplayName string    `json:"author_display_name"`
	Content           string    `json:"content"`
	CreatedAt         time.Time `json:"created_at"`
}

// SourceSnapshot is everything read from the source guild before replication starts.
type SourceSnapshot struct {
	Guild         GuildDescriptor `json:"guild"`
	Roles         []RoleSpec      `json:"roles"`
	Categories    []CategorySpec  `json:"categories"`
	TextChannels  []ChannelSpec   `json:"text_channels"`
	VoiceChannels []ChannelSpec   `json:"voice_channels"`
}

// Account is the identity behind a credential.
type Account struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
}

func (a Account) DisplayName() string {
	if a.GlobalName != "" {
		return a.GlobalName
	}
	return a.Username
}

// GuildUpdate carries the cosmetic fields copied onto the destination.
// Icon is a data URI; empty leaves the current icon untouched.
type GuildUpdate struct {
	Name string
	Icon string
}

// ChannelListing is a guild's channel list split by the kinds that get cloned.
// Thread, forum and directory channels are left out.
type ChannelListing struct {
	Categories    []CategorySpec `json:"categories"`
	TextChannels  []ChannelSpec  `json:"text_channels"`
	VoiceChannels []ChannelSpec  `json:"voice_channels"`
}
