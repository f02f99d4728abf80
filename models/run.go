package models

import "time"

// RunRecord is the persisted summary of a finished run. It is an audit entry,
// never a checkpoint a run can resume from.
type RunRecord struct {
	ID                 string    `db:"id"                   json:"id"`
	SourceGuildID      string    `db:"source_guild_id"      json:"source_guild_id"`
	SourceGuildName    string    `db:"source_guild_name"    json:"source_guild_name"`
	DestinationGuildID string    `db:"destination_guild_id" json:"destination_guild_id"`
	State              RunState  `db:"state"                json:"state"`
	RolesCreated       int       `db:"roles_created"        json:"roles_created"`
	TotalRoles         int       `db:"total_roles"          json:"total_roles"`
	CategoriesCreated  int       `db:"categories_created"   json:"categories_created"`
	TotalCategories    int       `db:"total_categories"     json:"total_categories"`
	ChannelsCreated    int       `db:"channels_created"     json:"channels_created"`
	TotalChannels      int       `db:"total_channels"       json:"total_channels"`
	OverwritesApplied  int       `db:"overwrites_applied"   json:"overwrites_applied"`
	MessagesCopied     int       `db:"messages_copied"      json:"messages_copied"`
	Errors             int       `db:"errors"               json:"errors"`
	ElapsedMS          int64     `db:"elapsed_ms"           json:"elapsed_ms"`
	ErrorKind          string    `db:"error_kind"           json:"error_kind,omitempty"`
	ErrorMessage       string    `db:"error_message"        json:"error_message,omitempty"`
	StartedAt          time.Time `db:"started_at"           json:"started_at"`
	FinishedAt         time.Time `db:"finished_at"          json:"finished_at"`
	CreatedAt          time.Time `db:"created_at"           json:"created_at"`
}

func NewRunRecord(outcome RunOutcome) *RunRecord {
	return &RunRecord{
		ID:                 outcome.RunID,
		SourceGuildID:      outcome.Source.ID,
		SourceGuildName:    outcome.Source.Name,
		DestinationGuildID: outcome.Destination.ID,
		State:              outcome.State,
		RolesCreated:       outcome.Stats.RolesCreated,
		TotalRoles:         outcome.Stats.TotalRoles,
		CategoriesCreated:  outcome.Stats.CategoriesCreated,
		TotalCategories:    outcome.Stats.TotalCategories,
		ChannelsCreated:    outcome.Stats.ChannelsCreated,
		TotalChannels:      outcome.Stats.TotalChannels,
		OverwritesApplied:  outcome.Stats.OverwritesApplied,
		MessagesCopied:     outcome.Stats.MessagesCopied,
		Errors:             outcome.Stats.Errors,
		ElapsedMS:          outcome.Stats.ElapsedTime.Milliseconds(),
		ErrorKind:          outcome.ErrorKind,
		ErrorMessage:       outcome.ErrorMessage,
		StartedAt:          outcome.StartedAt,
		FinishedAt:         outcome.FinishedAt,
	}
}
