package models

import (
	"fmt"
	"time"
)

type CloneOptions struct {
	Roles         bool `json:"roles"          yaml:"roles"`
	Categories    bool `json:"categories"     yaml:"categories"`
	TextChannels  bool `json:"text_channels"  yaml:"text_channels"`
	VoiceChannels bool `json:"voice_channels" yaml:"voice_channels"`
	Messages      bool `json:"messages"       yaml:"messages"`
	NameAndIcon   bool `json:"name_and_icon"  yaml:"name_and_icon"`
	MessagesLimit int  `json:"messages_limit" yaml:"messages_limit"`
}

const DefaultMessagesLimit = 100

// DefaultCloneOptions enables every phase with the default message window.
func DefaultCloneOptions() CloneOptions {
	return CloneOptions{
		Roles:         true,
		Categories:    true,
		TextChannels:  true,
		VoiceChannels: true,
		Messages:      true,
		NameAndIcon:   true,
		MessagesLimit: DefaultMessagesLimit,
	}
}

func (o CloneOptions) Validate() error {
	if o.MessagesLimit < 0 {
		return fmt.Errorf("messages_limit must be >= 0, got %d", o.MessagesLimit)
	}
	if o.Messages && o.MessagesLimit == 0 {
		return fmt.Errorf("messages_limit must be > 0 when messages are cloned")
	}
	return nil
}

type Phase string

const (
	PhaseNameAndIcon   Phase = "name_and_icon"
	PhaseRoles         Phase = "roles"
	PhaseCategories    Phase = "categories"
	PhaseTextChannels  Phase = "text_channels"
	PhaseVoiceChannels Phase = "voice_channels"
	PhaseOverwrites    Phase = "permission_overwrites"
	PhaseMessages      Phase = "messages"
)

// EntityKind scopes identifier mappings.
type EntityKind string

const (
	EntityRole     EntityKind = "role"
	EntityCategory EntityKind = "category"
	EntityChannel  EntityKind = "channel"
)

type CloneStats struct {
	RolesCreated      int           `json:"roles_created"`
	TotalRoles        int           `json:"total_roles"`
	CategoriesCreated int           `json:"categories_created"`
	TotalCategories   int           `json:"total_categories"`
	ChannelsCreated   int           `json:"channels_created"`
	TotalChannels     int           `json:"total_channels"`
	OverwritesApplied int           `json:"overwrites_applied"`
	MessagesCopied    int           `json:"messages_copied"`
	Errors            int           `json:"errors"`
	ElapsedTime       time.Duration `json:"elapsed_time"`
}

type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateVerifying RunState = "verifying"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateCancelled RunState = "cancelled"
	RunStateFailed    RunState = "failed"
)

// IsTerminal reports whether no further transitions happen for the run.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateCancelled || s == RunStateFailed
}

type RunRequest struct {
	Credential    string       `json:"-"`
	SourceID      string       `json:"source_id"`
	DestinationID string       `json:"destination_id"`
	Options       CloneOptions `json:"options"`
}

type RunOutcome struct {
	RunID        string          `json:"run_id"`
	State        RunState        `json:"state"`
	Source       GuildDescriptor `json:"source"`
	Destination  GuildDescriptor `json:"destination"`
	Stats        CloneStats      `json:"stats"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

type VerifyResult struct {
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Guilds      []GuildDescriptor `json:"guilds"`
}

// RunStatus is a point-in-time view of the current or most recent run.
type RunStatus struct {
	RunID        string          `json:"run_id"`
	State        RunState        `json:"state"`
	Progress     float64         `json:"progress"`
	Source       GuildDescriptor `json:"source"`
	Destination  GuildDescriptor `json:"destination"`
	Stats        CloneStats      `json:"stats"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
