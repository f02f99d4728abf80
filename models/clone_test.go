package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		options CloneOptions
		wantErr bool
	}{
		{"defaults", DefaultCloneOptions(), false},
		{"messages disabled with zero limit", CloneOptions{Roles: true}, false},
		{"messages enabled with zero limit", CloneOptions{Messages: true}, true},
		{"negative limit", CloneOptions{MessagesLimit: -1}, true},
		{"messages enabled with limit", CloneOptions{Messages: true, MessagesLimit: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.options.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunState_IsTerminal(t *testing.T) {
	assert.False(t, RunStateIdle.IsTerminal())
	assert.False(t, RunStateVerifying.IsTerminal())
	assert.False(t, RunStateRunning.IsTerminal())
	assert.True(t, RunStateCompleted.IsTerminal())
	assert.True(t, RunStateCancelled.IsTerminal())
	assert.True(t, RunStateFailed.IsTerminal())
}

func TestParseCloneProfile(t *testing.T) {
	t.Run("partial profile keeps defaults", func(t *testing.T) {
		profile, err := ParseCloneProfile([]byte(`
source_id: "111"
destination_id: "222"
options:
  voice_channels: false
  messages_limit: 25
`))
		require.NoError(t, err)
		assert.Equal(t, "111", profile.SourceID)
		assert.Equal(t, "222", profile.DestinationID)
		assert.True(t, profile.Options.Roles)
		assert.True(t, profile.Options.Messages)
		assert.False(t, profile.Options.VoiceChannels)
		assert.Equal(t, 25, profile.Options.MessagesLimit)
	})

	t.Run("rejects zero limit with messages enabled", func(t *testing.T) {
		_, err := ParseCloneProfile([]byte("options:\n  messages: true\n  messages_limit: 0\n"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := ParseCloneProfile([]byte("options: [oops"))
		assert.Error(t, err)
	})
}

func TestLoadCloneProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("options:\n  messages: false\n"), 0o600))

	profile, err := LoadCloneProfile(path)
	require.NoError(t, err)
	assert.False(t, profile.Options.Messages)
	assert.Equal(t, DefaultMessagesLimit, profile.Options.MessagesLimit)

	_, err = LoadCloneProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
