package messagecopy

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guildcloner/clients/discord"
	"guildcloner/core"
	"guildcloner/models"
	"guildcloner/services/idmap"
	"guildcloner/services/stats"
)

func newReplicator(client *discord.MockDiscordClient, ids *idmap.IdentifierMap, tracker *stats.Tracker, onUnit func()) *Replicator {
	return NewReplicator(Params{
		Client:  client,
		IDs:     ids,
		Tracker: tracker,
		Logger:  zerolog.Nop(),
		OnUnit:  onUnit,
	})
}

// history returns n messages newest first, ids m<n>..m1.
func history(n int) []models.MessageRecord {
	records := make([]models.MessageRecord, 0, n)
	for i := n; i >= 1; i-- {
		records = append(records, models.MessageRecord{
			ID:                fmt.Sprintf("m%d", i),
			AuthorDisplayName: "alice",
			Content:           fmt.Sprintf("message %d", i),
		})
	}
	return records
}

func TestFormatRepost(t *testing.T) {
	assert.Equal(t, "**alice**: hi", FormatRepost(models.MessageRecord{AuthorDisplayName: "alice", Content: "hi"}))
	assert.Equal(t, "**Unknown**: hi", FormatRepost(models.MessageRecord{Content: "hi"}))
	assert.Equal(t, "", FormatRepost(models.MessageRecord{AuthorDisplayName: "alice", Content: "   "}))

	long := FormatRepost(models.MessageRecord{AuthorDisplayName: "alice", Content: strings.Repeat("é", 3000)})
	assert.Equal(t, MaxContentLength, utf8.RuneCountInString(long))
}

func TestCopyChannel_PostsOldestFirstWithinLimit(t *testing.T) {
	client := new(discord.MockDiscordClient)
	tracker := stats.NewTracker()
	tracker.AddPlanned(3)

	client.On("ListMessages", mock.Anything, "src", "", 3).Return(history(5)[:3], nil)
	var posted []string
	client.On("SendMessage", mock.Anything, "dst", mock.Anything).
		Run(func(args mock.Arguments) { posted = append(posted, args.String(2)) }).
		Return("new", nil)

	r := newReplicator(client, idmap.New(), tracker, nil)
	require.NoError(t, r.CopyChannel(context.Background(), core.NewCancelToken(), "src", "dst", 3))

	assert.Equal(t, []string{
		"**alice**: message 3",
		"**alice**: message 4",
		"**alice**: message 5",
	}, posted)
	assert.Equal(t, 3, tracker.Snapshot().MessagesCopied)
	assert.Equal(t, 1.0, tracker.Progress())
}

func TestCopyChannel_PaginatesAcrossPages(t *testing.T) {
	client := new(discord.MockDiscordClient)
	tracker := stats.NewTracker()
	tracker.AddPlanned(150)

	all := history(130)
	client.On("ListMessages", mock.Anything, "src", "", 100).Return(all[:100], nil)
	client.On("ListMessages", mock.Anything, "src", all[99].ID, 50).Return(all[100:], nil)
	client.On("SendMessage", mock.Anything, "dst", mock.Anything).Return("new", nil)

	r := newReplicator(client, idmap.New(), tracker, nil)
	require.NoError(t, r.CopyChannel(context.Background(), core.NewCancelToken(), "src", "dst", 150))

	assert.Equal(t, 130, tracker.Snapshot().MessagesCopied)
	client.AssertNumberOfCalls(t, "ListMessages", 2)
	// history ran out at 130, so the 20 missing units are given back
	assert.Equal(t, 1.0, tracker.Progress())
}

func TestCopyChannel_PostFailuresContinue(t *testing.T) {
	client := new(discord.MockDiscordClient)
	tracker := stats.NewTracker()

	records := []models.MessageRecord{
		{ID: "m3", AuthorDisplayName: "bob", Content: "third"},
		{ID: "m2", AuthorDisplayName: "bob", Content: ""},
		{ID: "m1", AuthorDisplayName: "bob", Content: "first"},
	}
	client.On("ListMessages", mock.Anything, "src", "", 10).Return(records, nil)
	client.On("SendMessage", mock.Anything, "dst", "**bob**: first").
		Return("", &core.PermissionError{Message: "Missing Access"})
	client.On("SendMessage", mock.Anything, "dst", "**bob**: third").Return("new", nil)

	r := newReplicator(client, idmap.New(), tracker, nil)
	require.NoError(t, r.CopyChannel(context.Background(), core.NewCancelToken(), "src", "dst", 10))

	assert.Equal(t, 1, tracker.Snapshot().MessagesCopied)
	client.AssertNumberOfCalls(t, "SendMessage", 2)
}

func TestCopyChannel_FatalPostAborts(t *testing.T) {
	client := new(discord.MockDiscordClient)
	client.On("ListMessages", mock.Anything, "src", "", 5).Return(history(2), nil)
	client.On("SendMessage", mock.Anything, "dst", mock.Anything).
		Return("", &core.RateLimitExhaustedError{Attempts: 4}).Once()

	r := newReplicator(client, idmap.New(), stats.NewTracker(), nil)
	err := r.CopyChannel(context.Background(), core.NewCancelToken(), "src", "dst", 5)

	_, ok := core.IsRateLimitExhausted(err)
	assert.True(t, ok)
	client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestCopyChannel_CancelBetweenMessages(t *testing.T) {
	client := new(discord.MockDiscordClient)
	tracker := stats.NewTracker()
	token := core.NewCancelToken()

	client.On("ListMessages", mock.Anything, "src", "", 5).Return(history(5), nil)
	client.On("SendMessage", mock.Anything, "dst", mock.Anything).Return("new", nil)

	r := newReplicator(client, idmap.New(), tracker, token.Cancel)
	err := r.CopyChannel(context.Background(), token, "src", "dst", 5)

	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Equal(t, 1, tracker.Snapshot().MessagesCopied)
	client.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestCopyAll_SkipsUnmappedAndUnreadableChannels(t *testing.T) {
	client := new(discord.MockDiscordClient)
	ids := idmap.New()
	tracker := stats.NewTracker()

	channels := []models.ChannelSpec{
		{SourceID: "unmapped", Kind: models.ChannelKindText},
		{SourceID: "locked", Kind: models.ChannelKindText},
		{SourceID: "open", Kind: models.ChannelKindText},
	}
	tracker.AddPlanned(PlannedUnits(&models.SourceSnapshot{TextChannels: channels}, 2))
	require.NoError(t, ids.Map(models.EntityChannel, "locked", "dst-locked"))
	require.NoError(t, ids.Map(models.EntityChannel, "open", "dst-open"))

	client.On("ListMessages", mock.Anything, "locked", "", 2).Return(nil, &core.PermissionError{Message: "Missing Access"})
	client.On("ListMessages", mock.Anything, "open", "", 2).Return(history(2), nil)
	client.On("SendMessage", mock.Anything, "dst-open", mock.Anything).Return("new", nil)

	r := newReplicator(client, ids, tracker, nil)
	require.NoError(t, r.CopyAll(context.Background(), core.NewCancelToken(), channels, 2))

	assert.Equal(t, 2, tracker.Snapshot().MessagesCopied)
	assert.Equal(t, 1.0, tracker.Progress())
}
