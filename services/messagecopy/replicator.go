// Package messagecopy reposts a bounded window of source channel history into cloned channels.
package messagecopy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"guildcloner/clients"
	"guildcloner/clients/discord"
	"guildcloner/core"
	"guildcloner/metrics"
	"guildcloner/models"
	"guildcloner/services/idmap"
	"guildcloner/services/stats"
	"guildcloner/utils"
)

// MaxContentLength is the longest message content the API accepts.
const MaxContentLength = 2000

type Params struct {
	Client  clients.DiscordClient
	IDs     *idmap.IdentifierMap
	Tracker *stats.Tracker
	// PostLimiter paces reposts on top of the client's own pacing. Nil means unpaced.
	PostLimiter *rate.Limiter
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	OnUnit      func()
}

type Replicator struct {
	client      clients.DiscordClient
	ids         *idmap.IdentifierMap
	tracker     *stats.Tracker
	postLimiter *rate.Limiter
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	onUnit      func()
}

func NewReplicator(params Params) *Replicator {
	return &Replicator{
		client:      params.Client,
		ids:         params.IDs,
		tracker:     params.Tracker,
		postLimiter: params.PostLimiter,
		logger:      params.Logger.With().Str("component", "messagecopy").Logger(),
		metrics:     params.Metrics,
		onUnit:      params.OnUnit,
	}
}

// PlannedUnits is the upper bound of message units: limit per source text channel.
func PlannedUnits(source *models.SourceSnapshot, limit int) int {
	return len(source.TextChannels) * limit
}

// CopyAll copies up to limit messages for every text channel that has a destination.
// Channels without a mapping give their planned units back.
func (r *Replicator) CopyAll(
	ctx context.Context,
	token *core.CancelToken,
	channels []models.ChannelSpec,
	limit int,
) error {
	for _, channel := range channels {
		if err := token.Check(); err != nil {
			return err
		}

		destinationID, ok := r.ids.Lookup(models.EntityChannel, channel.SourceID).Get()
		if !ok {
			r.tracker.ShrinkPlanned(limit)
			continue
		}

		if err := r.CopyChannel(ctx, token, channel.SourceID, destinationID, limit); err != nil {
			return err
		}
	}
	return nil
}

// CopyChannel reposts the most recent limit messages of sourceID, oldest first.
func (r *Replicator) CopyChannel(
	ctx context.Context,
	token *core.CancelToken,
	sourceID, destinationID string,
	limit int,
) error {
	log := r.logger.With().Str("source_id", sourceID).Str("destination_id", destinationID).Logger()
	log.Info().Int("limit", limit).Msg("Starting to copy channel messages")

	records, err := r.fetchRecent(ctx, token, sourceID, limit)
	if err != nil {
		if core.IsFatal(err) || errors.Is(err, core.ErrCancelled) {
			return err
		}
		log.Warn().Err(err).Str("error_kind", core.ErrorKind(err)).Msg("Failed to read channel history, skipping channel")
		r.metrics.ObserveEntity(string(models.PhaseMessages), "failed")
		r.tracker.ShrinkPlanned(limit)
		return nil
	}
	r.tracker.ShrinkPlanned(limit - len(records))

	copied := 0
	for _, record := range records {
		if err := token.Check(); err != nil {
			return err
		}

		content := FormatRepost(record)
		if content == "" {
			r.metrics.ObserveEntity(string(models.PhaseMessages), "skipped")
			r.unitDone()
			continue
		}

		if r.postLimiter != nil {
			if err := r.postLimiter.Wait(ctx); err != nil {
				return fmt.Errorf("failed to wait for message post slot: %w", err)
			}
		}

		if _, err := r.client.SendMessage(ctx, destinationID, content); err != nil {
			if core.IsFatal(err) {
				return err
			}
			log.Warn().Err(err).Str("message_id", record.ID).Str("error_kind", core.ErrorKind(err)).
				Msg("Failed to repost message, continuing")
			r.metrics.ObserveEntity(string(models.PhaseMessages), "failed")
			r.unitDone()
			continue
		}

		copied++
		r.tracker.MessageCopied()
		r.metrics.ObserveEntity(string(models.PhaseMessages), "created")
		r.unitDone()
	}

	log.Info().Int("copied", copied).Int("fetched", len(records)).Msg("Completed successfully - channel messages copied")
	return nil
}

// fetchRecent pages backwards from the newest message until limit records are
// collected or history runs out, then returns them oldest first.
func (r *Replicator) fetchRecent(
	ctx context.Context,
	token *core.CancelToken,
	channelID string,
	limit int,
) ([]models.MessageRecord, error) {
	collected := make([]models.MessageRecord, 0, limit)
	before := ""
	for len(collected) < limit {
		if err := token.Check(); err != nil {
			return nil, err
		}

		pageSize := min(limit-len(collected), discord.MaxMessagesPerPage)
		page, err := r.client.ListMessages(ctx, channelID, before, pageSize)
		if err != nil {
			return nil, err
		}
		collected = append(collected, page...)
		if len(page) < pageSize {
			break
		}
		before = page[len(page)-1].ID
	}

	if len(collected) > limit {
		collected = collected[:limit]
	}
	slices.Reverse(collected)
	return collected, nil
}

// FormatRepost renders a message as "**author**: content" within the length limit.
// Messages without text content yield "".
func FormatRepost(record models.MessageRecord) string {
	content := strings.TrimSpace(record.Content)
	if content == "" {
		return ""
	}
	author := record.AuthorDisplayName
	if author == "" {
		author = "Unknown"
	}
	return utils.TruncateRunes(fmt.Sprintf("**%s**: %s", author, content), MaxContentLength)
}

func (r *Replicator) unitDone() {
	r.tracker.UnitDone()
	if r.onUnit != nil {
		r.onUnit()
	}
}
