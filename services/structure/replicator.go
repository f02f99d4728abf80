// Package structure replicates roles, categories, channels and permission overwrites.
package structure

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"guildcloner/clients"
	"guildcloner/core"
	"guildcloner/metrics"
	"guildcloner/models"
	"guildcloner/services/idmap"
	"guildcloner/services/planner"
	"guildcloner/services/stats"
)

type Params struct {
	Client  clients.DiscordClient
	IDs     *idmap.IdentifierMap
	Tracker *stats.Tracker
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// OnUnit runs after every finished unit of work, successful or not.
	OnUnit func()
}

// Replicator executes the structural phases against a destination guild.
// Entity-level failures are logged and skipped. Only fatal errors and
// cancellation are returned.
type Replicator struct {
	client  clients.DiscordClient
	ids     *idmap.IdentifierMap
	tracker *stats.Tracker
	logger  zerolog.Logger
	metrics *metrics.Metrics
	onUnit  func()
}

func NewReplicator(params Params) *Replicator {
	return &Replicator{
		client:  params.Client,
		ids:     params.IDs,
		tracker: params.Tracker,
		logger:  params.Logger.With().Str("component", "structure").Logger(),
		metrics: params.Metrics,
		onUnit:  params.OnUnit,
	}
}

// RunPhase dispatches one structural phase. Message copying is not handled here.
func (r *Replicator) RunPhase(
	ctx context.Context,
	token *core.CancelToken,
	phase models.Phase,
	source *models.SourceSnapshot,
	plan []models.Phase,
	destinationID string,
) error {
	switch phase {
	case models.PhaseNameAndIcon:
		return r.CloneNameAndIcon(ctx, token, source.Guild, destinationID)
	case models.PhaseRoles:
		return r.CloneRoles(ctx, token, source, destinationID)
	case models.PhaseCategories:
		return r.CloneCategories(ctx, token, source.Categories, destinationID)
	case models.PhaseTextChannels:
		return r.CloneChannels(ctx, token, models.PhaseTextChannels, source.TextChannels, destinationID)
	case models.PhaseVoiceChannels:
		return r.CloneChannels(ctx, token, models.PhaseVoiceChannels, source.VoiceChannels, destinationID)
	case models.PhaseOverwrites:
		return r.ApplyOverwrites(ctx, token, OverwriteContainers(source, plan))
	default:
		return fmt.Errorf("phase %s is not a structural phase", phase)
	}
}

// CloneNameAndIcon copies the guild name and, when present, its icon.
func (r *Replicator) CloneNameAndIcon(
	ctx context.Context,
	token *core.CancelToken,
	source models.GuildDescriptor,
	destinationID string,
) error {
	if err := token.Check(); err != nil {
		return err
	}

	update := models.GuildUpdate{Name: source.Name}
	if source.Icon != "" {
		data, contentType, err := r.client.FetchGuildIcon(ctx, source.ID, source.Icon)
		switch {
		case err == nil:
			update.Icon = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
		case core.IsFatal(err):
			return err
		default:
			r.entityFailed(models.PhaseNameAndIcon, source.ID, "icon", err)
		}
	}

	if err := r.client.ModifyGuild(ctx, destinationID, update); err != nil {
		if core.IsFatal(err) {
			return err
		}
		r.entityFailed(models.PhaseNameAndIcon, source.ID, source.Name, err)
		r.unitDone()
		return nil
	}

	r.metrics.ObserveEntity(string(models.PhaseNameAndIcon), "created")
	r.logger.Info().Str("destination_id", destinationID).Bool("icon", update.Icon != "").
		Msg("Applied guild name and icon")
	r.unitDone()
	return nil
}

// CloneRoles creates every clonable role from the highest source position down.
func (r *Replicator) CloneRoles(
	ctx context.Context,
	token *core.CancelToken,
	source *models.SourceSnapshot,
	destinationID string,
) error {
	for _, role := range ClonableRoles(source) {
		if err := token.Check(); err != nil {
			return err
		}

		id, err := r.client.CreateRole(ctx, destinationID, role)
		if err != nil {
			if core.IsFatal(err) {
				return err
			}
			r.entityFailed(models.PhaseRoles, role.SourceID, role.Name, err)
			r.unitDone()
			continue
		}

		r.record(models.EntityRole, role.SourceID, id)
		r.tracker.RoleCreated()
		r.metrics.ObserveEntity(string(models.PhaseRoles), "created")
		r.logger.Debug().Str("source_id", role.SourceID).Str("destination_id", id).Msg("Created role")
		r.unitDone()
	}
	return nil
}

func (r *Replicator) CloneCategories(
	ctx context.Context,
	token *core.CancelToken,
	categories []models.CategorySpec,
	destinationID string,
) error {
	for _, category := range categories {
		if err := token.Check(); err != nil {
			return err
		}

		id, err := r.client.CreateCategory(ctx, destinationID, category)
		if err != nil {
			if core.IsFatal(err) {
				return err
			}
			r.entityFailed(models.PhaseCategories, category.SourceID, category.Name, err)
			r.unitDone()
			continue
		}

		r.record(models.EntityCategory, category.SourceID, id)
		r.tracker.CategoryCreated()
		r.metrics.ObserveEntity(string(models.PhaseCategories), "created")
		r.logger.Debug().Str("source_id", category.SourceID).Str("destination_id", id).Msg("Created category")
		r.unitDone()
	}
	return nil
}

// CloneChannels creates text or voice channels. A channel whose category was not
// cloned is created without a parent.
func (r *Replicator) CloneChannels(
	ctx context.Context,
	token *core.CancelToken,
	phase models.Phase,
	channels []models.ChannelSpec,
	destinationID string,
) error {
	for _, channel := range channels {
		if err := token.Check(); err != nil {
			return err
		}

		parentID := ""
		if channel.ParentCategorySourceID != "" {
			parentID = r.ids.Lookup(models.EntityCategory, channel.ParentCategorySourceID).OrEmpty()
		}

		id, err := r.client.CreateChannel(ctx, destinationID, channel, parentID)
		if err != nil {
			if core.IsFatal(err) {
				return err
			}
			r.entityFailed(phase, channel.SourceID, channel.Name, err)
			r.unitDone()
			continue
		}

		r.record(models.EntityChannel, channel.SourceID, id)
		r.tracker.ChannelCreated()
		r.metrics.ObserveEntity(string(phase), "created")
		r.logger.Debug().
			Str("source_id", channel.SourceID).
			Str("destination_id", id).
			Str("parent_id", parentID).
			Msg("Created channel")
		r.unitDone()
	}
	return nil
}

// OverwriteContainer is a cloned (or attempted) channel-like entity carrying overwrites.
type OverwriteContainer struct {
	Kind       models.EntityKind
	SourceID   string
	Overwrites []models.OverwriteSpec
}

// OverwriteContainers lists the categories and channels whose overwrites get re-applied under plan.
func OverwriteContainers(source *models.SourceSnapshot, plan []models.Phase) []OverwriteContainer {
	var containers []OverwriteContainer
	if planner.Contains(plan, models.PhaseCategories) {
		for _, c := range source.Categories {
			containers = append(containers, OverwriteContainer{models.EntityCategory, c.SourceID, c.PermissionOverwrites})
		}
	}
	if planner.Contains(plan, models.PhaseTextChannels) {
		for _, c := range source.TextChannels {
			containers = append(containers, OverwriteContainer{models.EntityChannel, c.SourceID, c.PermissionOverwrites})
		}
	}
	if planner.Contains(plan, models.PhaseVoiceChannels) {
		for _, c := range source.VoiceChannels {
			containers = append(containers, OverwriteContainer{models.EntityChannel, c.SourceID, c.PermissionOverwrites})
		}
	}
	return containers
}

// ApplyOverwrites re-applies role overwrites on every mapped container. Overwrites whose
// container or target role was not cloned are skipped without counting as errors.
// Member overwrites are always skipped.
func (r *Replicator) ApplyOverwrites(
	ctx context.Context,
	token *core.CancelToken,
	containers []OverwriteContainer,
) error {
	for _, container := range containers {
		channelID, hasChannel := r.ids.Lookup(container.Kind, container.SourceID).Get()

		for _, overwrite := range container.Overwrites {
			if err := token.Check(); err != nil {
				return err
			}
			if !hasChannel || overwrite.TargetKind != models.OverwriteTargetRole {
				r.skipped(models.PhaseOverwrites)
				continue
			}
			targetID, ok := r.ids.Lookup(models.EntityRole, overwrite.TargetSourceID).Get()
			if !ok {
				r.skipped(models.PhaseOverwrites)
				continue
			}

			if err := r.client.SetChannelPermission(ctx, channelID, targetID, overwrite); err != nil {
				if core.IsFatal(err) {
					return err
				}
				r.entityFailed(models.PhaseOverwrites, container.SourceID, overwrite.TargetSourceID, err)
				r.unitDone()
				continue
			}

			r.tracker.OverwriteApplied()
			r.metrics.ObserveEntity(string(models.PhaseOverwrites), "created")
			r.unitDone()
		}
	}
	return nil
}

// ClonableRoles drops @everyone and managed roles and orders the rest by descending position.
func ClonableRoles(source *models.SourceSnapshot) []models.RoleSpec {
	roles := make([]models.RoleSpec, 0, len(source.Roles))
	for _, role := range source.Roles {
		if role.SourceID == source.Guild.ID || role.Managed {
			continue
		}
		roles = append(roles, role)
	}
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Position > roles[j].Position
	})
	return roles
}

// PlannedUnits counts the structural units a plan will execute against source.
func PlannedUnits(source *models.SourceSnapshot, plan []models.Phase) int {
	units := 0
	for _, phase := range plan {
		switch phase {
		case models.PhaseNameAndIcon:
			units++
		case models.PhaseRoles:
			units += len(ClonableRoles(source))
		case models.PhaseCategories:
			units += len(source.Categories)
		case models.PhaseTextChannels:
			units += len(source.TextChannels)
		case models.PhaseVoiceChannels:
			units += len(source.VoiceChannels)
		case models.PhaseOverwrites:
			for _, c := range OverwriteContainers(source, plan) {
				units += len(c.Overwrites)
			}
		}
	}
	return units
}

func (r *Replicator) record(kind models.EntityKind, sourceID, destinationID string) {
	if err := r.ids.Map(kind, sourceID, destinationID); err != nil {
		r.tracker.RecordError(err)
		r.logger.Error().Err(err).Str("kind", string(kind)).Str("source_id", sourceID).Msg("Failed to record mapping")
	}
}

func (r *Replicator) entityFailed(phase models.Phase, sourceID, name string, err error) {
	r.metrics.ObserveEntity(string(phase), "failed")
	r.logger.Warn().Err(err).
		Str("phase", string(phase)).
		Str("source_id", sourceID).
		Str("name", name).
		Str("error_kind", core.ErrorKind(err)).
		Msg("Failed to replicate entity, skipping")
}

func (r *Replicator) skipped(phase models.Phase) {
	r.metrics.ObserveEntity(string(phase), "skipped")
	r.unitDone()
}

func (r *Replicator) unitDone() {
	r.tracker.UnitDone()
	if r.onUnit != nil {
		r.onUnit()
	}
}
