// Package planner decides which replication phases run and in what order.
package planner

import "guildcloner/models"

// order is the dependency-respecting sequence: channels reference categories,
// overwrites reference roles and channels, messages need mapped text channels.
var order = []models.Phase{
	models.PhaseNameAndIcon,
	models.PhaseRoles,
	models.PhaseCategories,
	models.PhaseTextChannels,
	models.PhaseVoiceChannels,
	models.PhaseOverwrites,
	models.PhaseMessages,
}

// Plan returns the enabled phases in fixed order. Disabled phases are dropped, never reordered.
// Overwrites have no flag of their own; they run whenever any channel-like phase runs.
func Plan(opts models.CloneOptions) []models.Phase {
	enabled := map[models.Phase]bool{
		models.PhaseNameAndIcon:   opts.NameAndIcon,
		models.PhaseRoles:         opts.Roles,
		models.PhaseCategories:    opts.Categories,
		models.PhaseTextChannels:  opts.TextChannels,
		models.PhaseVoiceChannels: opts.VoiceChannels,
		models.PhaseOverwrites:    opts.Categories || opts.TextChannels || opts.VoiceChannels,
		models.PhaseMessages:      opts.Messages && opts.MessagesLimit > 0,
	}

	phases := make([]models.Phase, 0, len(order))
	for _, phase := range order {
		if enabled[phase] {
			phases = append(phases, phase)
		}
	}
	return phases
}

// Contains reports whether phase is part of plan.
func Contains(plan []models.Phase, phase models.Phase) bool {
	for _, p := range plan {
		if p == phase {
			return true
		}
	}
	return false
}
