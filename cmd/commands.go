package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	logpkg "guildcloner/core/log"
	"guildcloner/models"
	"guildcloner/usecases/clone"
)

type verifyCommand struct {
	global *globalOptions
	Token  string `long:"token" env:"CLONER_TOKEN" required:"true" description:"User or bot token"`
}

func (c *verifyCommand) Execute(args []string) error {
	a, err := newApp(c.global, logpkg.FormatConsole, nil)
	if err != nil {
		return err
	}
	defer a.engine.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := a.engine.Verify(ctx, c.Token)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type createGuildCommand struct {
	global *globalOptions
	Token  string `long:"token" env:"CLONER_TOKEN" required:"true" description:"User token (bots cannot create guilds)"`
	Name   string `long:"name" required:"true" description:"Name of the new guild"`
}

func (c *createGuildCommand) Execute(args []string) error {
	a, err := newApp(c.global, logpkg.FormatConsole, nil)
	if err != nil {
		return err
	}
	defer a.engine.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guild, err := a.engine.CreateGuild(ctx, c.Token, c.Name)
	if err != nil {
		return err
	}
	return printJSON(guild)
}

type cloneCommand struct {
	global        *globalOptions
	Token         string `long:"token" env:"CLONER_TOKEN" required:"true" description:"User or bot token"`
	Source        string `long:"source" description:"Source guild id (overrides the profile)"`
	Destination   string `long:"destination" description:"Destination guild id (overrides the profile)"`
	Profile       string `long:"profile" description:"YAML clone profile"`
	MessagesLimit int    `long:"messages-limit" default:"-1" description:"Messages copied per text channel (overrides the profile, 0 disables)"`
}

func (c *cloneCommand) Execute(args []string) error {
	profile, err := c.loadProfile()
	if err != nil {
		return err
	}

	a, err := newApp(c.global, logpkg.FormatConsole, nil)
	if err != nil {
		return err
	}
	defer a.engine.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := a.engine.Run(ctx, models.RunRequest{
		Credential:    c.Token,
		SourceID:      profile.SourceID,
		DestinationID: profile.DestinationID,
		Options:       profile.Options,
	}, newConsoleSink(a.logger))
	if printErr := printJSON(outcome); printErr != nil {
		a.logger.Error().Err(printErr).Msg("Failed to print run outcome")
	}
	return err
}

func (c *cloneCommand) loadProfile() (*models.CloneProfile, error) {
	profile := &models.CloneProfile{Options: models.DefaultCloneOptions()}
	if c.Profile != "" {
		loaded, err := models.LoadCloneProfile(c.Profile)
		if err != nil {
			return nil, err
		}
		profile = loaded
	}

	if c.Source != "" {
		profile.SourceID = c.Source
	}
	if c.Destination != "" {
		profile.DestinationID = c.Destination
	}
	if c.MessagesLimit >= 0 {
		profile.Options.MessagesLimit = c.MessagesLimit
		profile.Options.Messages = c.MessagesLimit > 0
	}
	if profile.SourceID == "" || profile.DestinationID == "" {
		return nil, fmt.Errorf("source and destination guild ids are required (flags or profile)")
	}
	return profile, nil
}

// newConsoleSink logs state changes and progress in 5% steps.
func newConsoleSink(logger zerolog.Logger) clone.Sink {
	lastStep := -1
	return clone.SinkFuncs{
		Progress: func(runID string, progress float64) {
			step := int(math.Floor(progress * 20))
			if step == lastStep {
				return
			}
			lastStep = step
			logger.Info().Str("run_id", runID).Msgf("Progress %3.0f%%", progress*100)
		},
		State: func(runID string, state models.RunState) {
			if state == models.RunStateVerifying {
				lastStep = -1
			}
			logger.Info().Str("run_id", runID).Str("state", string(state)).Msg("Run state changed")
		},
	}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
