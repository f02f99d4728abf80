package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"guildcloner/clients"
	"guildcloner/clients/discord"
	"guildcloner/config"
	logpkg "guildcloner/core/log"
	"guildcloner/metrics"
	"guildcloner/usecases/clone"
)

type globalOptions struct {
	LogLevel string `long:"log-level" description:"Override LOG_LEVEL (debug, info, warn, error)"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts globalOptions
	// errors are printed once by main
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	commands := []struct {
		name, short, long string
		data              any
	}{
		{"verify", "Verify a token", "Checks a token and lists the guilds it can see.", &verifyCommand{global: &opts}},
		{"clone", "Clone a guild", "Replicates a source guild onto a destination guild.", &cloneCommand{global: &opts}},
		{"create-guild", "Create a destination guild", "Creates an empty guild owned by the token's account.", &createGuildCommand{global: &opts}},
		{"serve", "Run the HTTP control surface", "Serves the control API, live progress socket and metrics.", &serveCommand{global: &opts}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			return fmt.Errorf("failed to register %s command: %w", c.name, err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, flagsErr.Message)
			return nil
		}
		return err
	}
	return nil
}

// app holds what every command needs.
type app struct {
	cfg     *config.AppConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	engine  *clone.Engine
}

// newApp loads configuration and builds the engine. registry may be nil for one-shot commands.
func newApp(global *globalOptions, format logpkg.Format, registry prometheus.Registerer) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if global.LogLevel != "" {
		cfg.LogLevel = global.LogLevel
	}

	logger := logpkg.New(cfg.LogLevel, format, os.Stderr).With().Str("env", cfg.Environment).Logger()

	var m *metrics.Metrics
	if registry != nil {
		m = metrics.New(registry)
	}

	engine := clone.NewEngine(clone.EngineParams{
		ClientFactory:         newClientFactory(cfg.DiscordConfig, logger, m),
		Logger:                logger,
		Metrics:               m,
		MessagePostsPerSecond: cfg.DiscordConfig.MessagePostsPerSecond,
	})

	return &app{cfg: cfg, logger: logger, metrics: m, engine: engine}, nil
}

func newClientFactory(cfg config.DiscordConfig, logger zerolog.Logger, m *metrics.Metrics) clients.ClientFactory {
	return func(credential string, onError func(error)) (clients.DiscordClient, error) {
		burst := max(1, int(cfg.RequestsPerSecond))
		client, err := discord.NewRateLimitedClient(discord.ClientParams{
			BaseURL:       cfg.APIBaseURL,
			CDNBaseURL:    cfg.CDNBaseURL,
			Credential:    credential,
			Timeout:       cfg.HTTPTimeout,
			Limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
			MaxRetries:    cfg.MaxRetries,
			MinRetryDelay: cfg.MinRetryDelay,
			MaxRetryDelay: cfg.MaxRetryDelay,
			OnError:       onError,
			Logger:        logger,
			Metrics:       m,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
