package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"guildcloner/clients/socketio"
	logpkg "guildcloner/core/log"
	"guildcloner/db"
	"guildcloner/handlers"
	"guildcloner/middleware"
	"guildcloner/services/runs"
	"guildcloner/usecases/clone"
)

type serveCommand struct {
	global *globalOptions
}

func (c *serveCommand) Execute(args []string) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(c.global, logpkg.FormatJSON, registry)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger
	defer a.engine.Shutdown()

	alerter := middleware.NewErrorAlerter(middleware.SlackAlertConfig{
		WebhookURL:  cfg.SlackConfig.AlertWebhookURL,
		Environment: cfg.Environment,
		AppName:     "guildcloner",
	}, nil, logger)
	if cfg.SlackConfig.IsConfigured() {
		a.engine.AddObserver(alerter)
		logger.Info().Msg("Slack failure alerts enabled")
	}

	var history handlers.RunHistory
	if cfg.DatabaseConfig.IsConfigured() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dbConn, err := db.NewConnection(ctx, cfg.DatabaseConfig.URL)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		runsRepo := db.NewPostgresRunsRepository(dbConn, cfg.DatabaseConfig.Schema)
		if err := runsRepo.EnsureSchema(ctx); err != nil {
			return err
		}

		runsService := runs.NewRunsService(runsRepo, logger)
		a.engine.AddObserver(runsService)
		history = runsService
		logger.Info().Str("schema", cfg.DatabaseConfig.Schema).Msg("Run history enabled")
	}

	broadcaster := socketio.NewProgressBroadcaster(cfg.DashboardAPIKey, logger)
	defer broadcaster.Close()

	router := mux.NewRouter()
	sink := clone.MultiSink{broadcaster, newConsoleSink(logger)}
	handlers.NewCloneHTTPHandler(a.engine, history, sink, logger).RegisterRoutes(router)
	broadcaster.RegisterWithRouter(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})).
		Methods(http.MethodGet)

	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-CLONER-API-KEY"},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           alerter.HTTPMiddleware(corsHandler.Handler(router)),
		ReadHeaderTimeout: 30 * time.Second,
	}
	return handleGracefulShutdown(server, logger)
}

func handleGracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	logger.Info().Msg("Shutdown signal received, cleaning up")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	logger.Info().Msg("Server stopped gracefully")
	return nil
}
