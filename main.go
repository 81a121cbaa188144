package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/breez/txsync/catalog"
	"github.com/breez/txsync/config"
	"github.com/breez/txsync/globalize"
	"github.com/breez/txsync/middleware"
	"github.com/breez/txsync/telemetry"
	"github.com/breez/txsync/transifex"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "txsync",
		Short:         "Sync Transifex translations into database tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the Transifex webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	cmd.AddCommand(newExportCommand())
	return cmd
}

func setupLogging(config *config.Config) {
	// stdout carries command output
	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if config.LogFormat == "json" {
		writer = os.Stderr
	}
	log.Logger = zerolog.New(writer).
		With().
		Timestamp().
		Logger().
		Level(config.LogLevel.Level)
}

func serve(ctx context.Context) error {
	config, err := config.NewConfig()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config")
		return err
	}
	setupLogging(config)

	cat, err := catalog.Load(config.CatalogPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load catalog")
		return err
	}
	registry := catalog.NewRegistry(cat, nil)
	defer registry.Close()

	metrics := telemetry.NewMetrics()
	hookServer := NewHookServer(
		registry,
		transifex.NewClient(config.TransifexAPIURL, config.TransifexUsername, config.TransifexPassword, config.TransifexTimeout()),
		globalize.NewWriter(),
		middleware.NewAuthenticator(config.MaxClockSkew()),
		metrics,
	)
	s := CreateServer(config, hookServer, metrics)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down cleanly")
		}
	}()

	log.Info().Msgf("Server listening at %s", config.HTTPListenAddress)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Failed to serve")
		return err
	}
	return nil
}

func CreateServer(config *config.Config, hookServer *HookServer, metrics *telemetry.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)

	r.Post("/transifex", hookServer.HandleTransifexHook)
	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	handler := cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(r)

	return &http.Server{
		Addr:              config.HTTPListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
