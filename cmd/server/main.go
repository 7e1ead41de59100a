package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erp-server/internal/adapters/web"
	"erp-server/internal/ai"
	"erp-server/internal/app"
	"erp-server/internal/config"
	"erp-server/internal/core"
	"erp-server/internal/db"
	"erp-server/internal/logger"
	"erp-server/internal/notify"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("ERP_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog().Fatal().Err(err).Msg("load config")
	}
	if version != "" {
		cfg.Version = version
	}
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "erp-server",
		Version:     cfg.Version,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if cfg.Database.MigrateOnStart {
		if err := db.MigrateUp(ctx, cfg.Database.URL); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	var publisher core.NotificationPublisher
	if cfg.NATS.URL != "" {
		p, err := notify.Connect(cfg.NATS.URL, log.With().Str("component", "nats").Logger())
		if err != nil {
			// Notifications are still stored; only the fan-out is lost.
			log.Warn().Err(err).Msg("NATS unavailable, notification events disabled")
		} else {
			defer func() { _ = p.Close() }()
			publisher = p
		}
	}

	var assistant ai.Suggester
	if a := ai.NewAgent(cfg.OpenAI.APIKey, cfg.OpenAI.Model); a != nil {
		assistant = a
	} else {
		log.Warn().Msg("openai.api_key is not set, journal entry suggestions disabled")
	}

	services := app.New(pool, app.Deps{Publisher: publisher, Assistant: assistant}, log)

	created, err := services.Users.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	switch {
	case errors.Is(err, core.ErrValidation):
		log.Warn().Err(err).Msg("no users exist and no admin credentials are configured")
	case err != nil:
		return err
	case created:
		log.Info().Str("username", cfg.Auth.AdminUsername).Msg("seeded admin user")
	}

	handler := web.NewHandler(services.WebServices(), web.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		BodyLimit:      cfg.HTTP.BodyLimit,
		JWTSecret:      cfg.Auth.JWTSecret,
		TokenTTL:       cfg.Auth.TokenTTL,
		Version:        cfg.Version,
		Metrics:        cfg.Metrics.Enabled,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bootLog is used before the configured logger exists.
func bootLog() *zerolog.Logger {
	l := logger.New(logger.Config{ServiceName: "erp-server"})
	return &l
}
