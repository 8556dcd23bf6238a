package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"rtchat/internal/auth"
	"rtchat/internal/config"
	"rtchat/internal/handlers"
	"rtchat/internal/realtime"
	"rtchat/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate store")
	}

	registry := realtime.NewRegistry(logger)
	rooms := realtime.NewRooms()
	registry.OnOffline(func(userID string) {
		rooms.LeaveAll(userID)
		if err := st.SetPresence(context.Background(), userID, false); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("persist offline presence")
		}
	})

	broadcaster := realtime.NewBroadcaster(registry, rooms, logger)
	bridge := realtime.NewBridge(cfg.DatabaseURL, broadcaster, logger)
	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("change feed bridge stopped")
		}
	}()

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handlers.New(st, tokens, registry, rooms, logger).Register(app)

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := app.Listen(cfg.Addr); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := zerolog.New(os.Stdout)
	if cfg.LogConsole {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}
