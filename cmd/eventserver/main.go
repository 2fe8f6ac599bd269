package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mrosstech/vttless-sub000/config"
	"github.com/mrosstech/vttless-sub000/internal/auth"
	"github.com/mrosstech/vttless-sub000/internal/httpapi"
	"github.com/mrosstech/vttless-sub000/internal/presence"
	"github.com/mrosstech/vttless-sub000/internal/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Environment == "production" {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	store, err := presence.New(cfg.Redis, cfg.PresenceTTL)
	if err != nil {
		// Presence is advisory; the relay works without it.
		logger.Warn().Err(err).Msg("presence disabled, redis unreachable")
		store = nil
	} else {
		defer store.Close()
		logger.Info().Str("addr", cfg.Redis.Addr()).Msg("redis connection established")
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	rl := relay.New(relay.Config{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}, verifier, store, logger)

	router := httpapi.NewRouter(cfg, rl, store)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("event server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exited gracefully")
}
