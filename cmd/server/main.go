package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/hallchat/relay/internal/adapters/http"
	"github.com/hallchat/relay/internal/adapters/ws"
	"github.com/hallchat/relay/internal/app"
	"github.com/hallchat/relay/internal/auth"
	"github.com/hallchat/relay/internal/config"
	"github.com/hallchat/relay/internal/domain"
	"github.com/hallchat/relay/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	dir, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open directory store")
	}
	defer func() {
		if err := dir.Close(); err != nil {
			log.Error().Err(err).Msg("closing directory store")
		}
	}()

	if cfg.DefaultRoom != "" {
		if _, err := dir.EnsureRoom(ctx, domain.RoomName(cfg.DefaultRoom)); err != nil {
			log.Error().Err(err).Str("room", cfg.DefaultRoom).Msg("failed to seed default room")
			return
		}
	}

	reg := app.NewRegistry()
	coord := app.NewCoordinator(reg, dir)
	verifier := auth.NewVerifier(cfg.Secret)
	ctl := ws.NewController(coord, verifier, cfg)

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
