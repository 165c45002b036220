package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/adapters/auth"
	"github.com/avorobev/peertalk/internal/adapters/bus"
	router "github.com/avorobev/peertalk/internal/adapters/http"
	sig "github.com/avorobev/peertalk/internal/adapters/signal"
	"github.com/avorobev/peertalk/internal/config"
	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/presence"
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
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("jwt_secret is required")
	}

	gatewayID := cfg.GatewayID
	if gatewayID == "" {
		gatewayID = uuid.NewString()
	}

	var (
		store  core.PresenceStore
		envBus core.EnvelopeBus
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
		}
		store = presence.NewRedisStore(rdb)
		envBus = bus.NewRedisBus(rdb, gatewayID)
		log.Info().Str("addr", cfg.RedisAddr).Str("gateway", gatewayID).Msg("shared presence over redis")
	} else {
		store = presence.NewMemoryStore()
		envBus = bus.NewNoopBus()
		log.Info().Msg("single-process presence")
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	gw := sig.NewGateway(gatewayID, store, verifier, envBus, sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})
	if err := gw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway")
	}
	defer envBus.Close()

	r := router.SetupRouter(ctx, cfg, gw)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
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
