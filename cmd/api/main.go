package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"funnelforge/internal/adapter/repo"
	"funnelforge/internal/cache"
	"funnelforge/internal/content"
	"funnelforge/internal/http/handlers"
	"funnelforge/internal/http/httpapi"
	"funnelforge/internal/infra"
	"funnelforge/internal/jobs"
	"funnelforge/internal/status"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	var appCache cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer func() {
			_ = redisCache.Close()
		}()
		appCache = redisCache
	}

	jobRepo := repo.NewJobRepository(pool)
	versionRepo := repo.NewVersionRepository(pool)
	tracker := jobs.NewTracker(jobRepo, logger)
	reporter := status.NewReporter(versionRepo, appCache, logger)
	registry := content.MustRegistry()

	app := handlers.NewApp(jobRepo, tracker, reporter, registry, logger)
	router := httpapi.NewRouter(app, cfg.JWTSecret, appCache)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
