package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"funnelforge/internal/adapter/repo"
	"funnelforge/internal/content"
	"funnelforge/internal/domain"
	"funnelforge/internal/events"
	"funnelforge/internal/infra"
	"funnelforge/internal/jobs"
	"funnelforge/internal/metrics"
	"funnelforge/internal/orchestrate"
	"funnelforge/internal/providers/genai"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	jobRepo := repo.NewJobRepository(pool)
	versionRepo := repo.NewVersionRepository(pool)
	tracker := jobs.NewTracker(jobRepo, logger)
	registry := content.MustRegistry()
	m := metrics.New()

	generator, err := selectGenerator(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generator")
	}

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	orch := orchestrate.New(orchestrate.Config{
		Generator:   generator,
		Tracker:     tracker,
		Versions:    versionRepo,
		Registry:    registry,
		Publisher:   publisher,
		Metrics:     m,
		Logger:      logger,
		MaxInFlight: cfg.MaxChunksInFlight,
	})

	logger.Info().
		Str("provider", cfg.GenProvider).
		Dur("poll_interval", cfg.WorkerPollInterval).
		Msg("worker started")

	runLoop(ctx, logger, cfg.WorkerPollInterval, jobRepo, m, orch)
	logger.Info().Msg("worker stopped")
}

func selectGenerator(cfg *infra.Config, logger zerolog.Logger) (genai.Generator, error) {
	switch cfg.GenProvider {
	case "static":
		return genai.NewStaticGenerator(), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn().Msg("GEMINI_API_KEY not set, using static generator")
			return genai.NewStaticGenerator(), nil
		}
		return genai.NewGeminiClient(genai.Options{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Logger:  &logger,
		})
	default:
		return nil, errors.New("unknown GEN_PROVIDER: " + cfg.GenProvider)
	}
}

func runLoop(ctx context.Context, logger zerolog.Logger, pollInterval time.Duration, jobRepo *repo.JobRepositoryPG, m *metrics.Metrics, orch *orchestrate.Orchestrator) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := jobRepo.ClaimNext(ctx)
		switch {
		case err == nil:
			m.JobClaimed(string(job.Type))
			logger.Info().
				Str("job_id", job.ID).
				Str("job_type", string(job.Type)).
				Str("content_group_id", job.ContentGroupID).
				Msg("claimed job")
			if _, err := orch.Run(ctx, job); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("job run failed")
			}
			// Drain the queue before going back to sleep.
			continue
		case errors.Is(err, domain.ErrNotFound):
			// No queued job; fall through to the poll wait.
		default:
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("failed to claim job")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
