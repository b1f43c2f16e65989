package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/adapters/cache"
	"github.com/zatekoja/recursiadx/internal/adapters/database"
	"github.com/zatekoja/recursiadx/internal/adapters/events"
	"github.com/zatekoja/recursiadx/internal/adapters/providers/heatmap"
	"github.com/zatekoja/recursiadx/internal/adapters/providers/ml"
	"github.com/zatekoja/recursiadx/internal/adapters/providers/storage"
	"github.com/zatekoja/recursiadx/internal/adapters/search"
	"github.com/zatekoja/recursiadx/internal/api/handlers"
	"github.com/zatekoja/recursiadx/internal/api/routes"
	"github.com/zatekoja/recursiadx/internal/application/services"
	"github.com/zatekoja/recursiadx/internal/domain/providers"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/domain/workflow"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/mlserver"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/redis"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/recursiadx/internal/infrastructure/observability"
	"github.com/zatekoja/recursiadx/pkg/config"
	"github.com/zatekoja/recursiadx/pkg/secrets"
)

func main() {
	// Secrets from Vault land in the environment before config is read
	if result, err := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets from Vault: %v\n", err)
		os.Exit(1)
	} else if result.Enabled {
		fmt.Fprintf(os.Stderr, "Loaded %d secrets from Vault path %s (%d kept from environment)\n", result.Loaded, result.Path, result.Skipped)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Database
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(cfg.Database.MigrationURL()); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Cache and event bus: Redis when reachable, in-process otherwise
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to in-process cache and event bus")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
		}
	}
	if cacheProvider == nil {
		cacheProvider = cache.NewLRUAdapter(cfg.Cache.LRUSize, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		eventBus = events.NewMemoryEventBus()
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// Search index
	var searchRepo repositories.SampleSearchRepository
	if cfg.Typesense.Enabled {
		typesenseClient, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Typesense unavailable, sample search falls back to SQL")
		} else {
			adapter := search.NewTypesenseAdapter(typesenseClient)
			if err := adapter.InitSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to init Typesense schema")
			}
			searchRepo = adapter
		}
	}

	// Repositories
	sampleRepo := database.NewCachedSampleAdapter(database.NewSampleAdapter(pgClient), cacheProvider, cfg.Cache.TTLSeconds)
	reportRepo := database.NewReportAdapter(pgClient)
	userRepo := database.NewUserAdapter(pgClient)
	sequenceRepo := database.NewSequenceAdapter(pgClient)

	// External providers
	mlGateway := ml.NewGateway(mlserver.NewClient(cfg.ML.BaseURL), cfg.ML)
	heatmaps := heatmap.NewAssetRenderer(cfg.Storage.HeatmapAssetDir, cfg.Storage.HeatmapDir, cfg.Storage.HeatmapSelection)
	imageStore, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.HeatmapDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize image storage")
	}

	// Services
	machine := workflow.NewMachine(workflow.TerminalPolicy(cfg.Workflow.TerminalPolicy))
	imageProcessor := services.NewImageProcessor(imageStore, mlGateway, heatmaps)
	sampleService := services.NewSampleService(sampleRepo, searchRepo, userRepo, sequenceRepo, eventBus, machine, imageProcessor)
	uploadService := services.NewUploadService(sampleService, imageProcessor)
	reportService := services.NewReportService(reportRepo, sampleRepo, sequenceRepo, eventBus, machine)
	authService := services.NewAuthService(userRepo, cacheProvider, cfg.Auth)
	loginLimiter := services.NewRateLimiter(cacheProvider, "login", cfg.Auth.LoginLimit, cfg.Auth.LoginWindow)
	registerLimiter := services.NewRateLimiter(cacheProvider, "register", cfg.Auth.RegisterLimit, cfg.Auth.LoginWindow)

	// Handlers
	router := routes.NewRouter(
		handlers.NewAuthHandler(authService, loginLimiter, registerLimiter, cfg.Env == "production"),
		handlers.NewSampleHandler(sampleService, uploadService, cfg.Server.MaxUploadMB),
		handlers.NewAssetHandler(imageStore),
		handlers.NewReportHandler(reportService),
		handlers.NewMLHandler(mlGateway),
		handlers.NewSSEHandler(eventBus, sampleService),
		authService,
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("env", cfg.Env).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	log.Info().Msg("Server stopped")
}
