package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tt-club/tournament-system/config"
	"github.com/tt-club/tournament-system/db"
	"github.com/tt-club/tournament-system/handlers"
	"github.com/tt-club/tournament-system/middleware"
	"github.com/tt-club/tournament-system/realtime"
	"github.com/tt-club/tournament-system/repositories"
	"github.com/tt-club/tournament-system/routes"
	"github.com/tt-club/tournament-system/services"
	"github.com/tt-club/tournament-system/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, leaderboard disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			logger.Info("redis connection established")
		}
		cancel()
	}

	var uploader storage.FileUploader
	if cfg.ExportsEnabled() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("export archive enabled")
	}

	hub := realtime.NewHub(logger)
	go hub.Run()

	memberRepo := repositories.NewPostgresMemberRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	bracketMatchRepo := repositories.NewPostgresBracketMatchRepository(dbConn)
	swissRepo := repositories.NewPostgresSwissRepository(dbConn)
	standingRepo := repositories.NewPostgresStandingRepository(dbConn)
	historyRepo := repositories.NewPostgresRatingHistoryRepository(dbConn)
	exchangeRepo := repositories.NewPostgresPointExchangeRepository(dbConn)

	ratingService := services.NewRatingService(
		memberRepo, participantRepo, matchRepo, tournamentRepo,
		historyRepo, exchangeRepo, redisClient, logger,
	)

	deps := services.NewPluginDeps(
		dbConn, tournamentRepo, participantRepo, matchRepo,
		bracketMatchRepo, swissRepo, memberRepo, ratingService, logger,
	)
	registry := services.NewRegistry()
	registry.Register(services.NewRoundRobinPlugin(deps))
	registry.Register(services.NewPlayoffPlugin(deps))
	registry.Register(services.NewSwissPlugin(deps))
	registry.Register(services.NewPrelimWithFinalRRPlugin(deps, registry))
	registry.Register(services.NewPrelimWithFinalPlayoffPlugin(deps, registry))

	tournamentService := services.NewTournamentService(
		dbConn, tournamentRepo, participantRepo, matchRepo, standingRepo,
		memberRepo, registry, ratingService, hub, logger,
	)
	matchService := services.NewMatchService(dbConn, matchRepo, memberRepo, ratingService, hub, logger)
	memberService := services.NewMemberService(dbConn, memberRepo, matchRepo, historyRepo, ratingService, hub, logger)
	authService := services.NewAuthService(memberRepo)
	exportService := services.NewExportService(tournamentRepo, standingRepo, memberRepo, historyRepo, uploader)

	router := routes.InitRoutes(routes.Handlers{
		Auth:       handlers.NewAuthHandler(authService, cfg.JWTSecretKey),
		Member:     handlers.NewMemberHandler(memberService),
		Tournament: handlers.NewTournamentHandler(tournamentService, exportService),
		Match:      handlers.NewMatchHandler(matchService),
		WebSocket:  handlers.NewWebSocketHandler(hub, logger),
	}, middleware.NewAuthenticator(cfg.JWTSecretKey))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
	}
	logger.Info("application exited")
}
