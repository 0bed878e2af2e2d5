package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"userbotgo/backend/internal/activity"
	"userbotgo/backend/internal/api/handler"
	"userbotgo/backend/internal/config"
	"userbotgo/backend/internal/dispatch"
	"userbotgo/backend/internal/models"
	"userbotgo/backend/internal/rules"
	"userbotgo/backend/internal/storage"
	"userbotgo/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file, using environment")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(
		&models.Account{},
		&models.VerificationAttempt{},
		&models.Rule{},
		&models.MediaFile{},
		&models.LogEntry{},
		&models.BotSettings{},
	); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadsDir).Msg("cannot create uploads dir")
	}

	store := storage.NewStorageService(db, rdb)

	repo := rules.NewRepository(store)
	if err := repo.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load rules")
	}

	logger := activity.NewLogger(store)
	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	go logger.RunFeed(feedCtx)

	alerts, err := telegram.NewAlertService(cfg.AdminBotToken, cfg.AdminChatID)
	if err != nil {
		log.Warn().Err(err).Msg("alert bot disabled")
	}
	var capAlerter dispatch.Alerter
	var errAlerter telegram.ErrorAlerter
	if alerts != nil {
		capAlerter = alerts
		errAlerter = alerts
	}

	engine := dispatch.NewEngine(repo, store, store, logger, store, capAlerter, cfg.UploadsDir)

	authService, err := telegram.NewAuthService(store, telegram.NewGateway(), cfg.SessionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init auth service")
	}

	supervisor := telegram.NewSupervisor(store, authService, telegram.NewTransport(), engine, errAlerter)

	h := handler.NewHandler(store, authService, supervisor, repo, logger, cfg.UploadsDir)

	r := gin.Default()
	r.Static("/uploads", cfg.UploadsDir)
	h.RegisterRoutes(r)

	settings, err := store.GetSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}
	if settings.AutoStart {
		started, err := supervisor.StartAll()
		if err != nil {
			log.Error().Err(err).Msg("auto start failed")
		} else {
			log.Info().Int("accounts", started).Msg("auto started accounts")
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	supervisor.StopAll()
	engine.Wait()
	stopFeed()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("bye")
}
