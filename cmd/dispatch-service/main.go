package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch-service/internal/auth"
	"dispatch-service/internal/config"
	"dispatch-service/internal/db"
	"dispatch-service/internal/dispatch"
	httphandler "dispatch-service/internal/http"
	"dispatch-service/internal/http/middleware"
	"dispatch-service/internal/logger"
	"dispatch-service/internal/repository"
	"dispatch-service/internal/service"
	"dispatch-service/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	location, err := time.LoadLocation(cfg.Dispatch.TimeZone)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid notification time zone")
	}

	trackingRepo := repository.NewTrackingRepository(database)
	coordinateRepo := repository.NewCoordinateRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)
	reservationRepo := repository.NewReservationRepository(database)

	trackingService := service.NewTrackingService(trackingRepo)
	pathService := service.NewPathService(coordinateRepo, service.NewRedisLiveCache(redisClient), log)
	notificationService := service.NewNotificationService(notificationRepo)

	engine := dispatch.NewEngine(reservationRepo, notificationRepo, dispatch.Config{
		Location: location,
		Lookback: cfg.Dispatch.Lookback,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := workers.NewDispatchWorker(engine, cfg.Dispatch.PollInterval, log)
	go worker.Run(ctx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(trackingService, pathService, notificationService, log)
	router := httphandler.NewRouter(handler, middleware.Auth(tokenParser), cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting dispatch service")

	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
